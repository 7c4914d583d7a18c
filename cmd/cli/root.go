package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "driftboard",
		Short: "Driftboard canvas service CLI",
		Long: `Driftboard is a canvas graph service that persists node and edge state
with field-level encryption and serves editor sessions over HTTP.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(NewServeCommand())
	rootCmd.AddCommand(NewStatusCommand())
	rootCmd.AddCommand(NewResetBreakersCommand())
	rootCmd.AddCommand(NewGenerateKeyCommand())

	return rootCmd
}

// Execute runs the root command
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
