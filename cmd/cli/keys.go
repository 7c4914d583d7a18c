package cli

import (
	"fmt"

	"github.com/driftboard/driftboard/internal/fieldcrypt"
	"github.com/spf13/cobra"
)

func NewGenerateKeyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate-key",
		Short: "Generate a field-encryption master key",
		Long:  `Generate a random master key for field encryption. Set it as CANVAS_MASTER_KEY before starting the service.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerateKey()
		},
	}

	return cmd
}

func runGenerateKey() error {
	key, err := fieldcrypt.GenerateMasterKey()
	if err != nil {
		return fmt.Errorf("failed to generate key: %w", err)
	}

	fmt.Println(key)
	fmt.Println()
	fmt.Println("Set this as CANVAS_MASTER_KEY. Losing the key makes encrypted fields unrecoverable.")
	return nil
}
