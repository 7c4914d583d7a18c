package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/driftboard/driftboard/internal/initialization"
	"github.com/driftboard/driftboard/internal/postgres"
	"github.com/spf13/cobra"
)

func NewStatusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show service configuration and connectivity",
		Long:  `Display the resolved configuration and check whether the database is reachable.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus()
		},
	}

	return cmd
}

func runStatus() error {
	config, err := initialization.LoadConfig()
	if err != nil {
		fmt.Println("❌ Configuration is incomplete")
		fmt.Printf("   %v\n", err)
		return nil
	}

	fmt.Println("✅ Configuration loaded")
	fmt.Printf("   HTTP address: %s\n", config.HTTPAddress)
	fmt.Printf("   Answer API: %s\n", config.AnswerAPIURL)
	if config.MasterKey != "" {
		fmt.Println("   Field encryption: enabled")
	} else {
		fmt.Println("   Field encryption: disabled (no master key)")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	db, err := postgres.Connect(ctx, config.DatabaseURL)
	if err != nil {
		fmt.Println("❌ Database is not reachable")
		fmt.Printf("   %v\n", err)
		return nil
	}
	defer db.Close()

	fmt.Println("✅ Database is reachable")
	return nil
}
