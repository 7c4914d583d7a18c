package cli

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/driftboard/driftboard/internal/initialization"
	"github.com/spf13/cobra"
)

func NewResetBreakersCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset-breakers",
		Short: "Reset all decryption circuit breakers",
		Long:  `Ask a running service to close all open decryption circuit breakers so suppressed resources are decrypted again on the next load.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResetBreakers()
		},
	}

	return cmd
}

func runResetBreakers() error {
	config, err := initialization.LoadConfig()
	if err != nil {
		return err
	}

	if err := resetBreakers(config.HTTPAddress); err != nil {
		return err
	}

	fmt.Println("✅ Circuit breakers reset")
	return nil
}

func resetBreakers(address string) error {
	if strings.HasPrefix(address, ":") {
		address = "localhost" + address
	}

	client := &http.Client{Timeout: 10 * time.Second}

	resp, err := client.Post(fmt.Sprintf("http://%s/breakers/reset", address), "application/json", nil)
	if err != nil {
		return fmt.Errorf("service is not reachable at %s: %w", address, err)
	}
	defer resp.Body.Close()

	// the reset handler replies 204
	if resp.StatusCode >= 300 {
		return fmt.Errorf("reset failed with status %d", resp.StatusCode)
	}

	return nil
}
