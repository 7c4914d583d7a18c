package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/driftboard/driftboard/internal/fieldcrypt"
	"github.com/driftboard/driftboard/internal/initialization"
	"github.com/driftboard/driftboard/internal/server"
	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func NewServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the canvas service",
		Long:  `Start the HTTP server, connecting to the database and creating the schema if needed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}

	return cmd
}

func runServe() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	config, err := initialization.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	container, err := initialization.NewContainer(ctx, config)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build service dependencies")
	}
	defer container.Close()

	httpServer := server.NewHTTPServer(server.HTTPServerDependencies{
		CanvasController: container.CanvasController,
	})

	log.Info().
		Str("address", config.HTTPAddress).
		Bool("encryption", container.FieldLayer.Mode() != fieldcrypt.ModeDisabled).
		Msg("Starting canvas service")

	if err := httpServer.Listen(config.HTTPAddress, fiber.ListenConfig{
		GracefulContext:       ctx,
		DisableStartupMessage: true,
	}); err != nil {
		log.Error().Err(err).Msg("HTTP server failed")
		return err
	}

	log.Info().Msg("Canvas service stopped")
	return nil
}
