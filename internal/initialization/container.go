package initialization

import (
	"context"
	"fmt"

	"github.com/driftboard/driftboard/internal/breaker"
	"github.com/driftboard/driftboard/internal/controllers"
	"github.com/driftboard/driftboard/internal/domain"
	"github.com/driftboard/driftboard/internal/fieldcrypt"
	"github.com/driftboard/driftboard/internal/managers"
	"github.com/driftboard/driftboard/internal/postgres"
	"github.com/driftboard/driftboard/pkg/clients/answers"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// Container wires the store, encryption layer, breakers, sessions and
// controllers together.
type Container struct {
	Config           *Config
	DB               *pgxpool.Pool
	Store            *postgres.Store
	Breakers         domain.BreakerRegistry
	FieldLayer       *fieldcrypt.Layer
	SessionManager   *managers.CanvasSessionManager
	CanvasController *controllers.CanvasController
}

func NewContainer(ctx context.Context, config *Config) (*Container, error) {
	db, err := postgres.Connect(ctx, config.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	store := postgres.NewStore(db)
	if err := store.CreateSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	cipher, err := fieldcrypt.NewKeyCipher(fieldcrypt.CipherDependencies{
		MasterKey: config.MasterKey,
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set up field cipher: %w", err)
	}

	if !cipher.State().HasEncryption {
		log.Warn().Msg("No master key configured, sensitive fields will be stored in plaintext")
	}

	breakers := breaker.NewRegistry(breaker.RegistryDependencies{
		FailureThreshold: config.BreakerThreshold,
	})

	breakers.Subscribe(func(event domain.BreakerEvent) {
		if event.State.IsOpen {
			log.Warn().
				Str("resource", event.Key).
				Str("last_error", event.State.LastError).
				Msg("Decryption suppressed until manual reset")
		}
	})

	fieldLayer := fieldcrypt.NewLayer(fieldcrypt.LayerDependencies{
		Cipher:        cipher,
		StateProvider: cipher,
		Breakers:      breakers,
	})

	answersClient := answers.NewClient(
		answers.WithBaseURL(config.AnswerAPIURL),
		answers.WithAPIKey(config.AnswerAPIKey),
	)

	sessionManager := managers.NewCanvasSessionManager(managers.CanvasSessionManagerDependencies{
		CanvasStore:   store,
		NodeStore:     store,
		EdgeStore:     store,
		FieldLayer:    fieldLayer,
		AnswersClient: answersClient,
	})

	canvasController := controllers.NewCanvasController(controllers.CanvasControllerDependencies{
		CanvasStore:    store,
		SessionManager: sessionManager,
		Breakers:       breakers,
	})

	return &Container{
		Config:           config,
		DB:               db,
		Store:            store,
		Breakers:         breakers,
		FieldLayer:       fieldLayer,
		SessionManager:   sessionManager,
		CanvasController: canvasController,
	}, nil
}

// Close releases sessions and the database pool.
func (c *Container) Close() {
	c.SessionManager.CloseAll()
	c.DB.Close()
}
