package managers

import (
	"context"
	"sync"
	"time"

	"github.com/driftboard/driftboard/internal/askanswer"
	"github.com/driftboard/driftboard/internal/domain"
	"github.com/driftboard/driftboard/internal/engine"
	"github.com/driftboard/driftboard/internal/fieldcrypt"
	"github.com/driftboard/driftboard/pkg/clients/answers"

	"github.com/rs/zerolog/log"
)

// CanvasSession bundles the sync engine and the ask/answer protocol for one
// open canvas. The engine owns the in-memory graph exclusively.
type CanvasSession struct {
	CanvasID  string
	Engine    *engine.Engine
	AskAnswer *askanswer.Service
}

// CanvasSessionManager creates and caches one session per canvas.
type CanvasSessionManager struct {
	mu       sync.Mutex
	sessions map[string]*CanvasSession

	canvasStore    domain.CanvasStore
	nodeStore      domain.NodeStore
	edgeStore      domain.EdgeStore
	fieldLayer     *fieldcrypt.Layer
	answersClient  answers.ClientInterface
	debounceWindow time.Duration
}

type CanvasSessionManagerDependencies struct {
	CanvasStore    domain.CanvasStore
	NodeStore      domain.NodeStore
	EdgeStore      domain.EdgeStore
	FieldLayer     *fieldcrypt.Layer
	AnswersClient  answers.ClientInterface
	DebounceWindow time.Duration
}

func NewCanvasSessionManager(deps CanvasSessionManagerDependencies) *CanvasSessionManager {
	return &CanvasSessionManager{
		sessions:       map[string]*CanvasSession{},
		canvasStore:    deps.CanvasStore,
		nodeStore:      deps.NodeStore,
		edgeStore:      deps.EdgeStore,
		fieldLayer:     deps.FieldLayer,
		answersClient:  deps.AnswersClient,
		debounceWindow: deps.DebounceWindow,
	}
}

// GetSession returns the session for a canvas, creating and loading it on
// first use. The canvas must exist.
func (m *CanvasSessionManager) GetSession(ctx context.Context, canvasID string) (*CanvasSession, error) {
	m.mu.Lock()
	if session, ok := m.sessions[canvasID]; ok {
		m.mu.Unlock()
		return session, nil
	}
	m.mu.Unlock()

	if _, err := m.canvasStore.GetCanvas(ctx, canvasID); err != nil {
		return nil, err
	}

	graphEngine := engine.NewEngine(engine.EngineDependencies{
		CanvasID:       canvasID,
		NodeStore:      m.nodeStore,
		EdgeStore:      m.edgeStore,
		FieldLayer:     m.fieldLayer,
		DebounceWindow: m.debounceWindow,
	})

	if _, err := graphEngine.Load(ctx); err != nil {
		graphEngine.Close()
		return nil, err
	}

	session := &CanvasSession{
		CanvasID: canvasID,
		Engine:   graphEngine,
		AskAnswer: askanswer.NewService(askanswer.ServiceDependencies{
			CanvasID:      canvasID,
			Graph:         graphEngine,
			AnswersClient: m.answersClient,
		}),
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// another request may have raced us here; keep the first session
	if existing, ok := m.sessions[canvasID]; ok {
		graphEngine.Close()
		return existing, nil
	}

	m.sessions[canvasID] = session
	log.Debug().Str("canvas_id", canvasID).Msg("Canvas session opened")

	return session, nil
}

// CloseSession drops a canvas session and cancels its pending writes.
func (m *CanvasSessionManager) CloseSession(canvasID string) {
	m.mu.Lock()
	session, ok := m.sessions[canvasID]
	delete(m.sessions, canvasID)
	m.mu.Unlock()

	if ok {
		session.Engine.Close()
		log.Debug().Str("canvas_id", canvasID).Msg("Canvas session closed")
	}
}

// CloseAll drops every session, for shutdown.
func (m *CanvasSessionManager) CloseAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = map[string]*CanvasSession{}
	m.mu.Unlock()

	for _, session := range sessions {
		session.Engine.Close()
	}
}
