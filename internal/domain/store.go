package domain

import (
	"context"
	"errors"
	"time"
)

// NodeRecord is the stored shape of a node. Label and Config may hold
// ciphertext; Runtime is the plaintext projection readable without a key.
// Position is flattened into two scalar columns at the store boundary.
type NodeRecord struct {
	ID        string
	CanvasID  string
	Type      NodeType
	Position  Position
	Label     string
	Config    string
	Runtime   map[string]any
	IsExposed bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NodeUpdate is a partial update. Nil fields are left untouched. Immutable
// fields (id, canvas_id, created_at) are excluded by construction.
type NodeUpdate struct {
	Position  *Position
	Label     *string
	Config    *string
	Runtime   *map[string]any
	IsExposed *bool
}

// EdgeUpdate is a partial update for an edge's mutable fields.
type EdgeUpdate struct {
	Label     *string
	Condition *string
	Transform *string
	Metadata  *map[string]any
}

// ErrStoreUnavailable wraps transient remote-store failures. Callers may
// retry; local state is not corrupted.
var ErrStoreUnavailable = errors.New("store unavailable")

// IsNotFound reports whether err is one of the entity not-found sentinels.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrCanvasNotFound) || errors.Is(err, ErrNodeNotFound) || errors.Is(err, ErrEdgeNotFound)
}

type CanvasStore interface {
	CreateCanvas(ctx context.Context, canvas Canvas) (Canvas, error)
	GetCanvas(ctx context.Context, canvasID string) (Canvas, error)
	ListCanvases(ctx context.Context, ownerID string) ([]Canvas, error)
	UpdateCanvas(ctx context.Context, canvasID string, name *string, mode *CanvasMode) error
	DeleteCanvas(ctx context.Context, canvasID string) error
}

type NodeStore interface {
	ListNodes(ctx context.Context, canvasID string) ([]NodeRecord, error)
	InsertNode(ctx context.Context, record NodeRecord) (NodeRecord, error)
	UpdateNode(ctx context.Context, canvasID, nodeID string, update NodeUpdate) error
	DeleteNode(ctx context.Context, canvasID, nodeID string) error
}

type EdgeStore interface {
	ListEdges(ctx context.Context, canvasID string) ([]Edge, error)
	InsertEdge(ctx context.Context, edge Edge) (Edge, error)
	UpdateEdge(ctx context.Context, canvasID, edgeID string, update EdgeUpdate) error
	DeleteEdge(ctx context.Context, canvasID, edgeID string) error
}
