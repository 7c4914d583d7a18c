package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/driftboard/driftboard/internal/domain"
	"github.com/driftboard/driftboard/internal/fieldcrypt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// DuplicateOffset is the fixed position delta applied to duplicated nodes.
const DuplicateOffset = 40.0

// Engine is the in-memory source of truth for one canvas's nodes and edges,
// reconciled with the store through the field encryption layer. Local
// mutations apply synchronously; persistence may lag behind (debounced
// position writes) or fail without corrupting local state.
type Engine struct {
	mu sync.Mutex

	canvasID string
	nodes    map[string]domain.Node
	edges    map[string]domain.Edge
	locked   bool

	// writeSeq is the pending-write token per node. A debounced write
	// captures the token at schedule time and is discarded on completion
	// if a newer mutation bumped it.
	writeSeq map[string]uint64

	// edgesGen guards edge refreshes against overwriting newer local
	// state with stale remote results.
	edgesGen uint64

	nodeStore domain.NodeStore
	edgeStore domain.EdgeStore
	fields    *fieldcrypt.Layer
	debounce  *debouncer
}

type EngineDependencies struct {
	CanvasID       string
	NodeStore      domain.NodeStore
	EdgeStore      domain.EdgeStore
	FieldLayer     *fieldcrypt.Layer
	DebounceWindow time.Duration
}

func NewEngine(deps EngineDependencies) *Engine {
	return &Engine{
		canvasID:  deps.CanvasID,
		nodes:     map[string]domain.Node{},
		edges:     map[string]domain.Edge{},
		writeSeq:  map[string]uint64{},
		nodeStore: deps.NodeStore,
		edgeStore: deps.EdgeStore,
		fields:    deps.FieldLayer,
		debounce:  newDebouncer(deps.DebounceWindow),
	}
}

// Close cancels all pending debounced writes.
func (e *Engine) Close() {
	e.debounce.CancelAll()
}

// Load fetches and decrypts the canvas graph. While the key is locked the
// engine presents an empty graph rather than stale or half-decrypted data.
// Nodes and edges whose fields cannot be decrypted keep their structural
// data so the topology stays visible.
func (e *Engine) Load(ctx context.Context) (domain.GraphSnapshot, error) {
	records, err := e.nodeStore.ListNodes(ctx, e.canvasID)
	if err != nil {
		return domain.GraphSnapshot{}, fmt.Errorf("failed to load nodes: %w", err)
	}

	rawEdges, err := e.edgeStore.ListEdges(ctx, e.canvasID)
	if err != nil {
		return domain.GraphSnapshot{}, fmt.Errorf("failed to load edges: %w", err)
	}

	if e.fields.Mode() == fieldcrypt.ModeLocked {
		e.mu.Lock()
		e.nodes = map[string]domain.Node{}
		e.edges = map[string]domain.Edge{}
		e.locked = true
		e.mu.Unlock()

		return e.Snapshot(), nil
	}

	nodes := make([]domain.Node, len(records))
	edges := make([]domain.Edge, len(rawEdges))

	// decrypts run concurrently; one field's failure never blocks another
	var wg sync.WaitGroup
	for i, record := range records {
		wg.Add(1)
		go func(i int, record domain.NodeRecord) {
			defer wg.Done()
			nodes[i], _ = e.fields.DecryptNode(ctx, record)
		}(i, record)
	}
	for i, edge := range rawEdges {
		wg.Add(1)
		go func(i int, edge domain.Edge) {
			defer wg.Done()
			edges[i], _ = e.fields.DecryptEdge(ctx, edge)
		}(i, edge)
	}
	wg.Wait()

	e.mu.Lock()
	e.locked = false
	e.nodes = make(map[string]domain.Node, len(nodes))
	for _, node := range nodes {
		e.nodes[node.ID] = node
	}
	e.edges = make(map[string]domain.Edge, len(edges))
	for _, edge := range edges {
		e.edges[edge.ID] = edge
	}
	e.edgesGen++
	e.mu.Unlock()

	return e.Snapshot(), nil
}

// Snapshot returns the current plain view for the editor surface.
func (e *Engine) Snapshot() domain.GraphSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	snapshot := domain.GraphSnapshot{
		CanvasID: e.canvasID,
		Locked:   e.locked,
		Nodes:    make([]domain.Node, 0, len(e.nodes)),
		Edges:    make([]domain.Edge, 0, len(e.edges)),
	}

	for _, node := range e.nodes {
		snapshot.Nodes = append(snapshot.Nodes, node)
	}
	for _, edge := range e.edges {
		snapshot.Edges = append(snapshot.Edges, edge)
	}

	sort.Slice(snapshot.Nodes, func(i, j int) bool {
		a, b := snapshot.Nodes[i], snapshot.Nodes[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	sort.Slice(snapshot.Edges, func(i, j int) bool {
		a, b := snapshot.Edges[i], snapshot.Edges[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})

	return snapshot
}

// GetNode returns the node from local state.
func (e *Engine) GetNode(nodeID string) (domain.Node, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	node, ok := e.nodes[nodeID]
	return node, ok
}

// GetEdge returns the edge from local state.
func (e *Engine) GetEdge(edgeID string) (domain.Edge, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	edge, ok := e.edges[edgeID]
	return edge, ok
}

type AddNodeParams struct {
	Type     domain.NodeType
	Position domain.Position
	Label    string
	Config   map[string]any
}

// AddNode creates a node with the default config for its type unless an
// explicit config is supplied, persists it encrypted, and merges the
// plaintext version into local state.
func (e *Engine) AddNode(ctx context.Context, p AddNodeParams) (domain.Node, error) {
	if !p.Position.IsFinite() {
		return domain.Node{}, domain.ErrInvalidPosition
	}

	config := p.Config
	if config == nil {
		defaults, err := domain.DefaultNodeConfig(p.Type)
		if err != nil {
			return domain.Node{}, err
		}
		config = defaults
	}

	if err := domain.ValidateNodeConfig(p.Type, config); err != nil {
		return domain.Node{}, err
	}

	node := domain.Node{
		ID:       uuid.NewString(),
		CanvasID: e.canvasID,
		Type:     p.Type,
		Position: p.Position,
		Label:    p.Label,
		Config:   config,
	}

	record, mode, err := e.fields.EncryptNode(ctx, node)
	if err != nil {
		return domain.Node{}, fmt.Errorf("failed to prepare node for storage: %w", err)
	}
	if mode != fieldcrypt.ModeActive {
		log.Debug().Str("mode", string(mode)).Msg("Persisting node without field encryption")
	}

	stored, err := e.nodeStore.InsertNode(ctx, record)
	if err != nil {
		return domain.Node{}, err
	}

	node.CreatedAt = stored.CreatedAt
	node.UpdatedAt = stored.UpdatedAt

	// local state always holds the plaintext version, never ciphertext
	e.mu.Lock()
	e.nodes[node.ID] = node
	e.mu.Unlock()

	return node, nil
}

// UpdateNodePosition applies the move locally at once and coalesces the
// remote write: rapid successive moves of the same node produce a single
// persisted write carrying the final position.
func (e *Engine) UpdateNodePosition(ctx context.Context, nodeID string, position domain.Position) error {
	if !position.IsFinite() {
		return domain.ErrInvalidPosition
	}

	e.mu.Lock()
	node, ok := e.nodes[nodeID]
	if !ok {
		e.mu.Unlock()
		return domain.ErrNodeNotFound
	}

	node.Position = position
	node.UpdatedAt = time.Now().UTC()
	e.nodes[nodeID] = node

	e.writeSeq[nodeID]++
	seq := e.writeSeq[nodeID]
	e.mu.Unlock()

	e.debounce.Schedule(nodeID, func() {
		e.persistPosition(nodeID, position, seq)
	})

	return nil
}

// persistPosition runs after the quiescence window. A stale token or a node
// deleted in the meantime turns the write into a no-op.
func (e *Engine) persistPosition(nodeID string, position domain.Position, seq uint64) {
	e.mu.Lock()
	_, exists := e.nodes[nodeID]
	current := e.writeSeq[nodeID]
	e.mu.Unlock()

	if !exists || current != seq {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	update := domain.NodeUpdate{Position: &position}
	if err := e.nodeStore.UpdateNode(ctx, e.canvasID, nodeID, update); err != nil {
		log.Warn().Err(err).Str("node_id", nodeID).Msg("Failed to persist node position")
	}
}

// CommitNodeLabel persists a label edit immediately.
func (e *Engine) CommitNodeLabel(ctx context.Context, nodeID, label string) error {
	e.mu.Lock()
	node, ok := e.nodes[nodeID]
	if !ok {
		e.mu.Unlock()
		return domain.ErrNodeNotFound
	}
	node.Label = label
	node.UpdatedAt = time.Now().UTC()
	e.nodes[nodeID] = node
	e.writeSeq[nodeID]++
	e.mu.Unlock()

	record, _, err := e.fields.EncryptNode(ctx, node)
	if err != nil {
		return fmt.Errorf("failed to prepare node for storage: %w", err)
	}

	update := domain.NodeUpdate{Label: &record.Label}
	return e.nodeStore.UpdateNode(ctx, e.canvasID, nodeID, update)
}

// CommitNodeConfig validates and persists a config edit immediately. The
// runtime projection is re-extracted so non-decrypting readers stay current.
func (e *Engine) CommitNodeConfig(ctx context.Context, nodeID string, config map[string]any) error {
	e.mu.Lock()
	node, ok := e.nodes[nodeID]
	if !ok {
		e.mu.Unlock()
		return domain.ErrNodeNotFound
	}
	e.mu.Unlock()

	if err := domain.ValidateNodeConfig(node.Type, config); err != nil {
		return err
	}

	node.Config = config
	node.UpdatedAt = time.Now().UTC()

	record, _, err := e.fields.EncryptNode(ctx, node)
	if err != nil {
		return fmt.Errorf("failed to prepare node for storage: %w", err)
	}

	update := domain.NodeUpdate{
		Config:    &record.Config,
		Runtime:   &record.Runtime,
		IsExposed: &record.IsExposed,
	}
	if err := e.nodeStore.UpdateNode(ctx, e.canvasID, nodeID, update); err != nil {
		return err
	}

	e.mu.Lock()
	if current, ok := e.nodes[nodeID]; ok {
		current.Config = config
		current.UpdatedAt = node.UpdatedAt
		e.nodes[nodeID] = current
		e.writeSeq[nodeID]++
	}
	e.mu.Unlock()

	return nil
}

// DeleteNode removes the node locally and remotely, then reconciles the
// edge list because the store cascades edge deletion. A failed refresh
// leaves the optimistic edge list in place; the node deletion stands.
func (e *Engine) DeleteNode(ctx context.Context, nodeID string) error {
	e.mu.Lock()
	if _, ok := e.nodes[nodeID]; !ok {
		e.mu.Unlock()
		return domain.ErrNodeNotFound
	}

	delete(e.nodes, nodeID)
	e.writeSeq[nodeID]++
	for edgeID, edge := range e.edges {
		if edge.Touches(nodeID) {
			delete(e.edges, edgeID)
		}
	}
	e.edgesGen++
	e.mu.Unlock()

	e.debounce.Cancel(nodeID)

	if err := e.nodeStore.DeleteNode(ctx, e.canvasID, nodeID); err != nil {
		return err
	}

	if err := e.RefreshEdges(ctx); err != nil {
		log.Warn().Err(err).Str("canvas_id", e.canvasID).
			Msg("Edge refresh after node delete failed, edge list may be stale")
	}

	return nil
}

// RefreshEdges re-lists edges from the store and replaces local edge state,
// unless a newer local mutation happened while the fetch was in flight.
func (e *Engine) RefreshEdges(ctx context.Context) error {
	e.mu.Lock()
	gen := e.edgesGen
	e.mu.Unlock()

	rawEdges, err := e.edgeStore.ListEdges(ctx, e.canvasID)
	if err != nil {
		return fmt.Errorf("failed to refresh edges: %w", err)
	}

	decrypted := make([]domain.Edge, len(rawEdges))
	for i, edge := range rawEdges {
		decrypted[i], _ = e.fields.DecryptEdge(ctx, edge)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.edgesGen != gen {
		// newer local state wins over the stale fetch
		return nil
	}

	e.edges = make(map[string]domain.Edge, len(decrypted))
	for _, edge := range decrypted {
		e.edges[edge.ID] = edge
	}

	return nil
}

// Connect creates an edge for a connect gesture. A second edge over the
// same ordered pair is rejected with ErrDuplicateEdge so the caller can
// show an "already connected" notice instead of a generic failure.
func (e *Engine) Connect(ctx context.Context, conn domain.Connection) (domain.Edge, error) {
	e.mu.Lock()
	source, ok := e.nodes[conn.Source]
	if !ok {
		e.mu.Unlock()
		return domain.Edge{}, fmt.Errorf("source: %w", domain.ErrNodeNotFound)
	}
	target, ok := e.nodes[conn.Target]
	if !ok {
		e.mu.Unlock()
		return domain.Edge{}, fmt.Errorf("target: %w", domain.ErrNodeNotFound)
	}
	if source.CanvasID != e.canvasID || target.CanvasID != e.canvasID {
		e.mu.Unlock()
		return domain.Edge{}, domain.ErrCrossCanvas
	}

	for _, edge := range e.edges {
		if edge.Connects(conn.Source, conn.Target) {
			e.mu.Unlock()
			return domain.Edge{}, domain.ErrDuplicateEdge
		}
	}
	e.mu.Unlock()

	edge := domain.Edge{
		ID:         uuid.NewString(),
		CanvasID:   e.canvasID,
		FromNodeID: conn.Source,
		FromPort:   conn.SourceHandle,
		ToNodeID:   conn.Target,
		ToPort:     conn.TargetHandle,
		Metadata:   map[string]any{},
	}

	encrypted, _, err := e.fields.EncryptEdge(ctx, edge)
	if err != nil {
		return domain.Edge{}, fmt.Errorf("failed to prepare edge for storage: %w", err)
	}

	stored, err := e.edgeStore.InsertEdge(ctx, encrypted)
	if err != nil {
		return domain.Edge{}, err
	}

	edge.CreatedAt = stored.CreatedAt

	e.mu.Lock()
	e.edges[edge.ID] = edge
	e.edgesGen++
	e.mu.Unlock()

	return edge, nil
}

// DeleteEdge removes a single edge.
func (e *Engine) DeleteEdge(ctx context.Context, edgeID string) error {
	e.mu.Lock()
	if _, ok := e.edges[edgeID]; !ok {
		e.mu.Unlock()
		return domain.ErrEdgeNotFound
	}
	delete(e.edges, edgeID)
	e.edgesGen++
	e.mu.Unlock()

	return e.edgeStore.DeleteEdge(ctx, e.canvasID, edgeID)
}

// UpdateEdgeMetadata applies mutate to the edge's metadata under the engine
// lock, persists the result immediately, and keeps local state in sync.
func (e *Engine) UpdateEdgeMetadata(ctx context.Context, edgeID string, mutate func(metadata map[string]any) map[string]any) (domain.Edge, error) {
	e.mu.Lock()
	edge, ok := e.edges[edgeID]
	if !ok {
		e.mu.Unlock()
		return domain.Edge{}, domain.ErrEdgeNotFound
	}

	metadata := mutate(cloneMetadata(edge.Metadata))
	edge.Metadata = metadata
	e.edges[edgeID] = edge
	e.edgesGen++
	e.mu.Unlock()

	update := domain.EdgeUpdate{Metadata: &metadata}
	if err := e.edgeStore.UpdateEdge(ctx, e.canvasID, edgeID, update); err != nil {
		return domain.Edge{}, err
	}

	return edge, nil
}

// DuplicateNode copies a node's current decrypted config and type into a new
// node at a fixed offset. Edges are never duplicated.
func (e *Engine) DuplicateNode(ctx context.Context, nodeID string) (domain.Node, error) {
	e.mu.Lock()
	source, ok := e.nodes[nodeID]
	e.mu.Unlock()
	if !ok {
		return domain.Node{}, domain.ErrNodeNotFound
	}

	config := make(map[string]any, len(source.Config))
	for key, value := range source.Config {
		config[key] = value
	}

	return e.AddNode(ctx, AddNodeParams{
		Type: source.Type,
		Position: domain.Position{
			X: source.Position.X + DuplicateOffset,
			Y: source.Position.Y + DuplicateOffset,
		},
		Label:  source.Label,
		Config: config,
	})
}

// ApplyNodeChanges consumes raw editor change events for nodes.
func (e *Engine) ApplyNodeChanges(ctx context.Context, changes []domain.NodeChange) error {
	for _, change := range changes {
		switch change.Type {
		case domain.ChangeTypePosition:
			if change.Position == nil {
				continue
			}
			if err := e.UpdateNodePosition(ctx, change.NodeID, *change.Position); err != nil {
				return err
			}
		case domain.ChangeTypeRemove:
			if err := e.DeleteNode(ctx, change.NodeID); err != nil {
				return err
			}
		case domain.ChangeTypeSelect:
			// selection is a UI concern, nothing to persist
		}
	}

	return nil
}

// ApplyEdgeChanges consumes raw editor change events for edges.
func (e *Engine) ApplyEdgeChanges(ctx context.Context, changes []domain.EdgeChange) error {
	for _, change := range changes {
		switch change.Type {
		case domain.ChangeTypeRemove:
			if err := e.DeleteEdge(ctx, change.EdgeID); err != nil {
				return err
			}
		case domain.ChangeTypeSelect:
		}
	}

	return nil
}

func cloneMetadata(metadata map[string]any) map[string]any {
	clone := make(map[string]any, len(metadata))
	for key, value := range metadata {
		clone[key] = value
	}

	return clone
}
