package engine

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/driftboard/driftboard/internal/breaker"
	"github.com/driftboard/driftboard/internal/domain"
	"github.com/driftboard/driftboard/internal/fieldcrypt"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory node+edge store with database-like cascade
// semantics: deleting a node deletes edges touching it.
type memStore struct {
	mu    sync.Mutex
	nodes map[string]domain.NodeRecord
	edges map[string]domain.Edge

	nodeUpdates []domain.NodeUpdate
	onListEdges func()
}

func newMemStore() *memStore {
	return &memStore{
		nodes: map[string]domain.NodeRecord{},
		edges: map[string]domain.Edge{},
	}
}

func (s *memStore) ListNodes(ctx context.Context, canvasID string) ([]domain.NodeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := []domain.NodeRecord{}
	for _, record := range s.nodes {
		if record.CanvasID == canvasID {
			records = append(records, record)
		}
	}
	return records, nil
}

func (s *memStore) InsertNode(ctx context.Context, record domain.NodeRecord) (domain.NodeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	record.CreatedAt = time.Now().UTC()
	record.UpdatedAt = record.CreatedAt
	s.nodes[record.ID] = record
	return record, nil
}

func (s *memStore) UpdateNode(ctx context.Context, canvasID, nodeID string, update domain.NodeUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.nodes[nodeID]
	if !ok || record.CanvasID != canvasID {
		return domain.ErrNodeNotFound
	}

	if update.Position != nil {
		record.Position = *update.Position
	}
	if update.Label != nil {
		record.Label = *update.Label
	}
	if update.Config != nil {
		record.Config = *update.Config
	}
	if update.Runtime != nil {
		record.Runtime = *update.Runtime
	}
	if update.IsExposed != nil {
		record.IsExposed = *update.IsExposed
	}

	s.nodes[nodeID] = record
	s.nodeUpdates = append(s.nodeUpdates, update)
	return nil
}

func (s *memStore) DeleteNode(ctx context.Context, canvasID, nodeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.nodes[nodeID]
	if !ok || record.CanvasID != canvasID {
		return domain.ErrNodeNotFound
	}

	delete(s.nodes, nodeID)
	for edgeID, edge := range s.edges {
		if edge.Touches(nodeID) {
			delete(s.edges, edgeID)
		}
	}
	return nil
}

func (s *memStore) ListEdges(ctx context.Context, canvasID string) ([]domain.Edge, error) {
	if s.onListEdges != nil {
		s.onListEdges()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	edges := []domain.Edge{}
	for _, edge := range s.edges {
		if edge.CanvasID == canvasID {
			edges = append(edges, edge)
		}
	}
	return edges, nil
}

func (s *memStore) InsertEdge(ctx context.Context, edge domain.Edge) (domain.Edge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.edges {
		if existing.CanvasID == edge.CanvasID && existing.Connects(edge.FromNodeID, edge.ToNodeID) {
			return domain.Edge{}, domain.ErrDuplicateEdge
		}
	}

	if edge.ID == "" {
		edge.ID = uuid.NewString()
	}
	edge.CreatedAt = time.Now().UTC()
	s.edges[edge.ID] = edge
	return edge, nil
}

func (s *memStore) UpdateEdge(ctx context.Context, canvasID, edgeID string, update domain.EdgeUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	edge, ok := s.edges[edgeID]
	if !ok || edge.CanvasID != canvasID {
		return domain.ErrEdgeNotFound
	}

	if update.Label != nil {
		edge.Label = *update.Label
	}
	if update.Condition != nil {
		edge.Condition = *update.Condition
	}
	if update.Transform != nil {
		edge.Transform = *update.Transform
	}
	if update.Metadata != nil {
		edge.Metadata = *update.Metadata
	}

	s.edges[edgeID] = edge
	return nil
}

func (s *memStore) DeleteEdge(ctx context.Context, canvasID, edgeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	edge, ok := s.edges[edgeID]
	if !ok || edge.CanvasID != canvasID {
		return domain.ErrEdgeNotFound
	}

	delete(s.edges, edgeID)
	return nil
}

func (s *memStore) positionUpdateCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, update := range s.nodeUpdates {
		if update.Position != nil {
			count++
		}
	}
	return count
}

// testCipher is the surface of the key cipher the tests need.
type testCipher interface {
	domain.Cipher
	domain.CipherStateProvider
	Lock()
	Unlock()
}

func newTestEngine(t *testing.T, store *memStore, window time.Duration) (*Engine, testCipher) {
	t.Helper()

	masterKey, err := fieldcrypt.GenerateMasterKey()
	require.NoError(t, err)

	cipher, err := fieldcrypt.NewKeyCipher(fieldcrypt.CipherDependencies{MasterKey: masterKey})
	require.NoError(t, err)

	layer := fieldcrypt.NewLayer(fieldcrypt.LayerDependencies{
		Cipher:        cipher,
		StateProvider: cipher,
		Breakers:      breaker.NewRegistry(breaker.RegistryDependencies{}),
	})

	e := NewEngine(EngineDependencies{
		CanvasID:       "c1",
		NodeStore:      store,
		EdgeStore:      store,
		FieldLayer:     layer,
		DebounceWindow: window,
	})
	t.Cleanup(e.Close)

	return e, cipher
}

func addAgent(t *testing.T, e *Engine, x, y float64) domain.Node {
	t.Helper()

	node, err := e.AddNode(context.Background(), AddNodeParams{
		Type:     domain.NodeTypeAgent,
		Position: domain.Position{X: x, Y: y},
	})
	require.NoError(t, err)

	return node
}

func TestAddNodeUsesDefaultConfig(t *testing.T) {
	e, _ := newTestEngine(t, newMemStore(), time.Hour)

	node := addAgent(t, e, 1, 2)

	assert.NotEmpty(t, node.ID)
	assert.Equal(t, "default", node.Config["model"])
	assert.Equal(t, domain.Position{X: 1, Y: 2}, node.Position)

	got, ok := e.GetNode(node.ID)
	require.True(t, ok)
	assert.Equal(t, node.Config, got.Config, "local state holds plaintext config")
}

func TestAddNodeRejectsNonFinitePosition(t *testing.T) {
	e, _ := newTestEngine(t, newMemStore(), time.Hour)

	_, err := e.AddNode(context.Background(), AddNodeParams{
		Type:     domain.NodeTypeAgent,
		Position: domain.Position{X: 1, Y: math.Inf(1)},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidPosition)
}

func TestAddNodeRejectsBadConfig(t *testing.T) {
	e, _ := newTestEngine(t, newMemStore(), time.Hour)

	_, err := e.AddNode(context.Background(), AddNodeParams{
		Type:     domain.NodeTypeAgent,
		Position: domain.Position{},
		Config:   map[string]any{"temperature": "hot"},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
}

func TestConnectRejectsDuplicate(t *testing.T) {
	e, _ := newTestEngine(t, newMemStore(), time.Hour)
	ctx := context.Background()

	a := addAgent(t, e, 0, 0)
	b := addAgent(t, e, 100, 0)

	_, err := e.Connect(ctx, domain.Connection{Source: a.ID, Target: b.ID})
	require.NoError(t, err)

	_, err = e.Connect(ctx, domain.Connection{Source: a.ID, Target: b.ID})
	assert.ErrorIs(t, err, domain.ErrDuplicateEdge)

	assert.Len(t, e.Snapshot().Edges, 1)

	// reverse direction is a different ordered pair
	_, err = e.Connect(ctx, domain.Connection{Source: b.ID, Target: a.ID})
	assert.NoError(t, err)
}

func TestConnectRejectsForeignCanvasNode(t *testing.T) {
	e, _ := newTestEngine(t, newMemStore(), time.Hour)
	ctx := context.Background()

	a := addAgent(t, e, 0, 0)

	// a store that does not scope its listing correctly could leak a node
	// from another canvas into local state; it must not become an endpoint
	foreign := domain.Node{ID: "n-foreign", CanvasID: "c2", Type: domain.NodeTypeAgent}
	e.mu.Lock()
	e.nodes[foreign.ID] = foreign
	e.mu.Unlock()

	_, err := e.Connect(ctx, domain.Connection{Source: a.ID, Target: foreign.ID})
	assert.ErrorIs(t, err, domain.ErrCrossCanvas)

	_, err = e.Connect(ctx, domain.Connection{Source: foreign.ID, Target: a.ID})
	assert.ErrorIs(t, err, domain.ErrCrossCanvas)

	assert.Empty(t, e.Snapshot().Edges)
}

func TestDeleteNodeCascadesEdges(t *testing.T) {
	store := newMemStore()
	e, _ := newTestEngine(t, store, time.Hour)
	ctx := context.Background()

	a := addAgent(t, e, 0, 0)
	b := addAgent(t, e, 100, 0)
	c := addAgent(t, e, 200, 0)

	_, err := e.Connect(ctx, domain.Connection{Source: a.ID, Target: b.ID})
	require.NoError(t, err)
	_, err = e.Connect(ctx, domain.Connection{Source: b.ID, Target: c.ID})
	require.NoError(t, err)

	require.NoError(t, e.DeleteNode(ctx, b.ID))

	snapshot := e.Snapshot()
	assert.Len(t, snapshot.Nodes, 2)
	assert.Empty(t, snapshot.Edges, "edges touching the deleted node are gone")

	edges, err := store.ListEdges(ctx, "c1")
	require.NoError(t, err)
	assert.Empty(t, edges)
}

func TestDebounceCoalescesPositionWrites(t *testing.T) {
	store := newMemStore()
	e, _ := newTestEngine(t, store, 30*time.Millisecond)
	ctx := context.Background()

	node := addAgent(t, e, 0, 0)

	require.NoError(t, e.UpdateNodePosition(ctx, node.ID, domain.Position{X: 10, Y: 10}))
	require.NoError(t, e.UpdateNodePosition(ctx, node.ID, domain.Position{X: 20, Y: 20}))
	require.NoError(t, e.UpdateNodePosition(ctx, node.ID, domain.Position{X: 30, Y: 30}))

	// local state reflects the latest move immediately
	got, _ := e.GetNode(node.ID)
	assert.Equal(t, domain.Position{X: 30, Y: 30}, got.Position)
	assert.Equal(t, 0, store.positionUpdateCount(), "no write before the window elapses")

	assert.Eventually(t, func() bool {
		return store.positionUpdateCount() == 1
	}, time.Second, 5*time.Millisecond)

	store.mu.Lock()
	persisted := store.nodes[node.ID].Position
	store.mu.Unlock()
	assert.Equal(t, domain.Position{X: 30, Y: 30}, persisted)

	// quiescence reached, no further writes
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 1, store.positionUpdateCount())
}

func TestDebouncedWriteAfterDeleteIsNoOp(t *testing.T) {
	store := newMemStore()
	e, _ := newTestEngine(t, store, 20*time.Millisecond)
	ctx := context.Background()

	node := addAgent(t, e, 0, 0)

	require.NoError(t, e.UpdateNodePosition(ctx, node.ID, domain.Position{X: 5, Y: 5}))
	require.NoError(t, e.DeleteNode(ctx, node.ID))

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 0, store.positionUpdateCount(), "deleted node is not resurrected")
}

func TestLoadWhileLockedPresentsEmptyGraph(t *testing.T) {
	store := newMemStore()
	e, cipher := newTestEngine(t, store, time.Hour)
	ctx := context.Background()

	addAgent(t, e, 0, 0)
	require.True(t, cipher.State().IsUnlocked)

	cipher.Lock()

	snapshot, err := e.Load(ctx)
	require.NoError(t, err)
	assert.True(t, snapshot.Locked)
	assert.Empty(t, snapshot.Nodes)
	assert.Empty(t, snapshot.Edges)
}

func TestLoadKeepsStructureOnCorruptFields(t *testing.T) {
	store := newMemStore()
	e, _ := newTestEngine(t, store, time.Hour)
	ctx := context.Background()

	node := addAgent(t, e, 7, 9)

	store.mu.Lock()
	record := store.nodes[node.ID]
	record.Label = "enc:v1:ZGVhZGJlZWZkZWFkYmVlZmRlYWRiZWVm"
	store.nodes[node.ID] = record
	store.mu.Unlock()

	snapshot, err := e.Load(ctx)
	require.NoError(t, err)
	require.Len(t, snapshot.Nodes, 1)

	loaded := snapshot.Nodes[0]
	assert.Equal(t, node.ID, loaded.ID)
	assert.Equal(t, domain.Position{X: 7, Y: 9}, loaded.Position)
	assert.Equal(t, record.Label, loaded.Label, "undecryptable field keeps its stored value")
}

func TestDuplicateNode(t *testing.T) {
	e, _ := newTestEngine(t, newMemStore(), time.Hour)
	ctx := context.Background()

	a := addAgent(t, e, 10, 20)
	b := addAgent(t, e, 100, 100)
	_, err := e.Connect(ctx, domain.Connection{Source: a.ID, Target: b.ID})
	require.NoError(t, err)

	dup, err := e.DuplicateNode(ctx, a.ID)
	require.NoError(t, err)

	assert.NotEqual(t, a.ID, dup.ID)
	assert.Equal(t, a.Type, dup.Type)
	assert.Equal(t, a.Config, dup.Config)
	assert.Equal(t, domain.Position{X: 50, Y: 60}, dup.Position)

	snapshot := e.Snapshot()
	assert.Len(t, snapshot.Nodes, 3)
	assert.Len(t, snapshot.Edges, 1, "duplication never copies edges")
}

func TestUpdateEdgeMetadata(t *testing.T) {
	store := newMemStore()
	e, _ := newTestEngine(t, store, time.Hour)
	ctx := context.Background()

	a := addAgent(t, e, 0, 0)
	b := addAgent(t, e, 1, 1)
	edge, err := e.Connect(ctx, domain.Connection{Source: a.ID, Target: b.ID})
	require.NoError(t, err)

	updated, err := e.UpdateEdgeMetadata(ctx, edge.ID, func(metadata map[string]any) map[string]any {
		metadata["flag"] = true
		return metadata
	})
	require.NoError(t, err)
	assert.Equal(t, true, updated.Metadata["flag"])

	stored, err := store.ListEdges(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, true, stored[0].Metadata["flag"])
}

func TestRefreshEdgesDiscardsStaleFetch(t *testing.T) {
	store := newMemStore()
	e, _ := newTestEngine(t, store, time.Hour)
	ctx := context.Background()

	a := addAgent(t, e, 0, 0)
	b := addAgent(t, e, 1, 1)
	c := addAgent(t, e, 2, 2)

	_, err := e.Connect(ctx, domain.Connection{Source: a.ID, Target: b.ID})
	require.NoError(t, err)

	// while the refresh fetch is in flight, a newer local mutation lands
	var once sync.Once
	store.onListEdges = func() {
		once.Do(func() {
			_, err := e.Connect(ctx, domain.Connection{Source: b.ID, Target: c.ID})
			require.NoError(t, err)
		})
	}

	require.NoError(t, e.RefreshEdges(ctx))

	assert.Len(t, e.Snapshot().Edges, 2, "stale refresh must not clobber the newer edge")
}
