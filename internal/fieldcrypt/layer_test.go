package fieldcrypt

import (
	"context"
	"testing"

	"github.com/driftboard/driftboard/internal/breaker"
	"github.com/driftboard/driftboard/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLayer(t *testing.T, masterKey string) (*Layer, *keyCipher, domain.BreakerRegistry) {
	t.Helper()

	cipher, err := NewKeyCipher(CipherDependencies{MasterKey: masterKey})
	require.NoError(t, err)

	registry := breaker.NewRegistry(breaker.RegistryDependencies{FailureThreshold: 3})

	layer := NewLayer(LayerDependencies{
		Cipher:        cipher,
		StateProvider: cipher,
		Breakers:      registry,
	})

	return layer, cipher, registry
}

func mustMasterKey(t *testing.T) string {
	t.Helper()

	key, err := GenerateMasterKey()
	require.NoError(t, err)

	return key
}

func TestEncryptNodeExtractsRuntimeProjection(t *testing.T) {
	layer, _, _ := newTestLayer(t, mustMasterKey(t))
	ctx := context.Background()

	node := domain.Node{
		ID:       "n1",
		CanvasID: "c1",
		Type:     domain.NodeTypeAgent,
		Label:    "Research agent",
		Config: map[string]any{
			"model":   "x",
			"runtime": map[string]any{"max_steps": float64(5)},
		},
		IsExposed: true,
	}

	record, mode, err := layer.EncryptNode(ctx, node)
	require.NoError(t, err)
	assert.Equal(t, ModeActive, mode)

	// sensitive fields are opaque, projection stays readable
	assert.True(t, IsEncrypted(record.Label))
	assert.True(t, IsEncrypted(record.Config))
	assert.Equal(t, map[string]any{"max_steps": float64(5)}, record.Runtime["runtime"])
	assert.True(t, record.IsExposed)

	decrypted, report := layer.DecryptNode(ctx, record)
	assert.True(t, report.AllReadable())
	assert.Equal(t, "Research agent", decrypted.Label)
	assert.Equal(t, "x", decrypted.Config["model"])
	assert.Equal(t, map[string]any{"max_steps": float64(5)}, decrypted.Config["runtime"])
}

func TestEncryptNodePassthroughWhenDisabled(t *testing.T) {
	layer, _, _ := newTestLayer(t, "")
	ctx := context.Background()

	node := domain.Node{
		ID:     "n1",
		Type:   domain.NodeTypeAgent,
		Label:  "plain",
		Config: map[string]any{"model": "x"},
	}

	record, mode, err := layer.EncryptNode(ctx, node)
	require.NoError(t, err)
	assert.Equal(t, ModeDisabled, mode)
	assert.Equal(t, "plain", record.Label)
	assert.False(t, IsEncrypted(record.Config))

	decrypted, report := layer.DecryptNode(ctx, record)
	assert.Equal(t, FieldPlaintext, report.Label.Code)
	assert.Equal(t, "plain", decrypted.Label)
	assert.Equal(t, "x", decrypted.Config["model"])
}

func TestEncryptNodePassthroughWhenLocked(t *testing.T) {
	layer, cipher, _ := newTestLayer(t, mustMasterKey(t))
	cipher.Lock()

	record, mode, err := layer.EncryptNode(context.Background(), domain.Node{
		Label:  "plain",
		Type:   domain.NodeTypeNote,
		Config: map[string]any{"text": "hi"},
	})
	require.NoError(t, err)
	assert.Equal(t, ModeLocked, mode)
	assert.Equal(t, "plain", record.Label)
}

func TestDecryptNodePartialFailure(t *testing.T) {
	layer, _, _ := newTestLayer(t, mustMasterKey(t))
	ctx := context.Background()

	record, _, err := layer.EncryptNode(ctx, domain.Node{
		ID:    "n1",
		Type:  domain.NodeTypeAgent,
		Label: "readable",
		Config: map[string]any{
			"model": "x",
		},
		Position: domain.Position{X: 10, Y: 20},
	})
	require.NoError(t, err)

	// corrupt only the config blob
	record.Config = "enc:v1:AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

	node, report := layer.DecryptNode(ctx, record)

	assert.Equal(t, FieldOK, report.Label.Code)
	assert.Equal(t, "readable", node.Label)

	assert.Equal(t, FieldCorrupt, report.Config.Code)
	assert.False(t, report.AllReadable())

	// structure survives even when content is unreadable
	assert.Equal(t, "n1", node.ID)
	assert.Equal(t, domain.Position{X: 10, Y: 20}, node.Position)
}

func TestDecryptEdgeFieldsIndependent(t *testing.T) {
	layer, _, _ := newTestLayer(t, mustMasterKey(t))
	ctx := context.Background()

	edge, mode, err := layer.EncryptEdge(ctx, domain.Edge{
		ID:        "e1",
		Label:     "route",
		Condition: "x > 1",
		Transform: "",
	})
	require.NoError(t, err)
	require.Equal(t, ModeActive, mode)

	edge.Condition = "enc:v1:ZGVhZGJlZWZkZWFkYmVlZmRlYWRiZWVm"

	decrypted, report := layer.DecryptEdge(ctx, edge)

	assert.Equal(t, FieldOK, report.Label.Code)
	assert.Equal(t, "route", decrypted.Label)

	assert.Equal(t, FieldCorrupt, report.Condition.Code)
	assert.Equal(t, edge.Condition, decrypted.Condition, "failed field keeps its stored value")

	assert.Equal(t, FieldOK, report.Transform.Code)
	assert.Equal(t, "", decrypted.Transform)
}

func TestBreakerSuppressionAfterRepeatedCorruption(t *testing.T) {
	layer, _, registry := newTestLayer(t, mustMasterKey(t))
	ctx := context.Background()

	corrupt := domain.Edge{Label: "enc:v1:ZGVhZGJlZWZkZWFkYmVlZmRlYWRiZWVm"}

	for i := 0; i < 3; i++ {
		_, report := layer.DecryptEdge(ctx, corrupt)
		assert.Equal(t, FieldCorrupt, report.Label.Code)
	}

	edgeBreaker := registry.Get(domain.BreakerKeyCanvasEdges)
	require.False(t, edgeBreaker.Allow())

	// while open, decryption is skipped and the stored value returned
	decrypted, report := layer.DecryptEdge(ctx, corrupt)
	assert.Equal(t, FieldSuppressed, report.Label.Code)
	assert.Equal(t, corrupt.Label, decrypted.Label)

	// node breaker unaffected
	assert.True(t, registry.Get(domain.BreakerKeyCanvasNodes).Allow())

	edgeBreaker.Reset()

	_, report = layer.DecryptEdge(ctx, corrupt)
	assert.Equal(t, FieldCorrupt, report.Label.Code, "after reset decryption is attempted again")
}

func TestLockedFieldsDoNotFeedBreaker(t *testing.T) {
	layer, cipher, registry := newTestLayer(t, mustMasterKey(t))
	ctx := context.Background()

	edge, _, err := layer.EncryptEdge(ctx, domain.Edge{Label: "secret"})
	require.NoError(t, err)

	cipher.Lock()

	for i := 0; i < 10; i++ {
		_, report := layer.DecryptEdge(ctx, edge)
		assert.Equal(t, FieldLocked, report.Label.Code)
	}

	assert.True(t, registry.Get(domain.BreakerKeyCanvasEdges).Allow())
	assert.Equal(t, 0, registry.Get(domain.BreakerKeyCanvasEdges).State().ConsecutiveFailures)
}
