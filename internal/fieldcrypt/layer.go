package fieldcrypt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/driftboard/driftboard/internal/domain"

	"github.com/rs/zerolog/log"
)

// Mode is the observable write-path mode of the layer.
type Mode string

const (
	// ModeActive encrypts sensitive fields before persistence.
	ModeActive Mode = "active"
	// ModeLocked means a key exists but is unavailable; writes pass
	// through as plaintext.
	ModeLocked Mode = "locked"
	// ModeDisabled means encryption was never set up.
	ModeDisabled Mode = "disabled"
)

type FieldCode int

const (
	// FieldOK means the plaintext was recovered.
	FieldOK FieldCode = iota
	// FieldPlaintext means the value was stored unencrypted and is returned as-is.
	FieldPlaintext
	// FieldLocked means the key is unavailable. Not counted as a failure.
	FieldLocked
	// FieldCorrupt is a genuine decryption failure, counted by the breaker.
	FieldCorrupt
	// FieldSuppressed means the breaker is open and decryption was skipped.
	FieldSuppressed
)

// FieldResult is the independent outcome of one field's decryption. Value
// holds the plaintext on FieldOK/FieldPlaintext and the original stored
// value otherwise.
type FieldResult struct {
	Value string
	Code  FieldCode
	Err   error
}

func (r FieldResult) Readable() bool {
	return r.Code == FieldOK || r.Code == FieldPlaintext
}

type NodeDecryptReport struct {
	Label  FieldResult
	Config FieldResult
}

func (r NodeDecryptReport) AllReadable() bool {
	return r.Label.Readable() && r.Config.Readable()
}

type EdgeDecryptReport struct {
	Label     FieldResult
	Condition FieldResult
	Transform FieldResult
}

func (r EdgeDecryptReport) AllReadable() bool {
	return r.Label.Readable() && r.Condition.Readable() && r.Transform.Readable()
}

// Layer encrypts and decrypts the designated sensitive fields of nodes and
// edges, one field at a time. Partial success is a normal outcome.
type Layer struct {
	cipher   domain.Cipher
	state    domain.CipherStateProvider
	breakers domain.BreakerRegistry
}

type LayerDependencies struct {
	Cipher        domain.Cipher
	StateProvider domain.CipherStateProvider
	Breakers      domain.BreakerRegistry
}

func NewLayer(deps LayerDependencies) *Layer {
	return &Layer{
		cipher:   deps.Cipher,
		state:    deps.StateProvider,
		breakers: deps.Breakers,
	}
}

func (l *Layer) Mode() Mode {
	state := l.state.State()

	switch {
	case !state.HasEncryption:
		return ModeDisabled
	case !state.IsUnlocked:
		return ModeLocked
	default:
		return ModeActive
	}
}

// EncryptNode produces the stored shape of a node. The runtime projection is
// extracted before encryption so non-decrypting readers keep access to it.
// The returned mode tells the caller whether fields were actually encrypted.
func (l *Layer) EncryptNode(ctx context.Context, node domain.Node) (domain.NodeRecord, Mode, error) {
	mode := l.Mode()

	runtime, rest := domain.ExtractRuntimeConfig(node.Config)

	record := domain.NodeRecord{
		ID:        node.ID,
		CanvasID:  node.CanvasID,
		Type:      node.Type,
		Position:  node.Position,
		Runtime:   runtime,
		IsExposed: node.IsExposed,
		CreatedAt: node.CreatedAt,
		UpdatedAt: node.UpdatedAt,
	}

	if mode != ModeActive {
		encoded, err := json.Marshal(rest)
		if err != nil {
			return domain.NodeRecord{}, mode, fmt.Errorf("failed to encode node config: %w", err)
		}

		record.Label = node.Label
		record.Config = string(encoded)

		return record, mode, nil
	}

	if node.Label != "" {
		label, err := l.cipher.EncryptText(ctx, node.Label)
		if err != nil {
			return domain.NodeRecord{}, mode, fmt.Errorf("failed to encrypt node label: %w", err)
		}
		record.Label = label
	}

	config, err := l.cipher.EncryptObject(ctx, rest)
	if err != nil {
		return domain.NodeRecord{}, mode, fmt.Errorf("failed to encrypt node config: %w", err)
	}
	record.Config = config

	return record, mode, nil
}

// DecryptNode reverses EncryptNode field by field. A node with unreadable
// fields is still returned with its structural data intact.
func (l *Layer) DecryptNode(ctx context.Context, record domain.NodeRecord) (domain.Node, NodeDecryptReport) {
	breaker := l.breakers.Get(domain.BreakerKeyCanvasNodes)

	node := domain.Node{
		ID:        record.ID,
		CanvasID:  record.CanvasID,
		Type:      record.Type,
		Position:  record.Position,
		IsExposed: record.IsExposed,
		CreatedAt: record.CreatedAt,
		UpdatedAt: record.UpdatedAt,
	}

	report := NodeDecryptReport{
		Label:  l.decryptField(ctx, breaker, record.Label),
		Config: l.decryptObjectField(ctx, breaker, record.Config),
	}

	node.Label = report.Label.Value

	var rest map[string]any
	if report.Config.Readable() && report.Config.Value != "" {
		if err := json.Unmarshal([]byte(report.Config.Value), &rest); err != nil {
			report.Config = FieldResult{Value: record.Config, Code: FieldCorrupt, Err: err}
		}
	}
	node.Config = domain.MergeRuntimeConfig(rest, record.Runtime)

	return node, report
}

// EncryptEdge encrypts the sensitive edge fields. Metadata is not sensitive
// and is stored as-is.
func (l *Layer) EncryptEdge(ctx context.Context, edge domain.Edge) (domain.Edge, Mode, error) {
	mode := l.Mode()
	if mode != ModeActive {
		return edge, mode, nil
	}

	encrypted := edge

	for _, field := range []struct {
		name  string
		value string
		dst   *string
	}{
		{"label", edge.Label, &encrypted.Label},
		{"condition", edge.Condition, &encrypted.Condition},
		{"transform", edge.Transform, &encrypted.Transform},
	} {
		if field.value == "" {
			continue
		}

		ciphertext, err := l.cipher.EncryptText(ctx, field.value)
		if err != nil {
			return domain.Edge{}, mode, fmt.Errorf("failed to encrypt edge %s: %w", field.name, err)
		}
		*field.dst = ciphertext
	}

	return encrypted, mode, nil
}

// DecryptEdge reverses EncryptEdge field by field.
func (l *Layer) DecryptEdge(ctx context.Context, edge domain.Edge) (domain.Edge, EdgeDecryptReport) {
	breaker := l.breakers.Get(domain.BreakerKeyCanvasEdges)

	report := EdgeDecryptReport{
		Label:     l.decryptField(ctx, breaker, edge.Label),
		Condition: l.decryptField(ctx, breaker, edge.Condition),
		Transform: l.decryptField(ctx, breaker, edge.Transform),
	}

	decrypted := edge
	decrypted.Label = report.Label.Value
	decrypted.Condition = report.Condition.Value
	decrypted.Transform = report.Transform.Value

	return decrypted, report
}

// decryptField handles one stored text value. Breaker-open short-circuits to
// the original value; locked is not a failure; corruption feeds the breaker.
func (l *Layer) decryptField(ctx context.Context, breaker domain.DecryptionBreaker, value string) FieldResult {
	if value == "" {
		return FieldResult{Value: "", Code: FieldOK}
	}

	if !IsEncrypted(value) {
		return FieldResult{Value: value, Code: FieldPlaintext}
	}

	if !breaker.Allow() {
		return FieldResult{Value: value, Code: FieldSuppressed}
	}

	plaintext, err := l.cipher.DecryptText(ctx, value)
	if err != nil {
		return l.classifyFailure(breaker, value, err)
	}

	breaker.RecordSuccess()

	return FieldResult{Value: plaintext, Code: FieldOK}
}

func (l *Layer) decryptObjectField(ctx context.Context, breaker domain.DecryptionBreaker, value string) FieldResult {
	if value == "" {
		return FieldResult{Value: "", Code: FieldOK}
	}

	if !IsEncrypted(value) {
		return FieldResult{Value: value, Code: FieldPlaintext}
	}

	if !breaker.Allow() {
		return FieldResult{Value: value, Code: FieldSuppressed}
	}

	object, err := l.cipher.DecryptObject(ctx, value)
	if err != nil {
		return l.classifyFailure(breaker, value, err)
	}

	breaker.RecordSuccess()

	encoded, err := json.Marshal(object)
	if err != nil {
		return FieldResult{Value: value, Code: FieldCorrupt, Err: err}
	}

	return FieldResult{Value: string(encoded), Code: FieldOK}
}

func (l *Layer) classifyFailure(breaker domain.DecryptionBreaker, value string, err error) FieldResult {
	if errors.Is(err, ErrCipherLocked) || errors.Is(err, ErrNoEncryption) {
		return FieldResult{Value: value, Code: FieldLocked, Err: err}
	}

	log.Error().Err(err).Msg("Field decryption failed")
	breaker.RecordFailure(err)

	return FieldResult{Value: value, Code: FieldCorrupt, Err: err}
}
