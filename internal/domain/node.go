package domain

import (
	"errors"
	"fmt"
	"math"
	"time"
)

type NodeType string

const (
	NodeTypeAgent    NodeType = "agent"
	NodeTypeTrigger  NodeType = "trigger"
	NodeTypeRouter   NodeType = "router"
	NodeTypeCompiler NodeType = "compiler"
	NodeTypeTool     NodeType = "tool"
	NodeTypeNote     NodeType = "note"
)

var (
	ErrNodeNotFound    = errors.New("node not found")
	ErrInvalidPosition = errors.New("node position must be finite")
	ErrUnknownNodeType = errors.New("unknown node type")
	ErrInvalidConfig   = errors.New("node config does not match its type")
)

type Position struct {
	X float64
	Y float64
}

func (p Position) IsFinite() bool {
	return !math.IsNaN(p.X) && !math.IsInf(p.X, 0) && !math.IsNaN(p.Y) && !math.IsInf(p.Y, 0)
}

type Node struct {
	ID        string
	CanvasID  string
	Type      NodeType
	Position  Position
	Label     string
	Config    map[string]any
	IsExposed bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (n Node) IsAgent() bool {
	return n.Type == NodeTypeAgent
}

// configSchema describes the structural shape a node type's config must have.
// Required keys must be present; typed keys must match when present.
type configSchema struct {
	required map[string]configValueKind
	optional map[string]configValueKind
}

type configValueKind int

const (
	kindString configValueKind = iota
	kindNumber
	kindBool
	kindMap
	kindList
)

var nodeConfigSchemas = map[NodeType]configSchema{
	NodeTypeAgent: {
		required: map[string]configValueKind{"model": kindString},
		optional: map[string]configValueKind{
			"system_prompt": kindString,
			"temperature":   kindNumber,
			"tools":         kindList,
			"runtime":       kindMap,
		},
	},
	NodeTypeTrigger: {
		required: map[string]configValueKind{"event": kindString},
		optional: map[string]configValueKind{"filter": kindMap},
	},
	NodeTypeRouter: {
		required: map[string]configValueKind{},
		optional: map[string]configValueKind{"routes": kindList, "fallback": kindString},
	},
	NodeTypeCompiler: {
		required: map[string]configValueKind{},
		optional: map[string]configValueKind{"template": kindString, "format": kindString},
	},
	NodeTypeTool: {
		required: map[string]configValueKind{"tool_name": kindString},
		optional: map[string]configValueKind{"parameters": kindMap},
	},
	NodeTypeNote: {
		required: map[string]configValueKind{},
		optional: map[string]configValueKind{"text": kindString, "color": kindString},
	},
}

var defaultNodeConfigs = map[NodeType]func() map[string]any{
	NodeTypeAgent: func() map[string]any {
		return map[string]any{"model": "default", "system_prompt": ""}
	},
	NodeTypeTrigger: func() map[string]any {
		return map[string]any{"event": "manual"}
	},
	NodeTypeRouter: func() map[string]any {
		return map[string]any{"routes": []any{}}
	},
	NodeTypeCompiler: func() map[string]any {
		return map[string]any{"template": "", "format": "text"}
	},
	NodeTypeTool: func() map[string]any {
		return map[string]any{"tool_name": "", "parameters": map[string]any{}}
	},
	NodeTypeNote: func() map[string]any {
		return map[string]any{"text": ""}
	},
}

// DefaultNodeConfig returns a fresh default config for the given node type.
func DefaultNodeConfig(nodeType NodeType) (map[string]any, error) {
	factory, ok := defaultNodeConfigs[nodeType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownNodeType, nodeType)
	}

	return factory(), nil
}

// ValidateNodeConfig checks a config structurally against the schema for its
// node type. It does not decrypt or interpret values.
func ValidateNodeConfig(nodeType NodeType, config map[string]any) error {
	schema, ok := nodeConfigSchemas[nodeType]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownNodeType, nodeType)
	}

	for key, kind := range schema.required {
		value, present := config[key]
		if !present {
			return fmt.Errorf("%w: missing required key %q for type %s", ErrInvalidConfig, key, nodeType)
		}
		if !matchesKind(value, kind) {
			return fmt.Errorf("%w: key %q has wrong shape for type %s", ErrInvalidConfig, key, nodeType)
		}
	}

	for key, kind := range schema.optional {
		if value, present := config[key]; present && !matchesKind(value, kind) {
			return fmt.Errorf("%w: key %q has wrong shape for type %s", ErrInvalidConfig, key, nodeType)
		}
	}

	return nil
}

func matchesKind(value any, kind configValueKind) bool {
	if value == nil {
		return true
	}

	switch kind {
	case kindString:
		_, ok := value.(string)
		return ok
	case kindNumber:
		switch value.(type) {
		case float64, float32, int, int32, int64:
			return true
		}
		return false
	case kindBool:
		_, ok := value.(bool)
		return ok
	case kindMap:
		_, ok := value.(map[string]any)
		return ok
	case kindList:
		_, ok := value.([]any)
		return ok
	}

	return false
}

// RuntimeConfigKeys are the config sub-fields that evaluators read without
// decrypting. They are extracted before encryption and stored as a plaintext
// projection next to the encrypted blob.
var RuntimeConfigKeys = []string{"runtime", "is_exposed"}

// ExtractRuntimeConfig splits config into the plaintext runtime projection and
// the remainder that gets encrypted. The input map is not modified.
func ExtractRuntimeConfig(config map[string]any) (runtime map[string]any, rest map[string]any) {
	runtime = map[string]any{}
	rest = make(map[string]any, len(config))

	exposed := map[string]bool{}
	for _, key := range RuntimeConfigKeys {
		exposed[key] = true
	}

	for key, value := range config {
		if exposed[key] {
			runtime[key] = value
			continue
		}
		rest[key] = value
	}

	return runtime, rest
}

// MergeRuntimeConfig recombines a decrypted config with its plaintext runtime
// projection, the inverse of ExtractRuntimeConfig.
func MergeRuntimeConfig(rest map[string]any, runtime map[string]any) map[string]any {
	merged := make(map[string]any, len(rest)+len(runtime))
	for key, value := range rest {
		merged[key] = value
	}
	for key, value := range runtime {
		merged[key] = value
	}

	return merged
}
