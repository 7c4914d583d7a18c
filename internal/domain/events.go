package domain

type ChangeType string

const (
	ChangeTypePosition ChangeType = "position"
	ChangeTypeRemove   ChangeType = "remove"
	ChangeTypeSelect   ChangeType = "select"
)

// NodeChange is a raw change event emitted by the editor surface for a node.
type NodeChange struct {
	Type     ChangeType
	NodeID   string
	Position *Position
	Selected bool
}

// EdgeChange is a raw change event emitted by the editor surface for an edge.
type EdgeChange struct {
	Type     ChangeType
	EdgeID   string
	Selected bool
}

// Connection is a connect gesture between two node handles.
type Connection struct {
	Source       string
	Target       string
	SourceHandle string
	TargetHandle string
}

// GraphSnapshot is the plain view of the current canvas handed to the editor
// surface. Sensitive fields are plaintext here; ciphertext never reaches it
// except when decryption failed and the topology is still shown.
type GraphSnapshot struct {
	CanvasID string
	Nodes    []Node
	Edges    []Edge
	Locked   bool
}
