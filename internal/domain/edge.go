package domain

import (
	"errors"
	"time"
)

var (
	ErrEdgeNotFound  = errors.New("edge not found")
	ErrDuplicateEdge = errors.New("nodes are already connected")
	ErrCrossCanvas   = errors.New("edge endpoints belong to different canvases")
)

type Edge struct {
	ID         string
	CanvasID   string
	FromNodeID string
	FromPort   string
	ToNodeID   string
	ToPort     string
	Condition  string
	Transform  string
	Label      string
	Metadata   map[string]any
	CreatedAt  time.Time
}

// Connects reports whether the edge links exactly the given ordered pair.
func (e Edge) Connects(fromNodeID, toNodeID string) bool {
	return e.FromNodeID == fromNodeID && e.ToNodeID == toNodeID
}

// Touches reports whether the edge references the node as either endpoint.
func (e Edge) Touches(nodeID string) bool {
	return e.FromNodeID == nodeID || e.ToNodeID == nodeID
}
