package controllers

import (
	"time"

	"github.com/driftboard/driftboard/internal/domain"
)

type nodeView struct {
	ID        string          `json:"id"`
	CanvasID  string          `json:"canvas_id"`
	Type      domain.NodeType `json:"type"`
	Position  positionPayload `json:"position"`
	Label     string          `json:"label"`
	Config    map[string]any  `json:"config"`
	IsExposed bool            `json:"is_exposed"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type edgeView struct {
	ID         string         `json:"id"`
	CanvasID   string         `json:"canvas_id"`
	FromNodeID string         `json:"from_node_id"`
	FromPort   string         `json:"from_port,omitempty"`
	ToNodeID   string         `json:"to_node_id"`
	ToPort     string         `json:"to_port,omitempty"`
	Condition  string         `json:"condition,omitempty"`
	Transform  string         `json:"transform,omitempty"`
	Label      string         `json:"label,omitempty"`
	Metadata   map[string]any `json:"metadata"`
	CreatedAt  time.Time      `json:"created_at"`
}

type snapshotView struct {
	CanvasID string     `json:"canvas_id"`
	Nodes    []nodeView `json:"nodes"`
	Edges    []edgeView `json:"edges"`
	Locked   bool       `json:"locked"`
}

func nodeResponse(node domain.Node) nodeView {
	return nodeView{
		ID:        node.ID,
		CanvasID:  node.CanvasID,
		Type:      node.Type,
		Position:  positionPayload{X: node.Position.X, Y: node.Position.Y},
		Label:     node.Label,
		Config:    node.Config,
		IsExposed: node.IsExposed,
		CreatedAt: node.CreatedAt,
		UpdatedAt: node.UpdatedAt,
	}
}

func edgeResponse(edge domain.Edge) edgeView {
	return edgeView{
		ID:         edge.ID,
		CanvasID:   edge.CanvasID,
		FromNodeID: edge.FromNodeID,
		FromPort:   edge.FromPort,
		ToNodeID:   edge.ToNodeID,
		ToPort:     edge.ToPort,
		Condition:  edge.Condition,
		Transform:  edge.Transform,
		Label:      edge.Label,
		Metadata:   edge.Metadata,
		CreatedAt:  edge.CreatedAt,
	}
}

func snapshotResponse(snapshot domain.GraphSnapshot) snapshotView {
	view := snapshotView{
		CanvasID: snapshot.CanvasID,
		Locked:   snapshot.Locked,
		Nodes:    make([]nodeView, 0, len(snapshot.Nodes)),
		Edges:    make([]edgeView, 0, len(snapshot.Edges)),
	}

	for _, node := range snapshot.Nodes {
		view.Nodes = append(view.Nodes, nodeResponse(node))
	}
	for _, edge := range snapshot.Edges {
		view.Edges = append(view.Edges, edgeResponse(edge))
	}

	return view
}
