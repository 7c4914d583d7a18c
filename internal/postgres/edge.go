package postgres

import (
	"context"
	"time"

	"github.com/driftboard/driftboard/internal/domain"

	"github.com/google/uuid"
)

func (s *Store) ListEdges(ctx context.Context, canvasID string) ([]domain.Edge, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, canvas_id, from_node_id, to_node_id, from_port, to_port,
                        condition, transform, label, metadata, created_at
                 FROM canvas_edges WHERE canvas_id = $1 ORDER BY created_at`, canvasID)
	if err != nil {
		return nil, storeErr("list edges", err)
	}
	defer rows.Close()

	edges := []domain.Edge{}
	for rows.Next() {
		var e domain.Edge
		if err := rows.Scan(&e.ID, &e.CanvasID, &e.FromNodeID, &e.ToNodeID, &e.FromPort, &e.ToPort,
			&e.Condition, &e.Transform, &e.Label, &e.Metadata, &e.CreatedAt); err != nil {
			return nil, storeErr("scan edge", err)
		}
		edges = append(edges, e)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list edges", err)
	}

	return edges, nil
}

func (s *Store) InsertEdge(ctx context.Context, edge domain.Edge) (domain.Edge, error) {
	if edge.ID == "" {
		edge.ID = uuid.NewString()
	}
	if edge.Metadata == nil {
		edge.Metadata = map[string]any{}
	}
	edge.CreatedAt = time.Now().UTC()

	_, err := s.db.Exec(ctx,
		`INSERT INTO canvas_edges
                        (id, canvas_id, from_node_id, to_node_id, from_port, to_port,
                         condition, transform, label, metadata, created_at)
                 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		edge.ID, edge.CanvasID, edge.FromNodeID, edge.ToNodeID, edge.FromPort, edge.ToPort,
		edge.Condition, edge.Transform, edge.Label, edge.Metadata, edge.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Edge{}, domain.ErrDuplicateEdge
		}
		return domain.Edge{}, storeErr("insert edge", err)
	}

	return edge, nil
}

func (s *Store) UpdateEdge(ctx context.Context, canvasID, edgeID string, update domain.EdgeUpdate) error {
	ct, err := s.db.Exec(ctx,
		`UPDATE canvas_edges SET
                        label     = COALESCE($3, label),
                        condition = COALESCE($4, condition),
                        transform = COALESCE($5, transform),
                        metadata  = COALESCE($6, metadata)
                 WHERE id = $1 AND canvas_id = $2`,
		edgeID, canvasID, update.Label, update.Condition, update.Transform, update.Metadata)
	if err != nil {
		return storeErr("update edge", err)
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrEdgeNotFound
	}

	return nil
}

func (s *Store) DeleteEdge(ctx context.Context, canvasID, edgeID string) error {
	ct, err := s.db.Exec(ctx,
		`DELETE FROM canvas_edges WHERE id = $1 AND canvas_id = $2`, edgeID, canvasID)
	if err != nil {
		return storeErr("delete edge", err)
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrEdgeNotFound
	}

	return nil
}
