package postgres

import (
	"context"
	"time"

	"github.com/driftboard/driftboard/internal/domain"

	"github.com/google/uuid"
)

func (s *Store) ListNodes(ctx context.Context, canvasID string) ([]domain.NodeRecord, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, canvas_id, node_type, x_position, y_position, label, config,
                        runtime_config, is_exposed, created_at, updated_at
                 FROM canvas_nodes WHERE canvas_id = $1 ORDER BY created_at`, canvasID)
	if err != nil {
		return nil, storeErr("list nodes", err)
	}
	defer rows.Close()

	records := []domain.NodeRecord{}
	for rows.Next() {
		var r domain.NodeRecord
		if err := rows.Scan(&r.ID, &r.CanvasID, &r.Type, &r.Position.X, &r.Position.Y,
			&r.Label, &r.Config, &r.Runtime, &r.IsExposed, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, storeErr("scan node", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list nodes", err)
	}

	return records, nil
}

func (s *Store) InsertNode(ctx context.Context, record domain.NodeRecord) (domain.NodeRecord, error) {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.Runtime == nil {
		record.Runtime = map[string]any{}
	}

	now := time.Now().UTC()
	record.CreatedAt = now
	record.UpdatedAt = now

	_, err := s.db.Exec(ctx,
		`INSERT INTO canvas_nodes
                        (id, canvas_id, node_type, x_position, y_position, label, config,
                         runtime_config, is_exposed, created_at, updated_at)
                 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		record.ID, record.CanvasID, record.Type, record.Position.X, record.Position.Y,
		record.Label, record.Config, record.Runtime, record.IsExposed,
		record.CreatedAt, record.UpdatedAt,
	)
	if err != nil {
		return domain.NodeRecord{}, storeErr("insert node", err)
	}

	return record, nil
}

// UpdateNode applies a partial update scoped by canvas. Immutable columns
// (id, canvas_id, created_at) are never part of the SET clause.
func (s *Store) UpdateNode(ctx context.Context, canvasID, nodeID string, update domain.NodeUpdate) error {
	var x, y *float64
	if update.Position != nil {
		x, y = &update.Position.X, &update.Position.Y
	}

	ct, err := s.db.Exec(ctx,
		`UPDATE canvas_nodes SET
                        x_position     = COALESCE($3, x_position),
                        y_position     = COALESCE($4, y_position),
                        label          = COALESCE($5, label),
                        config         = COALESCE($6, config),
                        runtime_config = COALESCE($7, runtime_config),
                        is_exposed     = COALESCE($8, is_exposed),
                        updated_at     = now()
                 WHERE id = $1 AND canvas_id = $2`,
		nodeID, canvasID, x, y, update.Label, update.Config, update.Runtime, update.IsExposed)
	if err != nil {
		return storeErr("update node", err)
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrNodeNotFound
	}

	return nil
}

// DeleteNode removes the node; edges touching it cascade at the database.
func (s *Store) DeleteNode(ctx context.Context, canvasID, nodeID string) error {
	ct, err := s.db.Exec(ctx,
		`DELETE FROM canvas_nodes WHERE id = $1 AND canvas_id = $2`, nodeID, canvasID)
	if err != nil {
		return storeErr("delete node", err)
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrNodeNotFound
	}

	return nil
}
