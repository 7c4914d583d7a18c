package postgres

import (
	"context"
	"time"

	"github.com/driftboard/driftboard/internal/domain"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
)

func (s *Store) CreateCanvas(ctx context.Context, canvas domain.Canvas) (domain.Canvas, error) {
	if canvas.ID == "" {
		canvas.ID = uuid.NewString()
	}
	if canvas.Mode == "" {
		canvas.Mode = domain.CanvasModeDefault
	}
	canvas.Slug = slug.Make(canvas.Name)

	now := time.Now().UTC()
	canvas.CreatedAt = now
	canvas.UpdatedAt = now

	_, err := s.db.Exec(ctx,
		`INSERT INTO canvases (id, owner_id, name, slug, mode, created_at, updated_at)
                 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		canvas.ID, canvas.OwnerID, canvas.Name, canvas.Slug, canvas.Mode, canvas.CreatedAt, canvas.UpdatedAt,
	)
	if err != nil {
		return domain.Canvas{}, storeErr("insert canvas", err)
	}

	return canvas, nil
}

func (s *Store) GetCanvas(ctx context.Context, canvasID string) (domain.Canvas, error) {
	var c domain.Canvas
	err := s.db.QueryRow(ctx,
		`SELECT id, owner_id, name, slug, mode, created_at, updated_at
                 FROM canvases WHERE id = $1`, canvasID,
	).Scan(&c.ID, &c.OwnerID, &c.Name, &c.Slug, &c.Mode, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if isNoRows(err) {
			return domain.Canvas{}, domain.ErrCanvasNotFound
		}
		return domain.Canvas{}, storeErr("get canvas", err)
	}

	return c, nil
}

func (s *Store) ListCanvases(ctx context.Context, ownerID string) ([]domain.Canvas, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, owner_id, name, slug, mode, created_at, updated_at
                 FROM canvases WHERE owner_id = $1 ORDER BY created_at`, ownerID)
	if err != nil {
		return nil, storeErr("list canvases", err)
	}
	defer rows.Close()

	canvases := []domain.Canvas{}
	for rows.Next() {
		var c domain.Canvas
		if err := rows.Scan(&c.ID, &c.OwnerID, &c.Name, &c.Slug, &c.Mode, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, storeErr("scan canvas", err)
		}
		canvases = append(canvases, c)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list canvases", err)
	}

	return canvases, nil
}

func (s *Store) UpdateCanvas(ctx context.Context, canvasID string, name *string, mode *domain.CanvasMode) error {
	var newSlug *string
	if name != nil {
		s := slug.Make(*name)
		newSlug = &s
	}

	ct, err := s.db.Exec(ctx,
		`UPDATE canvases SET
                        name = COALESCE($2, name),
                        slug = COALESCE($3, slug),
                        mode = COALESCE($4, mode),
                        updated_at = now()
                 WHERE id = $1`,
		canvasID, name, newSlug, mode)
	if err != nil {
		return storeErr("update canvas", err)
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrCanvasNotFound
	}

	return nil
}

// DeleteCanvas removes the canvas; nodes and edges cascade at the database.
func (s *Store) DeleteCanvas(ctx context.Context, canvasID string) error {
	ct, err := s.db.Exec(ctx, `DELETE FROM canvases WHERE id = $1`, canvasID)
	if err != nil {
		return storeErr("delete canvas", err)
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrCanvasNotFound
	}

	return nil
}
