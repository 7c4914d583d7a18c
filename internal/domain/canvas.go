package domain

import (
	"errors"
	"time"
)

type CanvasMode string

const (
	CanvasModeDefault  CanvasMode = "default"
	CanvasModeReadOnly CanvasMode = "read_only"
)

var (
	ErrCanvasNotFound = errors.New("canvas not found")
)

type Canvas struct {
	ID        string
	OwnerID   string
	Name      string
	Slug      string
	Mode      CanvasMode
	CreatedAt time.Time
	UpdatedAt time.Time
}
