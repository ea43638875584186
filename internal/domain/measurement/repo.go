package measurement

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrNotFound is returned by repositories for an unknown extraction ID.
var ErrNotFound = errors.New("extraction not found")

// ExtractionRepository stores extractions, newest first.
type ExtractionRepository interface {
	Create(ctx context.Context, e *Extraction) error
	GetByID(ctx context.Context, id uuid.UUID) (*Extraction, error)
	List(ctx context.Context, limit, offset int) ([]*Extraction, int, error)
	ListByInstance(ctx context.Context, instanceID string, limit, offset int) ([]*Extraction, int, error)
	Ping(ctx context.Context) error
}
