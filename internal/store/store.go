package store

import (
	"context"
	"errors"

	"github.com/multiviral/api/internal/model"
)

// ErrNotFound is returned when no job exists for an ID.
var ErrNotFound = errors.New("job not found")

// UpdateFunc mutates a job in place. Returning an error aborts the update
// and nothing is persisted.
type UpdateFunc func(job *model.Job) error

// Store owns job records. Every method returns copies; callers never hold
// a reference into the store.
type Store interface {
	Create(ctx context.Context, params model.CreateJobParams) (*model.Job, error)
	Get(ctx context.Context, id string) (*model.Job, error)
	// Update applies fn to the current record under a per-record lock and
	// refreshes UpdatedAt.
	Update(ctx context.Context, id string, fn UpdateFunc) (*model.Job, error)
	// List returns jobs newest first.
	List(ctx context.Context) ([]*model.Job, error)
}
