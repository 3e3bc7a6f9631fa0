package library

import (
	"context"

	"github.com/google/uuid"

	"github.com/turtacn/keyshape/internal/domain/shape"
)

// Repository persists libraries and their entries.
type Repository interface {
	// Create stores a new library.  Returns ErrCodeLibraryAlreadyExists when
	// the name is taken.
	Create(ctx context.Context, lib *Library) error

	// GetByName returns ErrCodeLibraryNotFound when no library has that name.
	GetByName(ctx context.Context, name string) (*Library, error)

	// List returns one page of libraries ordered by name and the total count.
	List(ctx context.Context, limit, offset int) ([]*Library, int64, error)

	// Delete removes the library and all of its entries.
	Delete(ctx context.Context, name string) error

	// AddShapes appends shapes atomically and returns the position of the
	// first one.
	AddShapes(ctx context.Context, libraryID uuid.UUID, shapes []*shape.Shape) (int, error)

	// ListEntries returns entries ordered by position.
	ListEntries(ctx context.Context, libraryID uuid.UUID, limit, offset int) ([]*Entry, error)

	// LoadShapes returns every shape of the library in position order.
	LoadShapes(ctx context.Context, libraryID uuid.UUID) ([]*shape.Shape, error)
}
