// Package library models named, persistent collections of shapes that can be
// screened against a reference without resending the candidates.
package library

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/keyshape/internal/domain/shape"
	"github.com/turtacn/keyshape/pkg/errors"
)

const (
	MaxNameLength        = 63
	MaxDescriptionLength = 1024
)

var namePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]*$`)

// Library is a named shape collection.  ShapeCount is maintained by the
// repository.
type Library struct {
	ID          uuid.UUID
	Name        string
	Description string
	ShapeCount  int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Entry is one stored shape.  Position is its zero-based insertion order
// within the library and is what screening results report as the index.
type Entry struct {
	ID        uuid.UUID
	LibraryID uuid.UUID
	Position  int
	Shape     *shape.Shape
	CreatedAt time.Time
}

// NewLibrary validates name and description and returns a library with a
// fresh id.
func NewLibrary(name, description string) (*Library, error) {
	name = strings.TrimSpace(name)
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	if len(description) > MaxDescriptionLength {
		return nil, errors.InvalidParam("library description too long")
	}
	now := time.Now().UTC()
	return &Library{
		ID:          uuid.New(),
		Name:        name,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// ValidateName accepts lowercase names of letters, digits, '.', '_' and '-'
// that start with a letter or digit.
func ValidateName(name string) error {
	if name == "" || len(name) > MaxNameLength || !namePattern.MatchString(name) {
		return errors.New(errors.ErrCodeInvalidLibraryName, "library name must match [a-z0-9][a-z0-9._-]* and be at most 63 characters").
			WithDetail("name=" + name)
	}
	return nil
}

// NotFound returns the error repositories report for a missing library.
func NotFound(name string) error {
	return errors.New(errors.ErrCodeLibraryNotFound, "shape library not found").WithDetail("name=" + name)
}
