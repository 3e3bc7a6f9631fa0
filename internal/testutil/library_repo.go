package testutil

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/turtacn/keyshape/internal/domain/library"
	"github.com/turtacn/keyshape/internal/domain/shape"
	"github.com/turtacn/keyshape/pkg/errors"
)

// MemoryLibraryRepository is an in-memory library.Repository.
type MemoryLibraryRepository struct {
	mu      sync.Mutex
	libs    map[string]*library.Library
	entries map[uuid.UUID][]*library.Entry
}

func NewMemoryLibraryRepository() *MemoryLibraryRepository {
	return &MemoryLibraryRepository{
		libs:    map[string]*library.Library{},
		entries: map[uuid.UUID][]*library.Entry{},
	}
}

func (r *MemoryLibraryRepository) Create(_ context.Context, lib *library.Library) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.libs[lib.Name]; ok {
		return errors.New(errors.ErrCodeLibraryAlreadyExists, "shape library already exists")
	}
	cp := *lib
	r.libs[lib.Name] = &cp
	return nil
}

func (r *MemoryLibraryRepository) GetByName(_ context.Context, name string) (*library.Library, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	lib, ok := r.libs[name]
	if !ok {
		return nil, library.NotFound(name)
	}
	cp := *lib
	return &cp, nil
}

func (r *MemoryLibraryRepository) List(_ context.Context, limit, offset int) ([]*library.Library, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.libs))
	for n := range r.libs {
		names = append(names, n)
	}
	sort.Strings(names)
	var out []*library.Library
	for _, n := range window(names, limit, offset) {
		cp := *r.libs[n]
		out = append(out, &cp)
	}
	return out, int64(len(names)), nil
}

func (r *MemoryLibraryRepository) Delete(_ context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	lib, ok := r.libs[name]
	if !ok {
		return library.NotFound(name)
	}
	delete(r.entries, lib.ID)
	delete(r.libs, name)
	return nil
}

func (r *MemoryLibraryRepository) AddShapes(_ context.Context, id uuid.UUID, shapes []*shape.Shape) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	lib := r.byID(id)
	if lib == nil {
		return 0, library.NotFound(id.String())
	}
	first := lib.ShapeCount
	for i, s := range shapes {
		r.entries[id] = append(r.entries[id], &library.Entry{
			ID:        uuid.New(),
			LibraryID: id,
			Position:  first + i,
			Shape:     s.Clone(),
		})
	}
	lib.ShapeCount += len(shapes)
	return first, nil
}

func (r *MemoryLibraryRepository) ListEntries(_ context.Context, id uuid.UUID, limit, offset int) ([]*library.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return window(r.entries[id], limit, offset), nil
}

func (r *MemoryLibraryRepository) LoadShapes(_ context.Context, id uuid.UUID) ([]*shape.Shape, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entries := r.entries[id]
	out := make([]*shape.Shape, len(entries))
	for i, e := range entries {
		out[i] = e.Shape.Clone()
	}
	return out, nil
}

func (r *MemoryLibraryRepository) byID(id uuid.UUID) *library.Library {
	for _, lib := range r.libs {
		if lib.ID == id {
			return lib
		}
	}
	return nil
}

func window[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return items[offset:end]
}
