// Package library implements the stored shape library use cases: managing
// libraries and screening a reference against one.
package library

import (
	"context"
	"fmt"
	"strings"

	"github.com/turtacn/keyshape/internal/application/alignment"
	domain "github.com/turtacn/keyshape/internal/domain/library"
	"github.com/turtacn/keyshape/internal/domain/shape"
	"github.com/turtacn/keyshape/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/keyshape/pkg/errors"
	shapetypes "github.com/turtacn/keyshape/pkg/types/shape"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 200
	// MaxShapesPerRequest bounds a single AddShapes call.
	MaxShapesPerRequest = 5000
)

// Service manages shape libraries.
type Service interface {
	Create(ctx context.Context, req *shapetypes.CreateLibraryRequest) (*shapetypes.LibraryDTO, error)
	Get(ctx context.Context, name string) (*shapetypes.LibraryDTO, error)
	List(ctx context.Context, page, pageSize int) (*shapetypes.ListLibrariesResponse, error)
	Delete(ctx context.Context, name string) error
	AddShapes(ctx context.Context, name string, req *shapetypes.AddShapesRequest) (*shapetypes.AddShapesResponse, error)
	ListShapes(ctx context.Context, name string, page, pageSize int) (*shapetypes.ListShapesResponse, error)
	Screen(ctx context.Context, name string, req *shapetypes.LibraryScreenRequest) (*shapetypes.ScreenResponse, error)
}

type serviceImpl struct {
	repo   domain.Repository
	shapes alignment.Service
	logger logging.Logger
}

// NewService builds the library service.  Screening is delegated to shapes.
func NewService(repo domain.Repository, shapes alignment.Service, logger logging.Logger) Service {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &serviceImpl{repo: repo, shapes: shapes, logger: logger.Named("library")}
}

func (s *serviceImpl) Create(ctx context.Context, req *shapetypes.CreateLibraryRequest) (*shapetypes.LibraryDTO, error) {
	if req == nil {
		return nil, errors.InvalidParam("request is required")
	}
	lib, err := domain.NewLibrary(req.Name, req.Description)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, lib); err != nil {
		return nil, err
	}
	s.logger.Info("shape library created", logging.String("library", lib.Name), logging.String("id", lib.ID.String()))
	return toDTO(lib), nil
}

func (s *serviceImpl) Get(ctx context.Context, name string) (*shapetypes.LibraryDTO, error) {
	lib, err := s.lookup(ctx, name)
	if err != nil {
		return nil, err
	}
	return toDTO(lib), nil
}

// List pages through libraries by name.  Page is 1-based.
func (s *serviceImpl) List(ctx context.Context, page, pageSize int) (*shapetypes.ListLibrariesResponse, error) {
	page, pageSize = normalizePage(page, pageSize)
	libs, total, err := s.repo.List(ctx, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, err
	}
	out := &shapetypes.ListLibrariesResponse{
		Libraries: make([]shapetypes.LibraryDTO, len(libs)),
		Total:     total,
		Page:      page,
		PageSize:  pageSize,
	}
	for i, l := range libs {
		out.Libraries[i] = *toDTO(l)
	}
	return out, nil
}

func (s *serviceImpl) Delete(ctx context.Context, name string) error {
	if err := domain.ValidateName(name); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, name); err != nil {
		return err
	}
	s.logger.Info("shape library deleted", logging.String("library", name))
	return nil
}

// AddShapes validates every shape before storing any; one bad shape rejects
// the batch with its index in the error detail.
func (s *serviceImpl) AddShapes(ctx context.Context, name string, req *shapetypes.AddShapesRequest) (*shapetypes.AddShapesResponse, error) {
	if req == nil || len(req.Shapes) == 0 {
		return nil, errors.InvalidParam("at least one shape is required")
	}
	if len(req.Shapes) > MaxShapesPerRequest {
		return nil, errors.Newf(errors.ErrCodeBadRequest, "at most %d shapes per request", MaxShapesPerRequest)
	}
	lib, err := s.lookup(ctx, name)
	if err != nil {
		return nil, err
	}

	shapes := make([]*shape.Shape, len(req.Shapes))
	for i, d := range req.Shapes {
		sh, err := alignment.ShapeFromDTO(d)
		if err != nil {
			var appErr *errors.AppError
			if !errors.As(err, &appErr) {
				return nil, err
			}
			detail := fmt.Sprintf("shape=%d", i)
			if appErr.Detail != "" {
				detail += " " + appErr.Detail
			}
			return nil, appErr.WithDetail(detail)
		}
		shapes[i] = sh
	}

	first, err := s.repo.AddShapes(ctx, lib.ID, shapes)
	if err != nil {
		return nil, err
	}
	s.logger.Info("shapes added to library",
		logging.String("library", lib.Name),
		logging.Int("added", len(shapes)),
		logging.Int("first_position", first))
	return &shapetypes.AddShapesResponse{
		Library:       lib.Name,
		Added:         len(shapes),
		FirstPosition: first,
		ShapeCount:    first + len(shapes),
	}, nil
}

func (s *serviceImpl) ListShapes(ctx context.Context, name string, page, pageSize int) (*shapetypes.ListShapesResponse, error) {
	lib, err := s.lookup(ctx, name)
	if err != nil {
		return nil, err
	}
	page, pageSize = normalizePage(page, pageSize)
	entries, err := s.repo.ListEntries(ctx, lib.ID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, err
	}
	out := &shapetypes.ListShapesResponse{
		Library:  lib.Name,
		Entries:  make([]shapetypes.LibraryEntryDTO, len(entries)),
		Total:    lib.ShapeCount,
		Page:     page,
		PageSize: pageSize,
	}
	for i, e := range entries {
		out.Entries[i] = shapetypes.LibraryEntryDTO{
			ID:       e.ID.String(),
			Position: e.Position,
			Shape:    alignment.ShapeToDTO(e.Shape),
		}
	}
	return out, nil
}

// Screen loads the library and screens the reference against it.  Hit and
// failure indexes are library positions.
func (s *serviceImpl) Screen(ctx context.Context, name string, req *shapetypes.LibraryScreenRequest) (*shapetypes.ScreenResponse, error) {
	if req == nil {
		return nil, errors.InvalidParam("request is required")
	}
	lib, err := s.lookup(ctx, name)
	if err != nil {
		return nil, err
	}
	shapes, err := s.repo.LoadShapes(ctx, lib.ID)
	if err != nil {
		return nil, err
	}
	if len(shapes) == 0 {
		return nil, errors.InvalidParam("shape library is empty").WithDetail("name=" + lib.Name)
	}

	candidates := make([]shapetypes.ShapeDTO, len(shapes))
	for i, sh := range shapes {
		candidates[i] = alignment.ShapeToDTO(sh)
	}
	resp, err := s.shapes.Screen(ctx, &shapetypes.ScreenRequest{
		Reference:  req.Reference,
		Candidates: candidates,
		TopN:       req.TopN,
		MinScore:   req.MinScore,
	})
	if err != nil {
		return nil, err
	}
	s.logger.Debug("library screened",
		logging.String("library", lib.Name),
		logging.Int("screened", resp.Screened),
		logging.Int("hits", len(resp.Hits)))
	return resp, nil
}

func (s *serviceImpl) lookup(ctx context.Context, name string) (*domain.Library, error) {
	name = strings.TrimSpace(name)
	if err := domain.ValidateName(name); err != nil {
		return nil, err
	}
	return s.repo.GetByName(ctx, name)
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return page, pageSize
}

func toDTO(l *domain.Library) *shapetypes.LibraryDTO {
	return &shapetypes.LibraryDTO{
		ID:          l.ID.String(),
		Name:        l.Name,
		Description: l.Description,
		ShapeCount:  l.ShapeCount,
		CreatedAt:   l.CreatedAt,
		UpdatedAt:   l.UpdatedAt,
	}
}
