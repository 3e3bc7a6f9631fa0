package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/turtacn/keyshape/internal/domain/library"
	"github.com/turtacn/keyshape/internal/domain/shape"
	"github.com/turtacn/keyshape/internal/infrastructure/database/postgres"
	"github.com/turtacn/keyshape/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/keyshape/pkg/errors"
)

const libraryColumns = `id, name, description, shape_count, created_at, updated_at`

// elementRow is the JSONB encoding of one element.
type elementRow struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Z        float64 `json:"z"`
	Radius   float64 `json:"r"`
	Hardness float64 `json:"h"`
	Color    int     `json:"c,omitempty"`
}

// LibraryRepository is the PostgreSQL library.Repository.
type LibraryRepository struct {
	conn   *postgres.Connection
	logger logging.Logger
}

var _ library.Repository = (*LibraryRepository)(nil)

func NewLibraryRepository(conn *postgres.Connection, logger logging.Logger) *LibraryRepository {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &LibraryRepository{conn: conn, logger: logger.Named("library_repo")}
}

func (r *LibraryRepository) Create(ctx context.Context, lib *library.Library) error {
	_, err := r.conn.DB().ExecContext(ctx, `
		INSERT INTO shape_libraries (id, name, description, shape_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		lib.ID, lib.Name, lib.Description, lib.ShapeCount, lib.CreatedAt, lib.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.New(errors.ErrCodeLibraryAlreadyExists, "shape library already exists").WithDetail("name=" + lib.Name)
		}
		r.logger.Error("insert library failed", logging.Err(err), logging.String("library", lib.Name))
		return dbError(err, "failed to insert shape library")
	}
	return nil
}

func (r *LibraryRepository) GetByName(ctx context.Context, name string) (*library.Library, error) {
	row := r.conn.DB().QueryRowContext(ctx, `SELECT `+libraryColumns+` FROM shape_libraries WHERE name = $1`, name)
	lib, err := scanLibrary(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, library.NotFound(name)
	}
	if err != nil {
		return nil, dbError(err, "failed to load shape library")
	}
	return lib, nil
}

func (r *LibraryRepository) List(ctx context.Context, limit, offset int) ([]*library.Library, int64, error) {
	db := r.conn.DB()
	var total int64
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM shape_libraries`).Scan(&total); err != nil {
		return nil, 0, dbError(err, "failed to count shape libraries")
	}

	rows, err := db.QueryContext(ctx,
		`SELECT `+libraryColumns+` FROM shape_libraries ORDER BY name LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, dbError(err, "failed to list shape libraries")
	}
	defer rows.Close()

	var libs []*library.Library
	for rows.Next() {
		lib, err := scanLibrary(rows)
		if err != nil {
			return nil, 0, dbError(err, "failed to scan shape library")
		}
		libs = append(libs, lib)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, dbError(err, "failed to list shape libraries")
	}
	return libs, total, nil
}

// Delete relies on ON DELETE CASCADE to remove the entries.
func (r *LibraryRepository) Delete(ctx context.Context, name string) error {
	res, err := r.conn.DB().ExecContext(ctx, `DELETE FROM shape_libraries WHERE name = $1`, name)
	if err != nil {
		return dbError(err, "failed to delete shape library")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return dbError(err, "failed to delete shape library")
	}
	if n == 0 {
		return library.NotFound(name)
	}
	return nil
}

// AddShapes locks the library row so concurrent appends get disjoint
// positions.
func (r *LibraryRepository) AddShapes(ctx context.Context, libraryID uuid.UUID, shapes []*shape.Shape) (int, error) {
	var first int
	err := r.conn.WithTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx,
			`SELECT shape_count FROM shape_libraries WHERE id = $1 FOR UPDATE`, libraryID).Scan(&first)
		if errors.Is(err, sql.ErrNoRows) {
			return library.NotFound(libraryID.String())
		}
		if err != nil {
			return dbError(err, "failed to lock shape library")
		}

		now := time.Now().UTC()
		for i, s := range shapes {
			if err := insertShape(ctx, tx, libraryID, first+i, s, now); err != nil {
				return err
			}
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE shape_libraries SET shape_count = $2, updated_at = $3 WHERE id = $1`,
			libraryID, first+len(shapes), now)
		if err != nil {
			return dbError(err, "failed to update shape count")
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	r.logger.Debug("shapes stored",
		logging.String("library_id", libraryID.String()),
		logging.Int("first_position", first),
		logging.Int("count", len(shapes)))
	return first, nil
}

func insertShape(ctx context.Context, q queryExecutor, libraryID uuid.UUID, position int, s *shape.Shape, now time.Time) error {
	elements, err := encodeElements(s.Elements)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO library_shapes (id, library_id, position, name, num_elements, elements, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		uuid.New(), libraryID, position, s.Name, len(s.Elements), elements, now)
	if err != nil {
		return dbError(err, "failed to insert library shape")
	}
	return nil
}

func (r *LibraryRepository) ListEntries(ctx context.Context, libraryID uuid.UUID, limit, offset int) ([]*library.Entry, error) {
	rows, err := r.conn.DB().QueryContext(ctx, `
		SELECT id, position, name, elements, created_at
		FROM library_shapes WHERE library_id = $1
		ORDER BY position LIMIT $2 OFFSET $3`, libraryID, limit, offset)
	if err != nil {
		return nil, dbError(err, "failed to list library shapes")
	}
	defer rows.Close()

	var entries []*library.Entry
	for rows.Next() {
		e := &library.Entry{LibraryID: libraryID}
		var name string
		var raw []byte
		if err := rows.Scan(&e.ID, &e.Position, &name, &raw, &e.CreatedAt); err != nil {
			return nil, dbError(err, "failed to scan library shape")
		}
		if e.Shape, err = decodeShape(name, raw); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError(err, "failed to list library shapes")
	}
	return entries, nil
}

func (r *LibraryRepository) LoadShapes(ctx context.Context, libraryID uuid.UUID) ([]*shape.Shape, error) {
	rows, err := r.conn.DB().QueryContext(ctx,
		`SELECT name, elements FROM library_shapes WHERE library_id = $1 ORDER BY position`, libraryID)
	if err != nil {
		return nil, dbError(err, "failed to load library shapes")
	}
	defer rows.Close()

	var shapes []*shape.Shape
	for rows.Next() {
		var name string
		var raw []byte
		if err := rows.Scan(&name, &raw); err != nil {
			return nil, dbError(err, "failed to scan library shape")
		}
		s, err := decodeShape(name, raw)
		if err != nil {
			return nil, err
		}
		shapes = append(shapes, s)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError(err, "failed to load library shapes")
	}
	return shapes, nil
}

func scanLibrary(sc scanner) (*library.Library, error) {
	lib := &library.Library{}
	if err := sc.Scan(&lib.ID, &lib.Name, &lib.Description, &lib.ShapeCount, &lib.CreatedAt, &lib.UpdatedAt); err != nil {
		return nil, err
	}
	return lib, nil
}

func encodeElements(elements []shape.Element) ([]byte, error) {
	rows := make([]elementRow, len(elements))
	for i, e := range elements {
		rows[i] = elementRow{
			X:        e.Position.X,
			Y:        e.Position.Y,
			Z:        e.Position.Z,
			Radius:   e.Radius,
			Hardness: e.Hardness,
			Color:    e.Color,
		}
	}
	b, err := json.Marshal(rows)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode shape elements")
	}
	return b, nil
}

func decodeShape(name string, raw []byte) (*shape.Shape, error) {
	var rows []elementRow
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to decode shape elements").WithDetail("shape=" + name)
	}
	s := &shape.Shape{Name: name, Elements: make([]shape.Element, len(rows))}
	for i, e := range rows {
		s.Elements[i] = shape.Element{
			Position: r3.Vec{X: e.X, Y: e.Y, Z: e.Z},
			Radius:   e.Radius,
			Hardness: e.Hardness,
			Color:    e.Color,
		}
	}
	return s, nil
}
