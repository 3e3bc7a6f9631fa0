package postgres

import (
	"context"
	"embed"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/turtacn/keyshape/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/keyshape/pkg/errors"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// newMigrate builds a migrator on a dedicated connection so that closing it
// leaves the pool open.  The returned func releases it.
func (c *Connection) newMigrate(ctx context.Context) (*migrate.Migrate, func(), error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to load embedded migrations")
	}
	conn, err := c.db.Conn(ctx)
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to acquire migration connection")
	}
	driver, err := migratepg.WithConnection(ctx, conn, &migratepg.Config{})
	if err != nil {
		_ = conn.Close()
		return nil, nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to create migration driver")
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		_ = driver.Close()
		return nil, nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to create migrate instance")
	}
	return m, func() { _, _ = m.Close() }, nil
}

// RunMigrations applies every pending migration.
func (c *Connection) RunMigrations(ctx context.Context) error {
	m, release, err := c.newMigrate(ctx)
	if err != nil {
		return err
	}
	defer release()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		version, _, _ := m.Version()
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to run migrations").
			WithDetail(fmt.Sprintf("version=%d", version))
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		c.logger.Warn("failed to read migration version", logging.Err(err))
	}
	c.logger.Info("database migrations completed",
		logging.Int64("version", int64(version)),
		logging.Bool("dirty", dirty))
	return nil
}

// MigrationStatus reports the applied version; dirty means a migration
// failed part way and needs manual repair.
func (c *Connection) MigrationStatus(ctx context.Context) (version uint, dirty bool, err error) {
	m, release, err := c.newMigrate(ctx)
	if err != nil {
		return 0, false, err
	}
	defer release()

	version, dirty, err = m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to read migration version")
	}
	return version, dirty, nil
}

// RollbackMigrations reverts the last steps migrations.
func (c *Connection) RollbackMigrations(ctx context.Context, steps int) error {
	if steps <= 0 {
		return errors.InvalidParam("rollback steps must be greater than 0")
	}
	m, release, err := c.newMigrate(ctx)
	if err != nil {
		return err
	}
	defer release()

	if err := m.Steps(-steps); err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to roll back migrations")
	}
	return nil
}
