package postgres

import (
	"embed"
	"errors"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	dserrors "github.com/dspash/dspash-go/internal/pkg/errors"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Migrate applies every pending migration under migrations/ to the database
// identified by url (a postgres:// or postgresql:// connection string, same
// shape Config.URL produces). It is idempotent: running it against an
// already up-to-date schema is a no-op.
func Migrate(url string) error {
	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return dserrors.Internal("postgres: open embedded migrations", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, toPgx5URL(url))
	if err != nil {
		return dserrors.Internal("postgres: init migrator", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return dserrors.Internal("postgres: apply migrations", err)
	}
	return nil
}

// toPgx5URL rewrites a postgres(ql):// DSN to the pgx5:// scheme the
// golang-migrate pgx/v5 driver registers itself under.
func toPgx5URL(url string) string {
	switch {
	case strings.HasPrefix(url, "postgresql://"):
		return "pgx5://" + strings.TrimPrefix(url, "postgresql://")
	case strings.HasPrefix(url, "postgres://"):
		return "pgx5://" + strings.TrimPrefix(url, "postgres://")
	default:
		return url
	}
}
