// Package migrations applies the embedded schema of each service.
package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
)

//go:embed sql
var sqlFS embed.FS

// Schema names one service's migration set. Each keeps its own version
// table so the two services can share a database in development.
type Schema string

const (
	Bidding Schema = "bidding"
	Auction Schema = "auction"
)

func (s Schema) table() string { return "schema_migrations_" + string(s) }

// Up applies every pending migration of schema.
func Up(db *sql.DB, schema Schema) error {
	src, err := iofs.New(sqlFS, "sql/"+string(schema))
	if err != nil {
		return fmt.Errorf("migrations %s: source: %w", schema, err)
	}
	drv, err := pgx.WithInstance(db, &pgx.Config{MigrationsTable: schema.table()})
	if err != nil {
		return fmt.Errorf("migrations %s: driver: %w", schema, err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "pgx5", drv)
	if err != nil {
		return fmt.Errorf("migrations %s: %w", schema, err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrations %s: up: %w", schema, err)
	}
	version, dirty, _ := m.Version()
	zap.L().Info("migrations_applied",
		zap.String("schema", string(schema)),
		zap.Uint("version", version),
		zap.Bool("dirty", dirty))
	return nil
}
