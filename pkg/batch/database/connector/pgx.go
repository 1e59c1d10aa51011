package connector

import (
	"database/sql"

	_ "github.com/jackc/pgx/v5/stdlib"

	"landscapesim/pkg/batch/config"
	"landscapesim/pkg/batch/database"
)

// pgxConnector talks to PostgreSQL through pgx's database/sql driver.
type pgxConnector struct{}

func (c *pgxConnector) Connect(cfg config.DatabaseConfig) (*sql.DB, error) {
	return open("pgx", cfg)
}

func (c *pgxConnector) Dialect() database.Dialect { return database.DialectPostgres }

func init() {
	RegisterConnector("pgx", &pgxConnector{})
}
