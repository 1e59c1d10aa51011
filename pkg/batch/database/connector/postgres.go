package connector

import (
	"database/sql"

	_ "github.com/lib/pq"

	"landscapesim/pkg/batch/config"
	"landscapesim/pkg/batch/database"
)

type postgresConnector struct{}

func (c *postgresConnector) Connect(cfg config.DatabaseConfig) (*sql.DB, error) {
	return open("postgres", cfg)
}

func (c *postgresConnector) Dialect() database.Dialect { return database.DialectPostgres }

func init() {
	RegisterConnector("postgres", &postgresConnector{})
}
