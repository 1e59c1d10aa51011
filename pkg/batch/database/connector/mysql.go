package connector

import (
	"database/sql"

	_ "github.com/go-sql-driver/mysql"

	"landscapesim/pkg/batch/config"
	"landscapesim/pkg/batch/database"
)

type mysqlConnector struct{}

func (c *mysqlConnector) Connect(cfg config.DatabaseConfig) (*sql.DB, error) {
	return open("mysql", cfg)
}

func (c *mysqlConnector) Dialect() database.Dialect { return database.DialectMySQL }

func init() {
	RegisterConnector("mysql", &mysqlConnector{})
}
