package connector

import (
	"database/sql"

	_ "modernc.org/sqlite"

	"landscapesim/pkg/batch/config"
	"landscapesim/pkg/batch/database"
)

type sqliteConnector struct{}

// Connect opens the sqlite file. A single connection avoids SQLITE_BUSY
// between concurrent writers in one process.
func (c *sqliteConnector) Connect(cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := open("sqlite", cfg)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func (c *sqliteConnector) Dialect() database.Dialect { return database.DialectSQLite }

func init() {
	RegisterConnector("sqlite", &sqliteConnector{})
}
