package connector

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"landscapesim/pkg/batch/config"
	"landscapesim/pkg/batch/database"
	"landscapesim/pkg/batch/util/exception"
	"landscapesim/pkg/batch/util/logger"
)

// DBConnector opens a *sql.DB for one database type.
type DBConnector interface {
	Connect(cfg config.DatabaseConfig) (*sql.DB, error)
	Dialect() database.Dialect
}

var (
	mu         sync.RWMutex
	connectors = make(map[string]DBConnector)
)

// RegisterConnector registers c under dbType, replacing any previous entry.
func RegisterConnector(dbType string, c DBConnector) {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := connectors[dbType]; exists {
		logger.Debugf("DBConnector for type '%s' is already registered, overwriting", dbType)
	}
	connectors[dbType] = c
}

func lookup(dbType string) (DBConnector, bool) {
	mu.RLock()
	defer mu.RUnlock()
	c, ok := connectors[strings.ToLower(dbType)]
	return c, ok
}

// GetSQLDB opens the database described by cfg with the registered connector.
func GetSQLDB(cfg config.DatabaseConfig) (*sql.DB, database.Dialect, error) {
	c, ok := lookup(cfg.Type)
	if !ok {
		return nil, "", exception.Newf(exception.KindConfiguration, "database", "unsupported database type: %s", cfg.Type)
	}
	db, err := c.Connect(cfg)
	if err != nil {
		return nil, "", err
	}
	return db, c.Dialect(), nil
}

// NewDBConnectionFromConfig opens, pings and wraps the configured database.
func NewDBConnectionFromConfig(ctx context.Context, cfg config.DatabaseConfig) (database.DBConnection, error) {
	rawDB, dialect, err := GetSQLDB(cfg)
	if err != nil {
		return nil, err
	}
	if err := rawDB.PingContext(ctx); err != nil {
		_ = rawDB.Close()
		return nil, exception.NewBatchError("database", fmt.Sprintf("ping %s failed", cfg.Type), err, true, false)
	}
	return database.NewSQLDBAdapter(rawDB, dialect), nil
}

func open(driver string, cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open(driver, cfg.ConnectionString())
	if err != nil {
		return nil, exception.NewBatchError("database", fmt.Sprintf("failed to open %s connection", driver), err, false, false)
	}
	pool := cfg.ConnectionPool
	db.SetMaxOpenConns(pool.MaxOpenConns)
	db.SetMaxIdleConns(pool.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(pool.ConnMaxLifetimeSeconds) * time.Second)
	logger.Debugf("opened %s connection. MaxOpenConns: %d, MaxIdleConns: %d, ConnMaxLifetime: %ds",
		driver, pool.MaxOpenConns, pool.MaxIdleConns, pool.ConnMaxLifetimeSeconds)
	return db, nil
}
