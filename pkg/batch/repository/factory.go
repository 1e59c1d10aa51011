package repository

import (
	"strings"

	"landscapesim/pkg/batch/config"
	"landscapesim/pkg/batch/database"
	"landscapesim/pkg/batch/util/logger"
)

// NewJobRepository returns an in-memory repository for the memory store and
// a SQL repository over conn otherwise.
func NewJobRepository(cfg config.DatabaseConfig, conn database.DBConnection) JobRepository {
	if strings.EqualFold(cfg.Type, "memory") || conn == nil {
		logger.Debugf("using in-memory JobRepository")
		return NewMemoryJobRepository()
	}
	logger.Debugf("using SQL JobRepository (%s)", conn.Dialect())
	return NewSQLJobRepository(conn)
}
