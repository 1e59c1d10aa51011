package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRebind(t *testing.T) {
	q := "SELECT id FROM records WHERE kind = ? AND project_id = ?"

	assert.Equal(t, "SELECT id FROM records WHERE kind = $1 AND project_id = $2", DialectPostgres.Rebind(q))
	assert.Equal(t, q, DialectMySQL.Rebind(q))
	assert.Equal(t, q, DialectSQLite.Rebind(q))
}

func TestSupportsReturning(t *testing.T) {
	assert.True(t, DialectPostgres.SupportsReturning())
	assert.True(t, DialectSQLite.SupportsReturning())
	assert.False(t, DialectMySQL.SupportsReturning())
}
