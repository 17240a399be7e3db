package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"accman/internal/platform/config"
)

func TestOpen_NoURLMeansInMemory(t *testing.T) {
	db, err := Open(context.Background(), config.DatabaseConfig{})
	require.NoError(t, err)
	assert.Nil(t, db)
}

func TestSchema_DeclaresStoreTables(t *testing.T) {
	for _, table := range []string{"users", "accounts", "token_revocations"} {
		assert.Contains(t, Schema(), "CREATE TABLE IF NOT EXISTS "+table+" ")
	}
	assert.Contains(t, Schema(), "data       json NOT NULL")
}
