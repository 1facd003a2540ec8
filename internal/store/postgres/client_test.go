package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDSNExplicitWins(t *testing.T) {
	cfg := ClientConfig{
		DSN:  "postgres://u:p@db:5433/trading?sslmode=require",
		Host: "ignored",
	}
	assert.Equal(t, cfg.DSN, DSN(cfg))
}

func TestDSNDefaults(t *testing.T) {
	got := DSN(ClientConfig{
		Host:     "localhost",
		Database: "kalshibot",
		User:     "postgres",
	})
	assert.Equal(t, "postgres://postgres:@localhost:5432/kalshibot?sslmode=disable", got)
}

func TestMigrationFilesOrdered(t *testing.T) {
	files, err := migrationFiles()
	require.NoError(t, err)
	require.NotEmpty(t, files)
	for i := 1; i < len(files); i++ {
		assert.Less(t, files[i-1], files[i])
	}
	for _, name := range files {
		assert.Contains(t, name, ".sql")
	}
}
