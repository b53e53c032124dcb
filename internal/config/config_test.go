package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("should use defaults when file is missing", func(t *testing.T) {
		// when
		cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))

		// then
		require.NoError(t, err)
		assert.Equal(t, 8181, cfg.Port)
		assert.Equal(t, "auto", cfg.Ledger.Mode)
		assert.Equal(t, 3, cfg.Ledger.TxRetries)
		assert.Equal(t, "pocket", cfg.Database.Schema)
		assert.False(t, cfg.IsProduction())
	})

	t.Run("should override defaults with file and environment", func(t *testing.T) {
		// given
		path := filepath.Join(t.TempDir(), "application.yaml")
		content := "environment: production\nledger:\n  mode: transactional\ndb:\n  host: db.internal\n"
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
		t.Setenv("POCKET_DB_PORT", "6543")

		// when
		cfg, err := Load(path)

		// then
		require.NoError(t, err)
		assert.True(t, cfg.IsProduction())
		assert.Equal(t, "transactional", cfg.Ledger.Mode)
		assert.Equal(t, "db.internal", cfg.Database.Host)
		assert.Equal(t, 6543, cfg.Database.Port)
	})
}
