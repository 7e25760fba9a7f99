package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("missing file is empty", func(t *testing.T) {
		p, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		require.NoError(t, err)
		assert.Equal(t, Profile{}, p)
	})

	t.Run("parses profile", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), fileName)
		require.NoError(t, os.WriteFile(path, []byte(`
baseURL: https://api.example.edu
clientID: edugate-cli
adminRoles: [admin, registrar]
maxIdle: 2h
timeout: 15s
cache: true
`), 0600))

		p, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, "https://api.example.edu", p.BaseURL)
		assert.Equal(t, "edugate-cli", p.ClientID)
		assert.Equal(t, []string{"admin", "registrar"}, p.AdminRoles)
		assert.Equal(t, 2*time.Hour, p.MaxIdle)
		assert.Equal(t, 15*time.Second, p.Timeout)
		assert.True(t, p.Cache)
	})

	t.Run("invalid yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), fileName)
		require.NoError(t, os.WriteFile(path, []byte("baseURL: [unterminated"), 0600))

		_, err := Load(path)
		require.Error(t, err)
	})
}

func TestMerge(t *testing.T) {
	base := Profile{
		BaseURL:    "https://api.example.edu",
		ClientID:   "from-file",
		AdminRoles: []string{"registrar"},
		MaxIdle:    time.Hour,
	}

	got := base.Merge(Profile{ClientID: "from-flag", Timeout: 5 * time.Second})

	assert.Equal(t, "https://api.example.edu", got.BaseURL)
	assert.Equal(t, "from-flag", got.ClientID)
	assert.Equal(t, []string{"registrar"}, got.AdminRoles)
	assert.Equal(t, time.Hour, got.MaxIdle)
	assert.Equal(t, 5*time.Second, got.Timeout)
}
