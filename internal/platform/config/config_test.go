package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadFileDefaults(t *testing.T) {
	cfg, err := LoadFile("")
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestLoadFileYAMLThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ballotbox.yaml")
	body := []byte(`
httpPort: "9000"
databaseDsn: "sqlite:/tmp/ballotbox.sqlite"
sweepInterval: 30s
maxRandomnessAttempts: 5
`)
	require.NoError(t, os.WriteFile(path, body, 0o600))
	t.Setenv("BALLOTBOX_HTTP_PORT", "9100")
	t.Setenv("BALLOTBOX_RANDOMNESS_TIMEOUT", "90s")

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	require.Equal(t, "9100", cfg.HTTPPort)
	require.Equal(t, "sqlite:/tmp/ballotbox.sqlite", cfg.DatabaseDSN)
	require.Equal(t, 30*time.Second, cfg.SweepInterval)
	require.Equal(t, 90*time.Second, cfg.RandomnessTimeout)
	require.Equal(t, 5, cfg.MaxRandomnessAttempts)
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorContains(t, err, "read config file")
}

func TestLoadRejectsNonPositiveAttempts(t *testing.T) {
	t.Setenv("BALLOTBOX_MAX_RANDOMNESS_ATTEMPTS", "0")
	_, err := LoadFile("")
	require.ErrorContains(t, err, "max randomness attempts")
}

func TestLoadUsesConfigFileEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ballotbox.yaml")
	require.NoError(t, os.WriteFile(path, []byte("serviceName: ballots-test\n"), 0o600))
	t.Setenv(ConfigFileEnv, path)

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "ballots-test", cfg.ServiceName)
}
