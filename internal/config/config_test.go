package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// unset clears an env var for the test while keeping t.Setenv's
// restore-on-cleanup behavior.
func unset(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	require.NoError(t, os.Unsetenv(key))
}

func TestLoadDefaults(t *testing.T) {
	unset(t, "AUTH_SECRET")
	unset(t, "PORT")
	unset(t, "LIVE_STATUS_TTL")
	unset(t, "REPORT_TIMEOUT")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.Address())
	require.Equal(t, 10*time.Second, cfg.LiveStatusTTL)
	require.Equal(t, 5*time.Second, cfg.ReportTimeout)
	// no weak default secret may be injected when unset
	require.Empty(t, cfg.AuthSecret)
}

func TestLoadClampsTinyTimeouts(t *testing.T) {
	t.Setenv("LIVE_STATUS_TTL", "10ms")
	t.Setenv("REPORT_TIMEOUT", "1ms")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, time.Second, cfg.LiveStatusTTL)
	require.Equal(t, time.Second, cfg.ReportTimeout)
}
