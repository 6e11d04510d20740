package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	for _, key := range []string{"DSPASH_FT_MODE", "DSPASH_PG_PORT", "DSPASH_REMOTE_PIPE_BASE_PORT"} {
		os.Unsetenv(key)
	}

	cfg := Load()

	require.Equal(t, "disabled", cfg.FTMode)
	require.Equal(t, 5432, cfg.Postgres.Port)
	require.Equal(t, 58000, cfg.RemotePipeBasePort)
}

func TestLoadReadsOverrides(t *testing.T) {
	require.NoError(t, os.Setenv("DSPASH_FT_MODE", "optimized"))
	require.NoError(t, os.Setenv("DSPASH_REMOTE_PIPE_BASE_PORT", "9000"))
	defer os.Unsetenv("DSPASH_FT_MODE")
	defer os.Unsetenv("DSPASH_REMOTE_PIPE_BASE_PORT")

	cfg := Load()

	require.Equal(t, "optimized", cfg.FTMode)
	require.Equal(t, 9000, cfg.RemotePipeBasePort)
}

func TestLoadIgnoresMalformedInt(t *testing.T) {
	require.NoError(t, os.Setenv("DSPASH_PG_PORT", "not-a-number"))
	defer os.Unsetenv("DSPASH_PG_PORT")

	cfg := Load()

	require.Equal(t, 5432, cfg.Postgres.Port)
}
