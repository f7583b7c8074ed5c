package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultHasSaneValues(t *testing.T) {
	cfg := Default()
	require.Equal(t, 64, cfg.Pool.NFrames)
	require.EqualValues(t, 4096, cfg.Pool.PageSize)
	require.Equal(t, "minirel.db", cfg.Storage.DataFile)
	require.Equal(t, "127.0.0.1:7890", cfg.Server.Addr)
}

func TestLoadOverridesDefaults(t *testing.T) {
	tmp, err := os.CreateTemp("", "minirel_config_*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmp.Name())

	_, err = tmp.WriteString("pool:\n  n_frames: 128\n  page_size: 8192\nstorage:\n  data_file: /tmp/widgets.db\n")
	require.NoError(t, err)
	require.NoError(t, tmp.Close())

	cfg, err := Load(tmp.Name())
	require.NoError(t, err)
	require.Equal(t, 128, cfg.Pool.NFrames)
	require.EqualValues(t, 8192, cfg.Pool.PageSize)
	require.Equal(t, "/tmp/widgets.db", cfg.Storage.DataFile)
	require.Equal(t, "127.0.0.1:7890", cfg.Server.Addr)
}

func TestLoadMissingFileErrors(t *testing.T) {
	_, err := Load("/nonexistent/minirel.yaml")
	require.Error(t, err)
}

func TestLoadRejectsBadPageSize(t *testing.T) {
	tmp, err := os.CreateTemp("", "minirel_config_*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmp.Name())

	_, err = tmp.WriteString("pool:\n  page_size: 1000\n")
	require.NoError(t, err)
	require.NoError(t, tmp.Close())

	_, err = Load(tmp.Name())
	require.Error(t, err)
}
