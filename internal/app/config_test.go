package app

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/specialistvlad/pipegrid/internal/agent"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Layers(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		v := NewViper()
		v.Set("definition", "ci.yaml")

		cfg, err := LoadConfig(v, "")

		require.NoError(t, err)
		assert.Equal(t, "info", cfg.Log.Level)
		assert.Equal(t, "text", cfg.Log.Format)
		assert.Equal(t, "json", cfg.Report.Format)
		assert.Equal(t, 4<<10, cfg.Output.TailBytes)
		require.Len(t, cfg.Pools, 1)
		assert.Equal(t, agent.PoolSpec{Name: "default", Size: 4, Kind: agent.KindShell}, cfg.Pools[0])
	})

	t.Run("file then env then explicit", func(t *testing.T) {
		// Arrange
		file := filepath.Join(t.TempDir(), "pipegrid.yaml")
		require.NoError(t, os.WriteFile(file, []byte(`
definition: from-file.yaml
max_parallel: 3
log:
  level: warn
report:
  format: yaml
archive:
  kind: s3
  s3:
    bucket: reports
    region: eu-west-1
pools:
  - name: linux
    size: 2
  - name: docker
    size: 1
    kind: docker
    image: alpine:3.20
`), 0o644))
		t.Setenv("PIPEGRID_LOG_LEVEL", "debug")
		t.Setenv("PIPEGRID_ARCHIVE_S3_PREFIX", "ci/")
		v := NewViper()
		v.Set("max_parallel", 5)

		// Act
		cfg, err := LoadConfig(v, file)

		// Assert
		require.NoError(t, err)
		assert.Equal(t, "from-file.yaml", cfg.Definition)
		assert.Equal(t, "debug", cfg.Log.Level)
		assert.Equal(t, 5, cfg.MaxParallel)
		assert.Equal(t, "yaml", cfg.Report.Format)
		assert.Equal(t, ArchiveS3, cfg.Archive.Kind)
		assert.Equal(t, "reports", cfg.Archive.S3.Bucket)
		assert.Equal(t, "ci/", cfg.Archive.S3.Prefix)
		require.Len(t, cfg.Pools, 2)
		assert.Equal(t, "alpine:3.20", cfg.Pools[1].Image)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadConfig(NewViper(), filepath.Join(t.TempDir(), "nope.yaml"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to read config file")
	})
}

func TestConfig_Validate(t *testing.T) {
	valid := func() Config {
		return Config{
			Definition: "ci.yaml",
			Log:        LogConfig{Level: "info", Format: "json"},
			Pools:      []agent.PoolSpec{{Name: "default", Size: 1}},
		}
	}

	testCases := []struct {
		name    string
		edit    func(*Config)
		wantErr string
	}{
		{name: "valid", edit: func(*Config) {}},
		{name: "no definition", edit: func(c *Config) { c.Definition = "" }, wantErr: "definition path is required"},
		{name: "log format", edit: func(c *Config) { c.Log.Format = "xml" }, wantErr: "invalid log format"},
		{name: "log level", edit: func(c *Config) { c.Log.Level = "loud" }, wantErr: "invalid log level"},
		{name: "report format", edit: func(c *Config) { c.Report.Format = "csv" }, wantErr: "unknown report format"},
		{name: "archive kind", edit: func(c *Config) { c.Archive.Kind = "ftp" }, wantErr: "invalid archive kind"},
		{name: "max parallel", edit: func(c *Config) { c.MaxParallel = -1 }, wantErr: "must not be negative"},
		{name: "no pools", edit: func(c *Config) { c.Pools = nil }, wantErr: "at least one agent pool"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.edit(&cfg)

			err := cfg.Validate()

			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}
