package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kasuganosora/sqlsession/pkg/api"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sqlsession.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	BindFlags(fs)
	require.NoError(t, fs.Parse(args))
	return fs
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.Equal(t, ":memory:", config.Database.Path)
	assert.Equal(t, DriverSQLite, config.Database.Driver)
	assert.Equal(t, "default", config.Database.IsolationLevel)
	assert.Equal(t, 100, config.Database.CacheSize)
	assert.Equal(t, 5*time.Second, config.Database.Timeout)
	assert.False(t, config.Database.DetectTypes.DeclTypes)
	assert.False(t, config.Database.DetectTypes.ColNames)
	assert.True(t, config.Database.CheckSameGoroutine)
	assert.Equal(t, "warn", config.Log.Level)
	assert.Equal(t, "table", config.Shell.Format)
	assert.Equal(t, time.Second, config.Monitor.SlowThreshold)
	assert.Equal(t, 100, config.Monitor.SlowLogSize)
	assert.NoError(t, config.Validate())
}

func TestLoad_Defaults(t *testing.T) {
	config, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), config)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
database:
  path: data.db
  isolation_level: immediate
  cache_size: 10
  timeout: 250ms
  detect_types:
    decltypes: true
  collations: [unicode_ci]
log:
  level: debug
shell:
  format: csv
monitor:
  slow_threshold: 50ms
  slow_log_size: 5
`)

	config, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "data.db", config.Database.Path)
	assert.Equal(t, "immediate", config.Database.IsolationLevel)
	assert.Equal(t, 10, config.Database.CacheSize)
	assert.Equal(t, 250*time.Millisecond, config.Database.Timeout)
	assert.True(t, config.Database.DetectTypes.DeclTypes)
	assert.False(t, config.Database.DetectTypes.ColNames)
	assert.Equal(t, []string{"unicode_ci"}, config.Database.Collations)
	assert.Equal(t, "debug", config.Log.Level)
	assert.Equal(t, "csv", config.Shell.Format)
	assert.Equal(t, 50*time.Millisecond, config.Monitor.SlowThreshold)
	assert.Equal(t, 5, config.Monitor.SlowLogSize)
	// untouched keys keep their defaults
	assert.Equal(t, "sql> ", config.Shell.Prompt)
	assert.True(t, config.Database.CheckSameGoroutine)
}

func TestLoad_Precedence(t *testing.T) {
	path := writeConfig(t, `
database:
  cache_size: 10
  isolation_level: immediate
log:
  level: debug
`)
	t.Setenv("SQLSESSION_DATABASE_CACHE_SIZE", "20")
	t.Setenv("SQLSESSION_LOG_LEVEL", "error")
	t.Setenv("SQLSESSION_DATABASE_DETECT_TYPES_COLNAMES", "true")
	t.Setenv("SQLSESSION_MONITOR_SLOW_LOG_SIZE", "7")

	config, err := Load(path, newFlags(t, "--cache-size", "30", "--mode", "markdown"))
	require.NoError(t, err)

	// flags beat env, env beats the file
	assert.Equal(t, 30, config.Database.CacheSize)
	assert.Equal(t, "markdown", config.Shell.Format)
	assert.Equal(t, "error", config.Log.Level)
	assert.True(t, config.Database.DetectTypes.ColNames)
	assert.Equal(t, "immediate", config.Database.IsolationLevel)
	assert.Equal(t, 7, config.Monitor.SlowLogSize)
	// flags left at their defaults do not override lower layers
	assert.Equal(t, 5*time.Second, config.Database.Timeout)
}

func TestLoad_Flags(t *testing.T) {
	config, err := Load("", newFlags(t,
		"--driver", "modernc",
		"--timeout", "100ms",
		"--decltypes",
		"--collation", "unicode_ci,turkish_ci",
		"--isolation-level", "autocommit",
		"--slow-threshold", "0",
	))
	require.NoError(t, err)
	assert.Equal(t, DriverModernc, config.Database.Driver)
	assert.Equal(t, 100*time.Millisecond, config.Database.Timeout)
	assert.True(t, config.Database.DetectTypes.DeclTypes)
	assert.Equal(t, []string{"unicode_ci", "turkish_ci"}, config.Database.Collations)
	assert.Equal(t, "autocommit", config.Database.IsolationLevel)
	assert.Zero(t, config.Monitor.SlowThreshold)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "database: [unclosed"), nil)
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "database:\n  isolation_level: serializable\n"), nil)
	assert.ErrorContains(t, err, "database.isolation_level")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		errMsg string
	}{
		{"negative cache", func(c *Config) { c.Database.CacheSize = -1 }, "cache_size"},
		{"negative timeout", func(c *Config) { c.Database.Timeout = -time.Second }, "timeout"},
		{"unknown driver", func(c *Config) { c.Database.Driver = "oracle" }, "unknown driver"},
		{"unknown isolation", func(c *Config) { c.Database.IsolationLevel = "snapshot" }, "isolation_level"},
		{"unknown collation", func(c *Config) { c.Database.Collations = []string{"klingon"} }, "klingon"},
		{"unknown log level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"unknown format", func(c *Config) { c.Shell.Format = "html" }, "shell.format"},
		{"negative slow threshold", func(c *Config) { c.Monitor.SlowThreshold = -time.Millisecond }, "monitor.slow_threshold"},
		{"negative slow log size", func(c *Config) { c.Monitor.SlowLogSize = -1 }, "monitor.slow_log_size"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.modify(config)
			err := config.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestConnectOptions(t *testing.T) {
	config := DefaultConfig()
	config.Database.IsolationLevel = "autocommit"
	config.Database.CacheSize = 3
	config.Database.DetectTypes.DeclTypes = true
	config.Database.Collations = []string{"UNICODE_CI"}

	opts, err := config.ConnectOptions()
	require.NoError(t, err)

	s, err := api.Connect(":memory:", opts...)
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, api.IsolationAutocommit, s.IsolationLevel())
	stats, err := s.CacheStats()
	require.NoError(t, err)
	assert.Equal(t, 3, stats.MaxSize)

	rows, err := s.QueryAll(`select x from (select 'b' as x union all select 'A' union all select 'a')
		order by x collate unicode_ci, x`)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "b", rows[2][0])

	config.Database.CacheSize = -5
	_, err = config.ConnectOptions()
	assert.Error(t, err)
}

func TestConnectOptions_Modernc(t *testing.T) {
	config := DefaultConfig()
	config.Database.Driver = DriverModernc

	opts, err := config.ConnectOptions()
	require.NoError(t, err)

	s, err := api.Connect(":memory:", opts...)
	require.NoError(t, err)
	defer s.Close()

	row, err := s.QueryOne("select 40 + ?", 2)
	require.NoError(t, err)
	assert.Equal(t, api.Row{int64(42)}, row)
}

func TestNewMonitor(t *testing.T) {
	config := DefaultConfig()
	config.Monitor.SlowThreshold = 250 * time.Millisecond
	config.Monitor.SlowLogSize = 2

	mon := config.NewMonitor()
	assert.Equal(t, 250*time.Millisecond, mon.SlowLog.Threshold())
	assert.Zero(t, mon.Metrics.Snapshot().Statements)
}
