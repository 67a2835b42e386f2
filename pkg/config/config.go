package config

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/kasuganosora/sqlsession/pkg/api"
	"github.com/kasuganosora/sqlsession/pkg/engine/sqldriver"
	"github.com/kasuganosora/sqlsession/pkg/monitor"
	"github.com/kasuganosora/sqlsession/pkg/registry"
)

// EnvPrefix prefixes environment overrides, e.g. SQLSESSION_DATABASE_CACHE_SIZE.
const EnvPrefix = "SQLSESSION_"

// Config is the shell's configuration, loaded in layers.
type Config struct {
	Database DatabaseConfig `koanf:"database"`
	Log      LogConfig      `koanf:"log"`
	Shell    ShellConfig    `koanf:"shell"`
	Monitor  MonitorConfig  `koanf:"monitor"`
}

// DatabaseConfig controls how the session is opened.
type DatabaseConfig struct {
	Path               string            `koanf:"path"`
	Driver             string            `koanf:"driver"` // sqlite or modernc
	IsolationLevel     string            `koanf:"isolation_level"`
	CacheSize          int               `koanf:"cache_size"`
	Timeout            time.Duration     `koanf:"timeout"`
	DetectTypes        DetectTypesConfig `koanf:"detect_types"`
	CheckSameGoroutine bool              `koanf:"check_same_goroutine"`
	Collations         []string          `koanf:"collations"` // locale collations to register
}

// DetectTypesConfig selects how result columns find their converters.
type DetectTypesConfig struct {
	DeclTypes bool `koanf:"decltypes"`
	ColNames  bool `koanf:"colnames"`
}

// LogConfig selects the log level.
type LogConfig struct {
	Level string `koanf:"level"`
}

// ShellConfig configures the interactive shell.
type ShellConfig struct {
	Prompt      string `koanf:"prompt"`
	HistoryFile string `koanf:"history_file"`
	Format      string `koanf:"format"` // table, csv or markdown
}

// MonitorConfig configures statement metrics and the slow statement log.
type MonitorConfig struct {
	SlowThreshold time.Duration `koanf:"slow_threshold"` // 0 disables the slow log
	SlowLogSize   int           `koanf:"slow_log_size"`
}

// Driver names accepted in database.driver.
const (
	DriverSQLite  = "sqlite"
	DriverModernc = "modernc"
)

// Output formats accepted in shell.format.
var Formats = []string{"table", "csv", "markdown"}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:               ":memory:",
			Driver:             DriverSQLite,
			IsolationLevel:     "default",
			CacheSize:          api.DefaultCacheSize,
			Timeout:            5 * time.Second,
			CheckSameGoroutine: true,
		},
		Log: LogConfig{
			Level: "warn",
		},
		Shell: ShellConfig{
			Prompt:      "sql> ",
			HistoryFile: "",
			Format:      "table",
		},
		Monitor: MonitorConfig{
			SlowThreshold: monitor.DefaultSlowThreshold,
			SlowLogSize:   monitor.DefaultSlowLogSize,
		},
	}
}

// defaults flattens DefaultConfig for the confmap provider.
func defaults() map[string]any {
	d := DefaultConfig()
	return map[string]any{
		"database.path":                   d.Database.Path,
		"database.driver":                 d.Database.Driver,
		"database.isolation_level":        d.Database.IsolationLevel,
		"database.cache_size":             d.Database.CacheSize,
		"database.timeout":                d.Database.Timeout.String(),
		"database.detect_types.decltypes": d.Database.DetectTypes.DeclTypes,
		"database.detect_types.colnames":  d.Database.DetectTypes.ColNames,
		"database.check_same_goroutine":   d.Database.CheckSameGoroutine,
		"log.level":                       d.Log.Level,
		"shell.prompt":                    d.Shell.Prompt,
		"shell.history_file":              d.Shell.HistoryFile,
		"shell.format":                    d.Shell.Format,
		"monitor.slow_threshold":          d.Monitor.SlowThreshold.String(),
		"monitor.slow_log_size":           d.Monitor.SlowLogSize,
	}
}

// flagKeys maps command line flags onto config keys.
var flagKeys = map[string]string{
	"driver":          "database.driver",
	"isolation-level": "database.isolation_level",
	"cache-size":      "database.cache_size",
	"timeout":         "database.timeout",
	"decltypes":       "database.detect_types.decltypes",
	"colnames":        "database.detect_types.colnames",
	"collation":       "database.collations",
	"log-level":       "log.level",
	"mode":            "shell.format",
	"prompt":          "shell.prompt",
	"history-file":    "shell.history_file",
	"slow-threshold":  "monitor.slow_threshold",
}

// BindFlags registers the flags Load understands on fs.
func BindFlags(fs *pflag.FlagSet) {
	d := DefaultConfig()
	fs.String("driver", d.Database.Driver, "engine backend: sqlite or modernc")
	fs.String("isolation-level", d.Database.IsolationLevel,
		"implicit transaction mode: default, deferred, immediate, exclusive or autocommit")
	fs.Int("cache-size", d.Database.CacheSize, "prepared statement cache capacity, 0 disables caching")
	fs.Duration("timeout", d.Database.Timeout, "how long to wait on a locked database")
	fs.Bool("decltypes", false, "convert result columns by declared type")
	fs.Bool("colnames", false, `convert result columns by "name [type]" aliases`)
	fs.StringSlice("collation", nil, "locale collations to register, e.g. UNICODE_CI")
	fs.String("log-level", d.Log.Level, "log level: error, warn, info or debug")
	fs.String("mode", d.Shell.Format, "output format: table, csv or markdown")
	fs.String("prompt", d.Shell.Prompt, "shell prompt")
	fs.String("history-file", d.Shell.HistoryFile, "shell history file")
	fs.Duration("slow-threshold", d.Monitor.SlowThreshold, "log statements slower than this, 0 disables")
}

// envKey turns SQLSESSION_DATABASE_CACHE_SIZE into database.cache_size.
// Only the section name is split off, since keys themselves contain "_".
func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	if strings.HasPrefix(key, "database_detect_types_") {
		return "database.detect_types." + strings.TrimPrefix(key, "database_detect_types_")
	}
	section, rest, ok := strings.Cut(key, "_")
	if !ok {
		return key
	}
	return section + "." + rest
}

// Load reads configuration. Later layers win: defaults, the YAML file at
// path (if path is not empty), SQLSESSION_ environment variables, then
// flags that were set explicitly on the command line.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file: %w", err)
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if flags != nil {
		err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		}), nil)
		if err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field ranges and names.
func (c *Config) Validate() error {
	db := c.Database
	if _, err := api.ParseIsolationLevel(db.IsolationLevel); err != nil {
		return fmt.Errorf("database.isolation_level: %w", err)
	}
	if db.CacheSize < 0 {
		return fmt.Errorf("database.cache_size must not be negative: %d", db.CacheSize)
	}
	if db.Timeout < 0 {
		return fmt.Errorf("database.timeout must not be negative: %s", db.Timeout)
	}
	switch db.Driver {
	case DriverSQLite, DriverModernc:
	default:
		return fmt.Errorf("database.driver: unknown driver %q", db.Driver)
	}
	for _, name := range db.Collations {
		if _, ok := registry.LocaleCollation(name); !ok {
			return fmt.Errorf("database.collations: %w", &registry.UnknownCollationError{Name: name})
		}
	}

	if _, err := api.ParseLogLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}

	if !slices.Contains(Formats, c.Shell.Format) {
		return fmt.Errorf("shell.format: unknown format %q", c.Shell.Format)
	}

	if c.Monitor.SlowThreshold < 0 {
		return fmt.Errorf("monitor.slow_threshold must not be negative: %s", c.Monitor.SlowThreshold)
	}
	if c.Monitor.SlowLogSize < 0 {
		return fmt.Errorf("monitor.slow_log_size must not be negative: %d", c.Monitor.SlowLogSize)
	}
	return nil
}

// Logger builds the logger for the configured level.
func (c *Config) Logger() api.Logger {
	level, err := api.ParseLogLevel(c.Log.Level)
	if err != nil {
		level = api.LogWarn
	}
	return api.NewDefaultLogger(level)
}

// NewMonitor builds the statement monitor for the monitor section. Slow
// statements are logged through Logger.
func (c *Config) NewMonitor() *monitor.Monitor {
	return monitor.New(c.Monitor.SlowThreshold, c.Monitor.SlowLogSize, c.Logger())
}

// ConnectOptions maps the database section onto session options. Locale
// collations are registered on a fresh registry the session will own.
func (c *Config) ConnectOptions() ([]api.Option, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	db := c.Database
	level, _ := api.ParseIsolationLevel(db.IsolationLevel)

	reg := registry.New()
	if err := reg.RegisterLocaleCollations(db.Collations...); err != nil {
		return nil, err
	}

	opts := []api.Option{
		api.WithIsolationLevel(level),
		api.WithCacheSize(db.CacheSize),
		api.WithTimeout(db.Timeout),
		api.WithDeclTypes(db.DetectTypes.DeclTypes),
		api.WithColNames(db.DetectTypes.ColNames),
		api.WithCheckSameGoroutine(db.CheckSameGoroutine),
		api.WithRegistry(reg),
		api.WithLogger(c.Logger()),
	}
	if db.Driver == DriverModernc {
		opts = append(opts, api.WithDriver(sqldriver.New("")))
	}
	return opts, nil
}
