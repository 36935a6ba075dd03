package app

import (
	"errors"
	"fmt"
	"strings"

	"github.com/specialistvlad/pipegrid/internal/agent"
	"github.com/specialistvlad/pipegrid/internal/model"
	"github.com/specialistvlad/pipegrid/internal/notify"
	"github.com/specialistvlad/pipegrid/internal/report"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. PIPEGRID_LOG_LEVEL.
const EnvPrefix = "PIPEGRID"

// Archive kinds.
const (
	ArchiveNone = ""
	ArchiveFile = "file"
	ArchiveS3   = "s3"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	Definition  string            `mapstructure:"definition"`
	Parameters  map[string]string `mapstructure:"parameters"`
	DryRun      bool              `mapstructure:"dry_run"`
	MaxParallel int               `mapstructure:"max_parallel"`

	Log     LogConfig        `mapstructure:"log"`
	Pools   []agent.PoolSpec `mapstructure:"pools"`
	Output  OutputConfig     `mapstructure:"output"`
	Report  ReportConfig     `mapstructure:"report"`
	Archive ArchiveConfig    `mapstructure:"archive"`
	Notify  NotifyConfig     `mapstructure:"notify"`
	Server  ServerConfig     `mapstructure:"server"`
}

// LogConfig selects the log level and format.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// OutputConfig controls where full step output goes. An empty Dir keeps
// only the tail in the report.
type OutputConfig struct {
	Dir       string `mapstructure:"dir"`
	TailBytes int    `mapstructure:"tail_bytes"`
}

// ReportConfig controls the report written at the end of a run. An empty
// Path writes it to the app output.
type ReportConfig struct {
	Format string `mapstructure:"format"`
	Path   string `mapstructure:"path"`
}

// ArchiveConfig selects where finished reports are archived.
type ArchiveConfig struct {
	Kind string           `mapstructure:"kind"`
	Dir  string           `mapstructure:"dir"`
	S3   report.S3Options `mapstructure:"s3"`
}

// NotifyConfig enables the socket.io notifier when a URL is set.
type NotifyConfig struct {
	SocketIO notify.SocketIOOptions `mapstructure:"socketio"`
}

// ServerConfig configures the control server. Port 0 disables it.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// defaults are the lowest configuration layer.
// Every key is listed so that the environment layer can reach it.
var defaults = map[string]any{
	"definition":                           "",
	"parameters":                           map[string]string{},
	"dry_run":                              false,
	"max_parallel":                         0,
	"log.level":                            "info",
	"log.format":                           "text",
	"output.dir":                           "",
	"output.tail_bytes":                    4 << 10,
	"report.format":                        report.FormatJSON,
	"report.path":                          "",
	"archive.kind":                         ArchiveNone,
	"archive.dir":                          ".pipegrid/runs",
	"archive.s3.bucket":                    "",
	"archive.s3.prefix":                    "",
	"archive.s3.region":                    "",
	"archive.s3.endpoint":                  "",
	"archive.s3.access_key_id":             "",
	"archive.s3.secret_access_key":         "",
	"notify.socketio.url":                  "",
	"notify.socketio.namespace":            "/",
	"notify.socketio.insecure_skip_verify": false,
	"server.port":                          0,
	"pools": []map[string]any{
		{"name": model.DefaultPool, "size": 4, "kind": agent.KindShell},
	},
}

// NewViper returns a viper instance carrying the defaults and environment
// layer. Callers add a config file and flags on top.
func NewViper() *viper.Viper {
	v := viper.New()
	for key, val := range defaults {
		v.SetDefault(key, val)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// LoadConfig reads the optional config file into v and unmarshals the
// merged layers. A missing file that was asked for by name is an error.
func LoadConfig(v *viper.Viper, file string) (*Config, error) {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", file, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the fields that have a closed set of values.
func (c *Config) Validate() error {
	if c.Definition == "" {
		return errors.New("a definition path is required")
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format %q: must be 'text' or 'json'", c.Log.Format)
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	if _, err := report.ParseFormat(c.Report.Format); err != nil {
		return err
	}
	switch c.Archive.Kind {
	case ArchiveNone, ArchiveFile, ArchiveS3:
	default:
		return fmt.Errorf("invalid archive kind %q: must be 'file' or 's3'", c.Archive.Kind)
	}
	if c.MaxParallel < 0 {
		return errors.New("max parallel must not be negative")
	}
	if len(c.Pools) == 0 {
		return errors.New("at least one agent pool is required")
	}
	return nil
}
