// Package config loads server configuration from defaults, an optional
// JSONC file, the environment and command-line flags, in that order.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/tailscale/hujson"
)

var (
	ErrConfigFileNotFound = errors.New("config file not found")
	ErrConfigInvalid      = errors.New("invalid config")
)

// Config holds all server options.
type Config struct {
	Host string `json:"host" validate:"required"`
	Port int    `json:"port" validate:"min=1,max=65535"`
	// Credential is the master credential for list/create/delete of databases.
	Credential     string   `json:"credential" validate:"required"`
	DBDir          string   `json:"db_dir" validate:"required"`
	JSONDBDir      string   `json:"json_db_dir" validate:"required"`
	SqliteDir      string   `json:"sqlite_dir" validate:"required"`
	AllowedOrigins []string `json:"allowed_origins" validate:"min=1,dive,required"`
	// DocumentsRegistry and RelationalRegistry pick the backend that stores
	// each family's registry.
	DocumentsRegistry  string `json:"documents_registry" validate:"oneof=json sqlite"`
	RelationalRegistry string `json:"relational_registry" validate:"oneof=json sqlite"`

	Logging LoggingConfig `json:"logging"`
	Metrics MetricsConfig `json:"metrics"`
}

type LoggingConfig struct {
	Level  string `json:"level" validate:"oneof=trace debug info warn error fatal"`
	Format string `json:"format" validate:"oneof=console json"`
	// Output is stdout, stderr or a file path opened for append.
	Output string `json:"output" validate:"required"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path" validate:"omitempty,startswith=/"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Host:               "0.0.0.0",
		Port:               8080,
		DBDir:              "./db",
		JSONDBDir:          "./db/json-db",
		SqliteDir:          "./db/sqlite",
		AllowedOrigins:     []string{"*"},
		DocumentsRegistry:  "json",
		RelationalRegistry: "sqlite",
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// Load builds a Config with this precedence (highest wins):
//  1. Defaults
//  2. The file at path, if path is non-empty (it must exist)
//  3. Environment variables in env (KEY=value form, as from os.Environ)
//
// Flags are applied afterwards with ApplyFlags. The result is not validated.
func Load(path string, env []string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path) //nolint:gosec // operator-supplied path
		if err != nil {
			if os.IsNotExist(err) {
				return Config{}, fmt.Errorf("%w: %s", ErrConfigFileNotFound, path)
			}
			return Config{}, fmt.Errorf("%w %s: %w", ErrConfigInvalid, path, err)
		}
		if err := parse(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("%w %s: %w", ErrConfigInvalid, path, err)
		}
	}

	if err := applyEnv(&cfg, env); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// parse decodes JSONC over cfg, so keys absent from the file keep their
// current values.
func parse(data []byte, cfg *Config) error {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return fmt.Errorf("invalid JSONC: %w", err)
	}
	if err := json.Unmarshal(standardized, cfg); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

func lookup(env []string, key string) (string, bool) {
	for _, e := range env {
		if after, ok := strings.CutPrefix(e, key+"="); ok {
			return after, true
		}
	}
	return "", false
}

func applyEnv(cfg *Config, env []string) error {
	strs := map[string]*string{
		"HOST":        &cfg.Host,
		"CREDENTIAL":  &cfg.Credential,
		"DB_DIR":      &cfg.DBDir,
		"JSON_DB_DIR": &cfg.JSONDBDir,
		"SQLITE_DIR":  &cfg.SqliteDir,
		"LOG_LEVEL":   &cfg.Logging.Level,
		"LOG_FORMAT":  &cfg.Logging.Format,
	}
	for key, dst := range strs {
		if v, ok := lookup(env, key); ok && v != "" {
			*dst = v
		}
	}

	if v, ok := lookup(env, "PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: PORT: %w", ErrConfigInvalid, err)
		}
		cfg.Port = port
	}
	if v, ok := lookup(env, "ALLOWED_ORIGINS"); ok && v != "" {
		cfg.AllowedOrigins = splitList(v)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// AddFlags registers the overridable options on fs.
func AddFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("config", "", "path to a JSONC config file")
	fs.String("host", d.Host, "listen host")
	fs.Int("port", d.Port, "listen port")
	fs.String("credential", "", "master credential")
	fs.String("db-dir", d.DBDir, "directory holding registry files")
	fs.String("json-db-dir", d.JSONDBDir, "directory holding JSON databases")
	fs.String("sqlite-dir", d.SqliteDir, "directory holding SQLite databases")
	fs.StringSlice("allowed-origins", d.AllowedOrigins, "CORS origins, or *")
	fs.String("log-level", d.Logging.Level, "trace, debug, info, warn, error or fatal")
	fs.String("log-format", d.Logging.Format, "console or json")
	fs.String("log-output", d.Logging.Output, "stdout, stderr or a file path")
	fs.Bool("metrics", d.Metrics.Enabled, "serve Prometheus metrics")
}

// ApplyFlags copies every flag the user set explicitly into cfg.
func ApplyFlags(cfg *Config, fs *pflag.FlagSet) error {
	var err error
	fs.Visit(func(f *pflag.Flag) {
		if err != nil {
			return
		}
		switch f.Name {
		case "host":
			cfg.Host, err = fs.GetString(f.Name)
		case "port":
			cfg.Port, err = fs.GetInt(f.Name)
		case "credential":
			cfg.Credential, err = fs.GetString(f.Name)
		case "db-dir":
			cfg.DBDir, err = fs.GetString(f.Name)
		case "json-db-dir":
			cfg.JSONDBDir, err = fs.GetString(f.Name)
		case "sqlite-dir":
			cfg.SqliteDir, err = fs.GetString(f.Name)
		case "allowed-origins":
			cfg.AllowedOrigins, err = fs.GetStringSlice(f.Name)
		case "log-level":
			cfg.Logging.Level, err = fs.GetString(f.Name)
		case "log-format":
			cfg.Logging.Format, err = fs.GetString(f.Name)
		case "log-output":
			cfg.Logging.Output, err = fs.GetString(f.Name)
		case "metrics":
			cfg.Metrics.Enabled, err = fs.GetBool(f.Name)
		}
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConfigInvalid, err)
	}
	return nil
}

// Validate checks field constraints.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrConfigInvalid, err)
	}
	return nil
}
