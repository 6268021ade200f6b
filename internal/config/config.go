package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Audio      AudioConfig      `mapstructure:"audio" yaml:"audio"`
	Session    SessionConfig    `mapstructure:"session" yaml:"session"`
	Output     OutputConfig     `mapstructure:"output" yaml:"output"`
	Catalog    CatalogConfig    `mapstructure:"catalog" yaml:"catalog"`
	Permission PermissionConfig `mapstructure:"permission" yaml:"permission"`
	Server     ServerConfig     `mapstructure:"server" yaml:"server"`
}

type AudioConfig struct {
	Backend    string `mapstructure:"backend" yaml:"backend"` // "pipewire", "auto"
	Source     string `mapstructure:"source" yaml:"source"`   // pulse source name, "default" for the system default
	SampleRate int    `mapstructure:"sample_rate" yaml:"sample_rate"`
	Channels   int    `mapstructure:"channels" yaml:"channels"`
	Codec      string `mapstructure:"codec" yaml:"codec"`
	Quality    string `mapstructure:"quality" yaml:"quality"` // "low", "medium", "high"
}

type SessionConfig struct {
	ApplyOrder   string `mapstructure:"apply_order" yaml:"apply_order"` // "category-first", "port-first"
	EarpieceSink string `mapstructure:"earpiece_sink" yaml:"earpiece_sink"`
	SpeakerSink  string `mapstructure:"speaker_sink" yaml:"speaker_sink"`
	LockFile     string `mapstructure:"lock_file" yaml:"lock_file"`
}

type OutputConfig struct {
	Directory string `mapstructure:"directory" yaml:"directory"`
}

type CatalogConfig struct {
	Backend string `mapstructure:"backend" yaml:"backend"` // "badger", "sqlite", "memory"
	Path    string `mapstructure:"path" yaml:"path"`
}

type PermissionConfig struct {
	File string `mapstructure:"file" yaml:"file"`
}

type ServerConfig struct {
	Port      string `mapstructure:"port" yaml:"port"`
	RateLimit int    `mapstructure:"rate_limit" yaml:"rate_limit"` // requests per minute per client, 0 disables
}

var (
	validBackends        = []string{"pipewire", "auto"}
	validQualities       = []string{"low", "medium", "high"}
	validApplyOrders     = []string{"category-first", "port-first"}
	validCatalogBackends = []string{"badger", "sqlite", "memory"}
)

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	dataDir := dataDirectory()
	return &Config{
		Audio: AudioConfig{
			Backend:    "auto",
			Source:     "default",
			SampleRate: 44100,
			Channels:   1,
			Codec:      "aac",
			Quality:    "medium",
		},
		Session: SessionConfig{
			ApplyOrder: "category-first",
			LockFile:   filepath.Join(runtimeDirectory(), "claudio-session.lock"),
		},
		Output: OutputConfig{
			Directory: filepath.Join(documentsDirectory(), "Claudio"),
		},
		Catalog: CatalogConfig{
			Backend: "badger",
			Path:    filepath.Join(dataDir, "catalog"),
		},
		Permission: PermissionConfig{
			File: filepath.Join(dataDir, "permissions.yaml"),
		},
		Server: ServerConfig{
			Port:      "8080",
			RateLimit: 120,
		},
	}
}

// Load reads configFile on top of the defaults. A missing file is not an
// error; CLAUDIO_* environment variables override file values.
func Load(configFile string) (*Config, error) {
	v := newViper()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !os.IsNotExist(err) {
				return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error decoding config: %w", err)
	}

	cfg.Output.Directory = expandPath(cfg.Output.Directory)
	cfg.Catalog.Path = expandPath(cfg.Catalog.Path)
	cfg.Permission.File = expandPath(cfg.Permission.File)
	cfg.Session.LockFile = expandPath(cfg.Session.LockFile)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// SetValue updates a single key in the config file, creating the file if
// it does not exist yet.
func SetValue(configFile, key, value string) error {
	if configFile == "" {
		return fmt.Errorf("no config file specified")
	}

	// Create a new viper instance to avoid interfering with the global one
	v := viper.New()
	v.SetConfigFile(configFile)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil && !os.IsNotExist(err) {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file %s: %w", configFile, err)
		}
	}

	if !isKnownKey(key) {
		return fmt.Errorf("unknown config key: %s", key)
	}
	v.Set(key, value)

	if err := os.MkdirAll(filepath.Dir(configFile), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := v.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("error writing config file %s: %w", configFile, err)
	}

	// Make sure the written file still loads
	if _, err := Load(configFile); err != nil {
		return err
	}
	return nil
}

// Validate checks enumerated values and required fields.
func (c *Config) Validate() error {
	if !oneOf(strings.ToLower(c.Audio.Backend), validBackends) {
		return fmt.Errorf("audio.backend: invalid value '%s' (valid: %s)", c.Audio.Backend, strings.Join(validBackends, ", "))
	}
	if c.Audio.SampleRate <= 0 {
		return fmt.Errorf("audio.sample_rate: must be positive, got %d", c.Audio.SampleRate)
	}
	if c.Audio.Channels < 1 || c.Audio.Channels > 2 {
		return fmt.Errorf("audio.channels: must be 1 or 2, got %d", c.Audio.Channels)
	}
	if c.Audio.Codec == "" {
		return fmt.Errorf("audio.codec: is required")
	}
	if !oneOf(strings.ToLower(c.Audio.Quality), validQualities) {
		return fmt.Errorf("audio.quality: invalid value '%s' (valid: %s)", c.Audio.Quality, strings.Join(validQualities, ", "))
	}
	if !oneOf(c.Session.ApplyOrder, validApplyOrders) {
		return fmt.Errorf("session.apply_order: invalid value '%s' (valid: %s)", c.Session.ApplyOrder, strings.Join(validApplyOrders, ", "))
	}
	if c.Session.LockFile == "" {
		return fmt.Errorf("session.lock_file: is required")
	}
	if c.Output.Directory == "" {
		return fmt.Errorf("output.directory: is required")
	}
	if !oneOf(c.Catalog.Backend, validCatalogBackends) {
		return fmt.Errorf("catalog.backend: invalid value '%s' (valid: %s)", c.Catalog.Backend, strings.Join(validCatalogBackends, ", "))
	}
	if c.Catalog.Backend != "memory" && c.Catalog.Path == "" {
		return fmt.Errorf("catalog.path: is required for backend '%s'", c.Catalog.Backend)
	}
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("server.rate_limit: must not be negative, got %d", c.Server.RateLimit)
	}
	return nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")

	for key, value := range defaultValues() {
		v.SetDefault(key, value)
	}

	// Allow env var overrides (e.g. CLAUDIO_OUTPUT_DIRECTORY)
	v.SetEnvPrefix("claudio")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

func defaultValues() map[string]any {
	d := DefaultConfig()
	return map[string]any{
		"audio.backend":         d.Audio.Backend,
		"audio.source":          d.Audio.Source,
		"audio.sample_rate":     d.Audio.SampleRate,
		"audio.channels":        d.Audio.Channels,
		"audio.codec":           d.Audio.Codec,
		"audio.quality":         d.Audio.Quality,
		"session.apply_order":   d.Session.ApplyOrder,
		"session.earpiece_sink": d.Session.EarpieceSink,
		"session.speaker_sink":  d.Session.SpeakerSink,
		"session.lock_file":     d.Session.LockFile,
		"output.directory":      d.Output.Directory,
		"catalog.backend":       d.Catalog.Backend,
		"catalog.path":          d.Catalog.Path,
		"permission.file":       d.Permission.File,
		"server.port":           d.Server.Port,
		"server.rate_limit":     d.Server.RateLimit,
	}
}

func isKnownKey(key string) bool {
	_, ok := defaultValues()[strings.ToLower(key)]
	return ok
}

func oneOf(value string, valid []string) bool {
	for _, v := range valid {
		if value == v {
			return true
		}
	}
	return false
}

// expandPath expands a leading ~ to the user's home directory
func expandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return path
}

// documentsDirectory returns the per-user document storage directory
func documentsDirectory() string {
	if dir := os.Getenv("XDG_DOCUMENTS_DIR"); dir != "" {
		return expandPath(dir)
	}
	return filepath.Join(os.Getenv("HOME"), "Documents")
}

func dataDirectory() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "claudio")
	}
	return filepath.Join(os.Getenv("HOME"), ".local", "share", "claudio")
}

func runtimeDirectory() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return dir
	}
	return os.TempDir()
}
