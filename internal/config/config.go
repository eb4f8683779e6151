package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	defaultConfigPath = "~/.config/slitmask/config.json"
	envPrefix         = "SLITMASK"
)

// Config holds user-editable settings for the mask service.
// Values come from the JSON config file and SLITMASK_* env vars, in that
// order of increasing precedence.
type Config struct {
	Logging  Logging  `mapstructure:"logging" json:"logging"`
	Paths    Paths    `mapstructure:"paths" json:"paths"`
	Database Database `mapstructure:"database" json:"database"`
	Server   Server   `mapstructure:"server" json:"server"`
	GRPC     GRPC     `mapstructure:"grpc" json:"grpc"`
	Watch    Watch    `mapstructure:"watch" json:"watch"`
}

// Logging controls logging verbosity and destinations.
type Logging struct {
	Level      string `mapstructure:"level" json:"level"`             // debug, info, warn, error
	Format     string `mapstructure:"format" json:"format"`           // text, json
	FileOutput bool   `mapstructure:"file_output" json:"file_output"` // Enable file logging
	LogDir     string `mapstructure:"log_dir" json:"log_dir"`
}

// Paths configures default input/output locations.
type Paths struct {
	OutputDir         string `mapstructure:"output_dir" json:"output_dir"`
	InstrumentProfile string `mapstructure:"instrument_profile" json:"instrument_profile"` // TOML; empty means MOSFIRE defaults
}

// Database selects the SQLite driver and file.
type Database struct {
	Driver string `mapstructure:"driver" json:"driver"` // sqlite (pure Go) or sqlite3 (cgo)
	Path   string `mapstructure:"path" json:"path"`
}

type Server struct {
	Addr string `mapstructure:"addr" json:"addr"`
}

type GRPC struct {
	Addr string `mapstructure:"addr" json:"addr"`
}

// Watch configures the drop-directory importer.
type Watch struct {
	Dir        string `mapstructure:"dir" json:"dir"`
	DebounceMS int    `mapstructure:"debounce_ms" json:"debounce_ms"`
	Export     bool   `mapstructure:"export" json:"export"` // write all products next to imported masks
}

// Path returns the config file location that Load reads.
func Path() string {
	if p := os.Getenv("SLITMASK_CONFIG"); p != "" {
		return p
	}
	return defaultConfigPath
}

// Load reads configuration from disk and the environment, falling back to
// sensible defaults. A missing config file is not an error.
func Load() (*Config, error) {
	expanded, err := expandUser(Path())
	if err != nil {
		return nil, err
	}
	return load(expanded)
}

func load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, defaultConfig())
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigFile(path)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.Is(err, fs.ErrNotExist) && !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	for _, p := range []*string{&cfg.Logging.LogDir, &cfg.Paths.OutputDir, &cfg.Paths.InstrumentProfile, &cfg.Database.Path, &cfg.Watch.Dir} {
		var err error
		if *p, err = expandUser(*p); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// setDefaults registers every key so that env overrides apply even when the
// config file omits the key.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.file_output", d.Logging.FileOutput)
	v.SetDefault("logging.log_dir", d.Logging.LogDir)
	v.SetDefault("paths.output_dir", d.Paths.OutputDir)
	v.SetDefault("paths.instrument_profile", d.Paths.InstrumentProfile)
	v.SetDefault("database.driver", d.Database.Driver)
	v.SetDefault("database.path", d.Database.Path)
	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("grpc.addr", d.GRPC.Addr)
	v.SetDefault("watch.dir", d.Watch.Dir)
	v.SetDefault("watch.debounce_ms", d.Watch.DebounceMS)
	v.SetDefault("watch.export", d.Watch.Export)
}

func defaultConfig() *Config {
	return &Config{
		Logging: Logging{
			Level:      "info",
			Format:     "text",
			FileOutput: false,
			LogDir:     "./logs",
		},
		Paths: Paths{
			OutputDir: "./masks",
		},
		Database: Database{
			Driver: "sqlite",
			Path:   filepath.Join(os.TempDir(), "slitmask.db"),
		},
		Server: Server{Addr: ":8080"},
		GRPC:   GRPC{Addr: ":9090"},
		Watch: Watch{
			Dir:        "./incoming",
			DebounceMS: 500,
			Export:     true,
		},
	}
}

func expandUser(path string) (string, error) {
	if path == "" || path[0] != '~' {
		return path, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	if path == "~" {
		return home, nil
	}

	return filepath.Join(home, path[2:]), nil
}
