// Package config loads Link-o-Saurus configuration from file, environment,
// and flags via viper. The config file lives at ~/.linkosaurus/config.yaml by
// default; every key can be overridden with a LOS_-prefixed environment
// variable (e.g. LOS_BRIDGE_PORT).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config is the resolved daemon and CLI configuration.
type Config struct {
	// DataDir holds the sqlite database and daemon state.
	DataDir string `mapstructure:"data_dir"`

	// DBPath overrides the default <DataDir>/catalog.db location.
	DBPath string `mapstructure:"db_path"`

	// BridgePort is the WebSocket bridge listen port.
	BridgePort int `mapstructure:"bridge_port"`

	// TreeFile, when set, runs the daemon against a JSON tree file
	// instead of the extension bridge. Useful for headless setups.
	TreeFile string `mapstructure:"tree_file"`

	// LogFile, when set, routes daemon logs to a rotating file.
	LogFile string `mapstructure:"log_file"`

	// LogMaxSizeMB and LogMaxBackups control log rotation.
	LogMaxSizeMB  int `mapstructure:"log_max_size_mb"`
	LogMaxBackups int `mapstructure:"log_max_backups"`
}

// Dir returns the default configuration directory (~/.linkosaurus).
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, ".linkosaurus"), nil
}

// Init wires viper defaults, the config file location, and the LOS_
// environment prefix. cfgFile overrides the default search path when
// non-empty (the --config flag).
func Init(cfgFile string) error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		dir, err := Dir()
		if err != nil {
			return err
		}
		viper.AddConfigPath(dir)
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	viper.SetEnvPrefix("LOS")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	dir, err := Dir()
	if err != nil {
		return err
	}
	viper.SetDefault("data_dir", dir)
	viper.SetDefault("bridge_port", 48766)
	viper.SetDefault("log_max_size_mb", 10)
	viper.SetDefault("log_max_backups", 3)

	if err := viper.ReadInConfig(); err != nil {
		// A missing config file is fine; everything has a default.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}
	return nil
}

// Load resolves the effective configuration after Init.
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(cfg.DataDir, "catalog.db")
	}
	return &cfg, nil
}

// EnsureDataDir creates the data directory if needed.
func (c *Config) EnsureDataDir() error {
	if err := os.MkdirAll(c.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data dir %s: %w", c.DataDir, err)
	}
	return nil
}

// LogWriter returns the daemon log destination. When LogFile is set it
// returns a size-rotated file writer, otherwise stderr.
func (c *Config) LogWriter() *lumberjack.Logger {
	if c.LogFile == "" {
		return nil
	}
	return &lumberjack.Logger{
		Filename:   c.LogFile,
		MaxSize:    c.LogMaxSizeMB,
		MaxBackups: c.LogMaxBackups,
		Compress:   true,
	}
}

// Write persists the given settings map to the config file, creating the
// config directory if needed.
func Write(values map[string]any) (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create config dir: %w", err)
	}
	for k, v := range values {
		viper.Set(k, v)
	}
	path := filepath.Join(dir, "config.yaml")
	if err := viper.WriteConfigAs(path); err != nil {
		return "", fmt.Errorf("failed to write config file: %w", err)
	}
	return path, nil
}
