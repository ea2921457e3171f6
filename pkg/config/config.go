// Package config loads kvdoc's process configuration from environment
// variables, with an optional YAML file overlay for operators who prefer a
// config file to a wall of env vars.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds every tunable kvdoc reads at startup. It is loaded once in
// cmd/kvdoc and threaded explicitly into constructors — there is no global
// singleton.
type Config struct {
	Port         int    `yaml:"port"`
	Workers      int    `yaml:"workers"`
	AdminToken   string `yaml:"admin_token"`
	DatabasePath string `yaml:"database_path"`
	LogLevel     string `yaml:"log_level"`
	LogJSON      bool   `yaml:"log_json"`
	BackupDir    string `yaml:"backup_dir"`
	MetricsAddr  string `yaml:"metrics_addr"`
}

// Default returns the configuration defaults from spec.md's environment
// variable table.
func Default() Config {
	return Config{
		Port:         5050,
		Workers:      4,
		AdminToken:   "supersecret",
		DatabasePath: "./rocksdb",
		LogLevel:     "info",
		LogJSON:      false,
		BackupDir:    "./backups",
		MetricsAddr:  "",
	}
}

// Load builds a Config starting from Default, overlaying a YAML file at
// path if non-empty and present, then overlaying environment variables
// (env always wins, since it's the documented contract).
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			data, err := os.ReadFile(path)
			if err != nil {
				return Config{}, fmt.Errorf("config: read %s: %w", path, err)
			}
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
			}
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v, ok := os.LookupEnv("PORT"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Port = n
		}
	}
	if v, ok := os.LookupEnv("WORKERS"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Workers = n
		}
	}
	if v, ok := os.LookupEnv("ADMIN_TOKEN"); ok {
		cfg.AdminToken = v
	}
	if v, ok := os.LookupEnv("DATABASE_PATH"); ok {
		cfg.DatabasePath = v
	}
	if v, ok := os.LookupEnv("LOG_LEVEL"); ok {
		cfg.LogLevel = v
	}
	if v, ok := os.LookupEnv("LOG_JSON"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.LogJSON = b
		}
	}
	if v, ok := os.LookupEnv("BACKUP_DIR"); ok {
		cfg.BackupDir = v
	}
	if v, ok := os.LookupEnv("METRICS_ADDR"); ok {
		cfg.MetricsAddr = v
	}
}
