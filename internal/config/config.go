package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultAPIURL          = "http://localhost:3000/api/v1"
	DefaultTimeout         = 30 * time.Second
	DefaultDBPath          = "data/taxpadi.db"
	DefaultLogFile         = "data/taxpadi.log"
	DefaultRefreshInterval = 14 * time.Minute
	DefaultGreeting        = "Hello! I'm TaxPadi, your AI tax assistant. How can I help you with your tax needs today?"

	settingsFile = "client.yaml"
)

// FileConfig is the optional settings file (settings/client.yaml)
type FileConfig struct {
	APIURL          string `yaml:"api_url"`
	Timeout         string `yaml:"timeout"`
	DBPath          string `yaml:"db_path"`
	LogFile         string `yaml:"log_file"`
	RefreshInterval string `yaml:"refresh_interval"`
	Greeting        string `yaml:"greeting"`
}

// Config holds all client configuration
type Config struct {
	APIURL          string
	Timeout         time.Duration
	DBPath          string
	LogFile         string
	RefreshInterval time.Duration
	Greeting        string
	SettingsDir     string
}

// Load loads configuration from .env, the environment and the settings file.
// Environment variables win over the settings file, which wins over defaults.
func Load() (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	settingsDir := os.Getenv("SETTINGS_DIR")
	if settingsDir == "" {
		settingsDir = "settings"
	}

	fileCfg, err := loadFileConfig(filepath.Join(settingsDir, settingsFile))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		APIURL:      firstNonEmpty(os.Getenv("TAXPADI_API_URL"), fileCfg.APIURL, DefaultAPIURL),
		DBPath:      firstNonEmpty(os.Getenv("DB_PATH"), fileCfg.DBPath, DefaultDBPath),
		LogFile:     firstNonEmpty(os.Getenv("LOG_FILE"), fileCfg.LogFile, DefaultLogFile),
		Greeting:    firstNonEmpty(os.Getenv("TAXPADI_GREETING"), fileCfg.Greeting, DefaultGreeting),
		SettingsDir: settingsDir,
	}

	cfg.Timeout, err = parseDuration("timeout",
		firstNonEmpty(os.Getenv("TAXPADI_API_TIMEOUT"), fileCfg.Timeout), DefaultTimeout)
	if err != nil {
		return nil, err
	}

	cfg.RefreshInterval, err = parseDuration("refresh_interval",
		firstNonEmpty(os.Getenv("TAXPADI_REFRESH_INTERVAL"), fileCfg.RefreshInterval), DefaultRefreshInterval)
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadDotEnv loads path into the environment without overriding set variables.
// A missing file is not an error.
func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("failed to load %s: %w", path, err)
}

// loadFileConfig loads the YAML settings file; a missing file yields an empty config
func loadFileConfig(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &FileConfig{}, nil
	}
	if err != nil {
		return nil, err
	}

	var cfg FileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	return &cfg, nil
}

func parseDuration(name, value string, def time.Duration) (time.Duration, error) {
	if value == "" {
		return def, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, value, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be positive", name, value)
	}
	return d, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
