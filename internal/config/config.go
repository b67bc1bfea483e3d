// Package config loads the dashboard configuration from a YAML file with
// environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	apperrors "github.com/dvloznov/sabadell-dashboard/internal/errors"
)

// Remote backends.
const (
	BackendDrive = "drive"
	BackendGCS   = "gcs"
)

// DriveScope grants read access to the user's Drive files.
const DriveScope = "https://www.googleapis.com/auth/drive"

// Environment overrides.
const (
	clientIDEnvVar     = "SABADELL_CLIENT_ID"
	clientSecretEnvVar = "SABADELL_CLIENT_SECRET"
	folderIDEnvVar     = "SABADELL_FOLDER_ID"
	portEnvVar         = "PORT"
	logLevelEnvVar     = "LOG_LEVEL"
)

// Config is the full dashboard configuration.
type Config struct {
	Secrets Secrets `yaml:"secrets"`
	Paths   Paths   `yaml:"paths"`
	Remote  Remote  `yaml:"remote"`
	Auth    Auth    `yaml:"auth"`
	Server  Server  `yaml:"server"`
	Cache   Cache   `yaml:"cache"`
	Log     Log     `yaml:"log"`
}

// Secrets are the provisioned OAuth client and the remote folder to read.
type Secrets struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	FolderID     string `yaml:"folder_id"`
}

// Paths of the local files the session reads and writes.
type Paths struct {
	Token       string `yaml:"token"`
	Credentials string `yaml:"credentials"`
	Database    string `yaml:"database"`
}

// Remote selects the remote store backend.
type Remote struct {
	// Backend is "drive" (folder_id is a Drive folder id) or "gcs"
	// (folder_id is gs://bucket/prefix).
	Backend   string `yaml:"backend"`
	ChunkSize int    `yaml:"chunk_size"`
}

// Auth tunes the interactive login.
type Auth struct {
	// CallbackPort is the local port for the OAuth redirect; 0 picks a free one.
	CallbackPort int           `yaml:"callback_port"`
	Scopes       []string      `yaml:"scopes"`
	LoginTimeout time.Duration `yaml:"login_timeout"`
}

// Server holds HTTP server settings.
type Server struct {
	Port         string        `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// Cache sizes the memoization cache.
type Cache struct {
	Size int           `yaml:"size"`
	TTL  time.Duration `yaml:"ttl"`
}

// Log holds the log level name.
type Log struct {
	Level string `yaml:"level"`
}

// Default returns the configuration used when a field is not set.
func Default() *Config {
	return &Config{
		Paths: Paths{
			Token:       "token.json",
			Credentials: "credentials.json",
			Database:    "db.duckdb",
		},
		Remote: Remote{
			Backend:   BackendDrive,
			ChunkSize: 1 << 20,
		},
		Auth: Auth{
			Scopes:       []string{DriveScope},
			LoginTimeout: 5 * time.Minute,
		},
		Server: Server{
			Port:         "8080",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Cache: Cache{
			Size: 64,
			TTL:  12 * time.Hour,
		},
		Log: Log{Level: "info"},
	}
}

// Load reads the YAML file at path (skipped when path is empty), applies
// environment overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, apperrors.Mark(fmt.Errorf("parsing config file: %w", err), apperrors.ErrInvalidConfig)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Secrets.ClientID = getEnv(clientIDEnvVar, c.Secrets.ClientID)
	c.Secrets.ClientSecret = getEnv(clientSecretEnvVar, c.Secrets.ClientSecret)
	c.Secrets.FolderID = getEnv(folderIDEnvVar, c.Secrets.FolderID)
	c.Server.Port = getEnv(portEnvVar, c.Server.Port)
	c.Log.Level = getEnv(logLevelEnvVar, c.Log.Level)
}

// Validate checks required fields and value ranges.
func (c *Config) Validate() error {
	var problems []string

	if c.Secrets.FolderID == "" {
		problems = append(problems, "secrets.folder_id is required")
	}

	switch c.Remote.Backend {
	case BackendDrive:
		if c.Secrets.ClientID == "" {
			problems = append(problems, "secrets.client_id is required for the drive backend")
		}
		if c.Secrets.ClientSecret == "" {
			problems = append(problems, "secrets.client_secret is required for the drive backend")
		}
	case BackendGCS:
		if c.Secrets.FolderID != "" && !strings.HasPrefix(c.Secrets.FolderID, "gs://") {
			problems = append(problems, "secrets.folder_id must be a gs:// URI for the gcs backend")
		}
	default:
		problems = append(problems, fmt.Sprintf("remote.backend %q is not one of drive, gcs", c.Remote.Backend))
	}

	if c.Paths.Database == "" {
		problems = append(problems, "paths.database is required")
	}
	if c.Remote.ChunkSize <= 0 {
		problems = append(problems, "remote.chunk_size must be positive")
	}
	if c.Auth.CallbackPort < 0 || c.Auth.CallbackPort > 65535 {
		problems = append(problems, "auth.callback_port must be between 0 and 65535")
	}
	if _, err := strconv.Atoi(c.Server.Port); err != nil {
		problems = append(problems, fmt.Sprintf("server.port %q is not a number", c.Server.Port))
	}
	if c.Cache.Size <= 0 {
		problems = append(problems, "cache.size must be positive")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", apperrors.ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return ":" + c.Server.Port
}

func getEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}
