package config

import (
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Config holds the forge configuration
type Config struct {
	Directory DirectoryConfig `toml:"directory"`
	WebConfig WebConfig       `toml:"webconfig"`
	Tracker   TrackerConfig   `toml:"tracker"`
	Repos     ReposConfig     `toml:"repos"`
	SSH       SSHConfig       `toml:"ssh"`
	API       APIConfig       `toml:"api"`

	// SuperadminGroup is the cn of the distinguished project that
	// groups the forge superadministrators
	SuperadminGroup string `toml:"superadmin_group"`

	// LockFile serializes mutating operations across processes
	LockFile string `toml:"lock_file"`
}

// DirectoryConfig configures the directory store backend
type DirectoryConfig struct {
	Type        string `toml:"type"` // "sqlite" or "postgres"
	SQLitePath  string `toml:"sqlite_path"`
	PostgresURL string `toml:"postgres_url"`
}

// WebConfig configures the web-config generator output
type WebConfig struct {
	OutputDir string `toml:"output_dir"`
}

// TrackerConfig configures the issue-tracker mirror client
type TrackerConfig struct {
	BaseURL string `toml:"base_url"`
	APIKey  string `toml:"api_key"`
}

// ReposConfig configures the repository materializer
type ReposConfig struct {
	BasePath    string `toml:"base_path"`
	GitHubOrg   string `toml:"github_org"`
	GitHubToken string `toml:"github_token"`
}

// SSHConfig configures the SSH service restart hook
type SSHConfig struct {
	RestartCommand string `toml:"restart_command"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// APIConfig configures the REST API server
type APIConfig struct {
	Host string `toml:"host"`
	Port string `toml:"port"`
}

// Load loads the configuration from the TOML file named by FORGE_CONFIG
// (default forge.toml), then applies environment variable overrides
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{}
	path := getEnv("FORGE_CONFIG", "forge.toml")
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, &ConfigError{Field: path, Message: err.Error()}
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Directory.Type = getEnv("FORGE_DIRECTORY_TYPE", c.Directory.Type)
	c.Directory.SQLitePath = getEnv("FORGE_SQLITE_PATH", c.Directory.SQLitePath)
	c.Directory.PostgresURL = getEnv("FORGE_POSTGRES_URL", c.Directory.PostgresURL)
	c.WebConfig.OutputDir = getEnv("FORGE_WEBCONFIG_DIR", c.WebConfig.OutputDir)
	c.Tracker.BaseURL = getEnv("FORGE_TRACKER_URL", c.Tracker.BaseURL)
	c.Tracker.APIKey = getEnv("FORGE_TRACKER_API_KEY", c.Tracker.APIKey)
	c.Repos.BasePath = getEnv("FORGE_REPOS_PATH", c.Repos.BasePath)
	c.Repos.GitHubOrg = getEnv("FORGE_GITHUB_ORG", c.Repos.GitHubOrg)
	c.Repos.GitHubToken = getEnv("FORGE_GITHUB_TOKEN", c.Repos.GitHubToken)
	c.SSH.RestartCommand = getEnv("FORGE_SSH_RESTART_COMMAND", c.SSH.RestartCommand)
	if v := os.Getenv("FORGE_SSH_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.SSH.TimeoutSeconds = n
		}
	}
	c.API.Host = getEnv("FORGE_API_HOST", c.API.Host)
	c.API.Port = getEnv("FORGE_API_PORT", c.API.Port)
	c.SuperadminGroup = getEnv("FORGE_SUPERADMIN_GROUP", c.SuperadminGroup)
	c.LockFile = getEnv("FORGE_LOCK_FILE", c.LockFile)
}

func (c *Config) applyDefaults() {
	if c.Directory.Type == "" {
		c.Directory.Type = "sqlite"
	}
	if c.Directory.SQLitePath == "" {
		c.Directory.SQLitePath = "./forge.db"
	}
	if c.WebConfig.OutputDir == "" {
		c.WebConfig.OutputDir = "/etc/forge/generated"
	}
	if c.Repos.BasePath == "" {
		c.Repos.BasePath = "/var/lib/forge/repos"
	}
	if c.SSH.RestartCommand == "" {
		c.SSH.RestartCommand = "/etc/init.d/ssh restart"
	}
	if c.SSH.TimeoutSeconds == 0 {
		c.SSH.TimeoutSeconds = 30
	}
	if c.API.Host == "" {
		c.API.Host = "localhost"
	}
	if c.API.Port == "" {
		c.API.Port = "8080"
	}
	if c.SuperadminGroup == "" {
		c.SuperadminGroup = "superadmins"
	}
	if c.LockFile == "" {
		c.LockFile = "/var/lock/forge.lock"
	}
}

// SSHTimeout returns the SSH restart timeout as a duration
func (c *Config) SSHTimeout() time.Duration {
	return time.Duration(c.SSH.TimeoutSeconds) * time.Second
}

// getEnv returns the value of an environment variable or a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Directory.Type != "sqlite" && c.Directory.Type != "postgres" {
		return &ConfigError{Field: "directory.type", Message: "must be 'sqlite' or 'postgres'"}
	}
	if c.Directory.Type == "postgres" && c.Directory.PostgresURL == "" {
		return &ConfigError{Field: "directory.postgres_url", Message: "PostgreSQL URL is required when directory.type is 'postgres'"}
	}
	if c.SSH.TimeoutSeconds < 0 {
		return &ConfigError{Field: "ssh.timeout_seconds", Message: "must not be negative"}
	}
	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Field + ": " + e.Message
}
