package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	Tailscale TailscaleConfig `yaml:"tailscale"`
	Client    ClientConfig    `yaml:"client"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

type AuthConfig struct {
	APIKey string `yaml:"api_key"`
}

type TailscaleConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Hostname string `yaml:"hostname"`
	StateDir string `yaml:"state_dir"`
}

// ClientConfig configures the on-device tracker: where the backend lives and
// where the local session state database is kept.
type ClientConfig struct {
	ServerURL string `yaml:"server_url"`
	APIKey    string `yaml:"api_key"`
	StateDir  string `yaml:"state_dir"`
	UserID    int    `yaml:"user_id"`
}

// DSN returns a PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	sslmode := d.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, sslmode)
}

// ResolveStateDir returns the client state directory, defaulting to
// ~/.liftlog when unset.
func (c ClientConfig) ResolveStateDir() (string, error) {
	if c.StateDir != "" {
		return c.StateDir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".liftlog"), nil
}

// Load reads config from a YAML file, then applies environment variable
// overrides. Env vars use the prefix LIFTLOG_ and underscore-separated paths:
//
//	LIFTLOG_SERVER_HOST, LIFTLOG_SERVER_PORT,
//	LIFTLOG_DB_HOST, LIFTLOG_DB_PORT, LIFTLOG_DB_NAME,
//	LIFTLOG_DB_USER, LIFTLOG_DB_PASSWORD, LIFTLOG_DB_SSLMODE,
//	LIFTLOG_AUTH_API_KEY,
//	LIFTLOG_CLIENT_SERVER_URL, LIFTLOG_CLIENT_API_KEY,
//	LIFTLOG_CLIENT_STATE_DIR, LIFTLOG_CLIENT_USER_ID
func Load(path string) (*Config, error) {
	cfg, err := load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// LoadClient is Load without server-side validation, for the client binary
// which has no database to reach.
func LoadClient(path string) (*Config, error) {
	cfg, err := load(path)
	if err != nil {
		return nil, err
	}
	if cfg.Client.ServerURL == "" {
		return nil, fmt.Errorf("config validation: client.server_url is required")
	}
	return cfg, nil
}

func load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LIFTLOG_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("LIFTLOG_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("LIFTLOG_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("LIFTLOG_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("LIFTLOG_DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("LIFTLOG_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("LIFTLOG_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("LIFTLOG_DB_SSLMODE"); v != "" {
		cfg.Database.SSLMode = v
	}
	if v := os.Getenv("LIFTLOG_AUTH_API_KEY"); v != "" {
		cfg.Auth.APIKey = v
	}
	if v := os.Getenv("LIFTLOG_CLIENT_SERVER_URL"); v != "" {
		cfg.Client.ServerURL = v
	}
	if v := os.Getenv("LIFTLOG_CLIENT_API_KEY"); v != "" {
		cfg.Client.APIKey = v
	}
	if v := os.Getenv("LIFTLOG_CLIENT_STATE_DIR"); v != "" {
		cfg.Client.StateDir = v
	}
	if v := os.Getenv("LIFTLOG_CLIENT_USER_ID"); v != "" {
		if id, err := strconv.Atoi(v); err == nil {
			cfg.Client.UserID = id
		}
	}
}

func (c *Config) validate() error {
	if c.Server.Port == 0 {
		return fmt.Errorf("server.port is required")
	}
	if c.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if c.Database.Port == 0 {
		return fmt.Errorf("database.port is required")
	}
	if c.Database.Name == "" {
		return fmt.Errorf("database.name is required")
	}
	if c.Database.User == "" {
		return fmt.Errorf("database.user is required")
	}
	if c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key is required")
	}
	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}
	return nil
}
