package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// CatalogConfig points at the database the catalog itself is stored in.
type CatalogConfig struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	Database    string `yaml:"database"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	SSLMode     string `yaml:"sslmode"`
	WorkspaceID string `yaml:"workspace_id"`
	BaseID      string `yaml:"base_id"`
}

// SourceConfig describes one externally-owned database whose schema is
// mirrored by the catalog.
type SourceConfig struct {
	ID       string `yaml:"id"`
	Schema   string `yaml:"schema"`
	Client   string `yaml:"client"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

type Config struct {
	Catalog CatalogConfig  `yaml:"catalog"`
	Sources []SourceConfig `yaml:"sources"`
}

func LoadConfig(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if config.Catalog.Port == 0 {
		config.Catalog.Port = 5432
	}
	if config.Catalog.SSLMode == "" {
		config.Catalog.SSLMode = "disable"
	}

	for i := range config.Sources {
		src := &config.Sources[i]
		src.Client = normalizeClientType(src.Client)
		if src.Schema == "" {
			src.Schema = "public"
		}
		if src.Port == 0 {
			src.Port = 5432
		}
		if src.SSLMode == "" {
			src.SSLMode = "disable"
		}
		if src.ID == "" {
			return nil, fmt.Errorf("source %d has no id", i)
		}
	}

	return &config, nil
}

func (c *CatalogConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host,
		c.Port,
		c.Username,
		c.Password,
		c.Database,
		c.SSLMode,
	)
}

func (s *SourceConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		s.Host,
		s.Port,
		s.Username,
		s.Password,
		s.Database,
		s.SSLMode,
	)
}

func (c *Config) Source(id string) (*SourceConfig, bool) {
	for i := range c.Sources {
		if c.Sources[i].ID == id {
			return &c.Sources[i], true
		}
	}
	return nil, false
}

func normalizeClientType(client string) string {
	client = strings.ToLower(strings.TrimSpace(client))
	switch client {
	case "", "postgres", "postgresql", "pg":
		return "postgres"
	case "mysql", "mariadb":
		return "mysql"
	default:
		return client
	}
}
