package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the code reader server
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Mongo   MongoConfig   `yaml:"mongo"`
	OpenAI  OpenAIConfig  `yaml:"openai"`
	Logging LoggingConfig `yaml:"logging"`
}

type ServerConfig struct {
	Port int    `yaml:"port"`
	Env  string `yaml:"env"`
}

type MongoConfig struct {
	// URI is the single-URI legacy setting; when set it wins over the
	// Atlas/local pair.
	URI      string `yaml:"uri"`
	AtlasURI string `yaml:"atlas_uri"`
	LocalURI string `yaml:"local_uri"`
	Database string `yaml:"database"`
}

type OpenAIConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// URICandidate is a labelled connection string tried during store bootstrap
type URICandidate struct {
	Label string
	URI   string
}

// CandidateURIs returns the connection strings to probe, in priority order
func (m MongoConfig) CandidateURIs() []URICandidate {
	if m.URI != "" {
		return []URICandidate{{Label: "uri", URI: m.URI}}
	}
	var out []URICandidate
	if m.AtlasURI != "" {
		out = append(out, URICandidate{Label: "atlas", URI: m.AtlasURI})
	}
	if m.LocalURI != "" {
		out = append(out, URICandidate{Label: "local", URI: m.LocalURI})
	}
	return out
}

// Load loads configuration from file or returns defaults
func Load() (*Config, error) {
	cfg := DefaultConfig()

	if path := configPath(); path != "" {
		if err := loadFromFile(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if len(cfg.Mongo.CandidateURIs()) == 0 {
		return nil, fmt.Errorf("no MongoDB URI configured: set MONGODB_URI, MONGODB_ATLAS_URI or MONGODB_LOCAL_URI")
	}

	return cfg, nil
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 3000,
			Env:  "production",
		},
		Mongo: MongoConfig{
			LocalURI: "mongodb://localhost:27017",
			Database: "code_reader",
		},
		OpenAI: OpenAIConfig{
			BaseURL: "https://api.openai.com/v1",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

func configPath() string {
	if path := os.Getenv("CODE_READER_CONFIG"); path != "" {
		return path
	}
	if _, err := os.Stat("config.yaml"); err == nil {
		return "config.yaml"
	}
	return ""
}

func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

func applyEnvOverrides(cfg *Config) {
	if uri := os.Getenv("MONGODB_URI"); uri != "" {
		cfg.Mongo.URI = uri
	}
	if uri := os.Getenv("MONGODB_ATLAS_URI"); uri != "" {
		cfg.Mongo.AtlasURI = uri
	}
	if uri := os.Getenv("MONGODB_LOCAL_URI"); uri != "" {
		cfg.Mongo.LocalURI = uri
	}
	if db := os.Getenv("CODE_READER_DB"); db != "" {
		cfg.Mongo.Database = db
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		cfg.OpenAI.APIKey = key
	}
	if url := os.Getenv("OPENAI_BASE_URL"); url != "" {
		cfg.OpenAI.BaseURL = url
	}
	if port := os.Getenv("CODE_READER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil && p > 0 {
			cfg.Server.Port = p
		}
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if env := os.Getenv("APP_ENV"); env != "" {
		cfg.Server.Env = env
	}
}
