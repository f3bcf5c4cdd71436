// Package config holds the settings of the ztm command: where the
// timetable export comes from, where it's stored and how it's served.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type SourceConfig struct {
	URL      string            `yaml:"url" validate:"omitempty,url"`
	Path     string            `yaml:"path"`
	Encoding string            `yaml:"encoding" validate:"omitempty,oneof=windows-1250 cp1250 utf-8 utf8"`
	Headers  map[string]string `yaml:"headers"`
	Tags     TagsConfig        `yaml:"tags"`
}

// Section tags. Blank means the standard ZP/PR/WK.
type TagsConfig struct {
	Groups string `yaml:"groups" validate:"omitempty,alphanum"`
	Stops  string `yaml:"stops" validate:"omitempty,alphanum"`
	Routes string `yaml:"routes" validate:"omitempty,alphanum"`
}

type StorageConfig struct {
	Backend     string `yaml:"backend" validate:"required,oneof=memory sqlite postgres"`
	SQLiteDir   string `yaml:"sqlite_dir"`
	PostgresDSN string `yaml:"postgres_dsn" validate:"required_if=Backend postgres"`
}

type ServerConfig struct {
	Addr        string   `yaml:"addr" validate:"required"`
	CORSOrigins []string `yaml:"cors_origins"`
}

type Neo4jConfig struct {
	URI       string `yaml:"uri" validate:"omitempty,uri"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	Database  string `yaml:"database"`
	BatchSize int    `yaml:"batch_size" validate:"gte=0"`
}

type LoggingConfig struct {
	Level string `yaml:"level" validate:"omitempty,oneof=trace debug info warn error fatal panic disabled"`
	File  string `yaml:"file"`
}

type Config struct {
	Source  SourceConfig  `yaml:"source"`
	Storage StorageConfig `yaml:"storage"`
	Server  ServerConfig  `yaml:"server"`
	Neo4j   Neo4jConfig   `yaml:"neo4j"`
	Logging LoggingConfig `yaml:"logging"`
}

func Default() *Config {
	return &Config{
		Source: SourceConfig{
			Encoding: "windows-1250",
		},
		Storage: StorageConfig{
			Backend:   "sqlite",
			SQLiteDir: "ztm-data",
		},
		Server: ServerConfig{
			Addr:        ":8080",
			CORSOrigins: []string{"*"},
		},
		Neo4j: Neo4jConfig{
			URI:       "neo4j://localhost:7687",
			Username:  "neo4j",
			Database:  "neo4j",
			BatchSize: 1000,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Loads configuration: defaults, then the YAML file at path (if path
// is non-empty), then environment overrides. The result is validated.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		err = yaml.Unmarshal(data, cfg)
		if err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}

	err := cfg.applyEnv(os.LookupEnv)
	if err != nil {
		return nil, err
	}

	err = cfg.Validate()
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	err := validator.New().Struct(c)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	for key, dst := range map[string]*string{
		"ZTM_SOURCE_URL":   &c.Source.URL,
		"ZTM_SOURCE_PATH":  &c.Source.Path,
		"ZTM_ENCODING":     &c.Source.Encoding,
		"ZTM_STORAGE":      &c.Storage.Backend,
		"ZTM_SQLITE_DIR":   &c.Storage.SQLiteDir,
		"ZTM_POSTGRES_DSN": &c.Storage.PostgresDSN,
		"ZTM_ADDR":         &c.Server.Addr,
		"NEO4J_URI":        &c.Neo4j.URI,
		"NEO4J_USERNAME":   &c.Neo4j.Username,
		"NEO4J_PASSWORD":   &c.Neo4j.Password,
		"NEO4J_DATABASE":   &c.Neo4j.Database,
		"LOG_LEVEL":        &c.Logging.Level,
		"LOG_FILE":         &c.Logging.File,
	} {
		if value, ok := lookup(key); ok && value != "" {
			*dst = value
		}
	}

	if value, ok := lookup("ZTM_CORS_ORIGINS"); ok && value != "" {
		c.Server.CORSOrigins = nil
		for _, origin := range strings.Split(value, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				c.Server.CORSOrigins = append(c.Server.CORSOrigins, origin)
			}
		}
	}

	if value, ok := lookup("NEO4J_BATCH_SIZE"); ok && value != "" {
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("NEO4J_BATCH_SIZE: %w", err)
		}
		c.Neo4j.BatchSize = n
	}

	return nil
}
