// Package config loads the structured-key configuration file (db connection
// parameters, the image-citations directory) with yaml.v3.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DB holds the connection parameters for the authoritative relational
// store.
type DB struct {
	Host     string `yaml:"host"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// ImageCitations holds the image-citation sink's writable directory.
type ImageCitations struct {
	Path string `yaml:"path"`
}

// Duration parses YAML scalars like "5m" or "6h" via time.ParseDuration.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Session holds the authentication timeouts. Zero values fall back to the
// identity service's defaults (5 minutes for tickets, 6 hours for
// sessions).
type Session struct {
	TicketTTL  Duration `yaml:"ticket_ttl"`
	SessionTTL Duration `yaml:"session_ttl"`
}

// Config is the root of the recognized configuration keys.
type Config struct {
	DB             DB             `yaml:"db"`
	ImageCitations ImageCitations `yaml:"imagecitations"`
	Session        Session        `yaml:"session"`
}

// Load reads and parses the YAML file at path. It does not validate
// filesystem preconditions; internal/imaging.NewSink owns the
// imagecitations.path existence/writability check, keeping Load a pure
// parse step.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if cfg.DB.Host == "" {
		return Config{}, fmt.Errorf("config: db.host is required")
	}
	if cfg.DB.Database == "" {
		return Config{}, fmt.Errorf("config: db.database is required")
	}
	if cfg.ImageCitations.Path == "" {
		return Config{}, fmt.Errorf("config: imagecitations.path is required")
	}

	return cfg, nil
}

// DSN renders the db.* keys as a lib/pq connection string.
func (c Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s sslmode=disable",
		c.DB.Host, c.DB.User, c.DB.Password, c.DB.Database)
}
