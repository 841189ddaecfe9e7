// Package config loads flowscan configuration from YAML with
// environment overrides. Defaults are usable out of the box; a config
// file and FLOWSCAN_* variables refine them.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/dd0wney/cluso-flowscan/pkg/flowgraph"
	"github.com/dd0wney/cluso-flowscan/pkg/matcher"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Config is the full flowscan configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Scan     ScanConfig     `yaml:"scan"`
	Log      LogConfig      `yaml:"log"`
	Auth     AuthConfig     `yaml:"auth"`
	Database DatabaseConfig `yaml:"database"`
	Dataset  DatasetConfig  `yaml:"dataset"`
	Feed     FeedConfig     `yaml:"feed"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host        string   `yaml:"host"`
	Port        int      `yaml:"port" validate:"required,gt=0,lte=65535"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// ScanConfig carries the default matching options.
type ScanConfig struct {
	Workers          int     `yaml:"workers" validate:"gte=0"`
	DurationRatioMin float64 `yaml:"duration_ratio_min" validate:"gt=0"`
	ProtoFirst       string  `yaml:"proto_first" validate:"required"`
	ProtoSecond      string  `yaml:"proto_second" validate:"required"`
	MalformedPolicy  string  `yaml:"malformed_policy" validate:"oneof=skip abort"`
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
}

// AuthConfig controls API authentication. An empty secret disables
// token auth entirely.
type AuthConfig struct {
	JWTSecret       string `yaml:"jwt_secret"`
	TokenTTLMinutes int    `yaml:"token_ttl_minutes" validate:"gt=0"`
}

// DatabaseConfig points at the report store. An empty URL disables
// report persistence.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// DatasetConfig controls remote capture fetching.
type DatasetConfig struct {
	S3Region   string `yaml:"s3_region"`
	S3Endpoint string `yaml:"s3_endpoint"`
}

// FeedConfig controls match publishing.
type FeedConfig struct {
	Endpoint  string `yaml:"endpoint"`
	Transport string `yaml:"transport" validate:"omitempty,oneof=zmq nng"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Scan: ScanConfig{
			Workers:          0, // autodetect
			DurationRatioMin: matcher.DefaultDurationRatio,
			ProtoFirst:       "tcp",
			ProtoSecond:      "icmp",
			MalformedPolicy:  "skip",
		},
		Log: LogConfig{
			Level: "info",
		},
		Auth: AuthConfig{
			TokenTTLMinutes: 60,
		},
	}
}

// Load builds a Config from defaults, an optional YAML file, and
// environment overrides, then validates the result.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays FLOWSCAN_* environment variables.
func (c *Config) applyEnv() error {
	if v := os.Getenv("FLOWSCAN_HOST"); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv("FLOWSCAN_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid FLOWSCAN_PORT %q: %w", v, err)
		}
		c.Server.Port = port
	}
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		origins := strings.Split(v, ",")
		for i, o := range origins {
			origins[i] = strings.TrimSpace(o)
		}
		c.Server.CORSOrigins = origins
	}
	if v := os.Getenv("FLOWSCAN_WORKERS"); v != "" {
		workers, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid FLOWSCAN_WORKERS %q: %w", v, err)
		}
		c.Scan.Workers = workers
	}
	if v := os.Getenv("FLOWSCAN_LOG_LEVEL"); v != "" {
		c.Log.Level = strings.ToLower(v)
	}
	if v := os.Getenv("FLOWSCAN_JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := os.Getenv("FLOWSCAN_DATABASE_URL"); v != "" {
		c.Database.URL = v
	}
	if v := os.Getenv("FLOWSCAN_S3_REGION"); v != "" {
		c.Dataset.S3Region = v
	}
	if v := os.Getenv("FLOWSCAN_FEED_ENDPOINT"); v != "" {
		c.Feed.Endpoint = v
	}
	return nil
}

// Validate checks the configuration against its struct constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			return formatValidationError(verrs)
		}
		return err
	}
	return nil
}

// formatValidationError turns validator output into a readable message.
func formatValidationError(verrs validator.ValidationErrors) error {
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", fe.Namespace()))
		case "gt":
			msgs = append(msgs, fmt.Sprintf("%s must be greater than %s", fe.Namespace(), fe.Param()))
		case "gte":
			msgs = append(msgs, fmt.Sprintf("%s must be at least %s", fe.Namespace(), fe.Param()))
		case "lte":
			msgs = append(msgs, fmt.Sprintf("%s must be at most %s", fe.Namespace(), fe.Param()))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of [%s]", fe.Namespace(), fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s validation", fe.Namespace(), fe.Tag()))
		}
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
}

// Constraints converts the scan section to matcher constraints.
func (c *Config) Constraints() matcher.Constraints {
	return matcher.Constraints{
		DurationRatioMin: c.Scan.DurationRatioMin,
		ProtoFirst:       c.Scan.ProtoFirst,
		ProtoSecond:      c.Scan.ProtoSecond,
		TimeOrder:        true,
	}
}

// GraphOptions converts the scan section to graph construction options.
func (c *Config) GraphOptions() flowgraph.Options {
	return flowgraph.Options{Malformed: flowgraph.ParseMalformedPolicy(c.Scan.MalformedPolicy)}
}

// Addr returns the listen address in host:port form.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
