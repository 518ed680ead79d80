// Package config loads the console configuration.
//
// Precedence: DefaultConfig → YAML file → environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete console configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Versioning VersioningConfig `yaml:"versioning"`
	Compiler   CompilerConfig   `yaml:"compiler"`
	Plan       PlanConfig       `yaml:"plan"`
	Log        LogConfig        `yaml:"log"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// DatabaseConfig selects the persistence gateway. An empty URL keeps
// documents in memory.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// RedisConfig enables snapshot mirroring when Addr is set.
type RedisConfig struct {
	Addr        string        `yaml:"addr"`
	Password    string        `yaml:"password"`
	DB          int           `yaml:"db"`
	SnapshotTTL time.Duration `yaml:"snapshot_ttl"`
}

type VersioningConfig struct {
	Retention bool `yaml:"retention"`
	Keep      int  `yaml:"keep"`
}

type CompilerConfig struct {
	Strict             bool   `yaml:"strict"`
	LowerConditions    bool   `yaml:"lower_conditions"`
	DelegateExpression string `yaml:"delegate_expression"`
}

type PlanConfig struct {
	Strict bool `yaml:"strict"`
}

type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{Addr: ":3000"},
		Redis:  RedisConfig{SnapshotTTL: 7 * 24 * time.Hour},
		Versioning: VersioningConfig{
			Keep: 2,
		},
		Compiler: CompilerConfig{DelegateExpression: "${aiAgentDelegate}"},
		Log:      LogConfig{Level: "info", Format: "json"},
	}
}

// Load reads path (if non-empty) over the defaults, applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) error {
	str := map[string]*string{
		"PROCFLOW_ADDR":           &cfg.Server.Addr,
		"DATABASE_URL":            &cfg.Database.URL,
		"PROCFLOW_REDIS_ADDR":     &cfg.Redis.Addr,
		"PROCFLOW_REDIS_PASSWORD": &cfg.Redis.Password,
		"PROCFLOW_LOG_LEVEL":      &cfg.Log.Level,
		"PROCFLOW_LOG_FORMAT":     &cfg.Log.Format,
	}
	for env, dst := range str {
		if v, ok := os.LookupEnv(env); ok {
			*dst = v
		}
	}

	flags := map[string]*bool{
		"PROCFLOW_RETENTION":        &cfg.Versioning.Retention,
		"PROCFLOW_STRICT_COMPILE":   &cfg.Compiler.Strict,
		"PROCFLOW_LOWER_CONDITIONS": &cfg.Compiler.LowerConditions,
		"PROCFLOW_STRICT_PLAN":      &cfg.Plan.Strict,
	}
	for env, dst := range flags {
		v, ok := os.LookupEnv(env)
		if !ok {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: %s: %w", env, err)
		}
		*dst = b
	}

	if v, ok := os.LookupEnv("PROCFLOW_REDIS_DB"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: PROCFLOW_REDIS_DB: %w", err)
		}
		cfg.Redis.DB = n
	}
	if v, ok := os.LookupEnv("PROCFLOW_SNAPSHOT_TTL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: PROCFLOW_SNAPSHOT_TTL: %w", err)
		}
		cfg.Redis.SnapshotTTL = d
	}
	return nil
}

// Validate rejects values the console cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is empty"))
	}
	if c.Versioning.Keep < 1 {
		errs = append(errs, fmt.Errorf("versioning.keep must be at least 1, got %d", c.Versioning.Keep))
	}
	if c.Redis.SnapshotTTL < 0 {
		errs = append(errs, fmt.Errorf("redis.snapshot_ttl must not be negative, got %s", c.Redis.SnapshotTTL))
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("log.format %q is not one of json, console", c.Log.Format))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: invalid: %w", err)
	}
	return nil
}
