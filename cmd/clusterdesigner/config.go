// ABOUTME: Layered server configuration: defaults, optional TOML file, then CLUSTERDESIGNER_* environment variables.
// ABOUTME: Enforces the loopback-only bind rule unless remote access is explicitly allowed.
package main

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/2389-research/clusterdesigner/layout"
	"github.com/2389-research/clusterdesigner/nodeconfig"
)

const envPrefix = "CLUSTERDESIGNER_"

// Storage backends.
const (
	StorageFile   = "file"
	StorageSQLite = "sqlite"
	StorageRedis  = "redis"
	StorageNone   = "none"
)

var (
	ErrNonLoopbackBind = errors.New(
		"bind is a non-loopback address but allow_remote is not set; set CLUSTERDESIGNER_ALLOW_REMOTE=true to allow remote access",
	)
	ErrUnknownStorage = errors.New("unknown storage backend (expected file, sqlite, redis, or none)")
)

// duration is a time.Duration that decodes from strings like "30m".
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// RedisConfig configures the redis storage backend.
type RedisConfig struct {
	Addr     string   `toml:"addr"`
	Password string   `toml:"password"`
	DB       int      `toml:"db"`
	Prefix   string   `toml:"prefix"`
	TTL      duration `toml:"ttl"`
}

// Config holds everything `clusterdesigner serve` needs.
type Config struct {
	Bind         string      `toml:"bind"`
	AllowRemote  bool        `toml:"allow_remote"`
	DataDir      string      `toml:"data_dir"`
	Storage      string      `toml:"storage"`
	Redis        RedisConfig `toml:"redis"`
	ExportDir    string      `toml:"export_dir"`
	ExportFormat string      `toml:"export_format"`
	CatalogPath  string      `toml:"catalog"`
	CanvasWidth  float64     `toml:"canvas_width"`
	MaxSessions  int         `toml:"max_sessions"`
	SessionTTL   duration    `toml:"session_ttl"`
	Preview      bool        `toml:"preview"`
	Metrics      bool        `toml:"metrics"`
	NodeID       string      `toml:"node_id"`
	NodeName     string      `toml:"node_name"`
}

func defaultConfig() Config {
	return Config{
		Bind:         "127.0.0.1:7780",
		Storage:      StorageFile,
		Redis:        RedisConfig{Addr: "127.0.0.1:6379"},
		ExportFormat: string(nodeconfig.FormatXML),
		CanvasWidth:  layout.DefaultCanvasWidth,
		MaxSessions:  64,
		SessionTTL:   duration{2 * time.Hour},
		Preview:      true,
		Metrics:      true,
	}
}

// loadConfig resolves the configuration. An explicit path must exist; with
// no path the default config.toml is used when present.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()

	explicit := path != ""
	if !explicit {
		p, err := defaultConfigPath()
		if err == nil {
			path = p
		}
	}
	if path != "" {
		_, err := toml.DecodeFile(path, &cfg)
		switch {
		case err == nil:
		case errors.Is(err, os.ErrNotExist) && !explicit:
		default:
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.fillDirs(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv overrides cfg with CLUSTERDESIGNER_* variables.
func applyEnv(cfg *Config) error {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(envPrefix + key); ok && v != "" {
			*dst = v
		}
	}
	var errs []error
	parse := func(key string, set func(string) error) {
		if v, ok := os.LookupEnv(envPrefix + key); ok && v != "" {
			if err := set(v); err != nil {
				errs = append(errs, fmt.Errorf("%s%s=%q: %w", envPrefix, key, v, err))
			}
		}
	}
	boolean := func(key string, dst *bool) {
		parse(key, func(v string) error {
			switch strings.ToLower(v) {
			case "true", "1", "yes":
				*dst = true
			case "false", "0", "no":
				*dst = false
			default:
				return fmt.Errorf("not a boolean")
			}
			return nil
		})
	}
	integer := func(key string, dst *int) {
		parse(key, func(v string) (err error) {
			*dst, err = strconv.Atoi(v)
			return err
		})
	}
	dur := func(key string, dst *duration) {
		parse(key, func(v string) error { return dst.UnmarshalText([]byte(v)) })
	}

	str("BIND", &cfg.Bind)
	boolean("ALLOW_REMOTE", &cfg.AllowRemote)
	str("DATA_DIR", &cfg.DataDir)
	str("STORAGE", &cfg.Storage)
	str("REDIS_ADDR", &cfg.Redis.Addr)
	str("REDIS_PASSWORD", &cfg.Redis.Password)
	integer("REDIS_DB", &cfg.Redis.DB)
	str("REDIS_PREFIX", &cfg.Redis.Prefix)
	dur("REDIS_TTL", &cfg.Redis.TTL)
	str("EXPORT_DIR", &cfg.ExportDir)
	str("EXPORT_FORMAT", &cfg.ExportFormat)
	str("CATALOG", &cfg.CatalogPath)
	parse("CANVAS_WIDTH", func(v string) (err error) {
		cfg.CanvasWidth, err = strconv.ParseFloat(v, 64)
		return err
	})
	integer("MAX_SESSIONS", &cfg.MaxSessions)
	dur("SESSION_TTL", &cfg.SessionTTL)
	boolean("PREVIEW", &cfg.Preview)
	boolean("METRICS", &cfg.Metrics)
	str("NODE_ID", &cfg.NodeID)
	str("NODE_NAME", &cfg.NodeName)

	return errors.Join(errs...)
}

func (c *Config) fillDirs() error {
	if c.DataDir == "" {
		dir, err := defaultDataDir()
		if err != nil {
			return err
		}
		c.DataDir = dir
	}
	if c.ExportDir == "" {
		c.ExportDir = filepath.Join(c.DataDir, "exports")
	}
	return nil
}

// validate checks the settings that cannot be fixed by defaults.
func (c Config) validate() error {
	switch c.Storage {
	case StorageFile, StorageSQLite, StorageRedis, StorageNone:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownStorage, c.Storage)
	}
	if _, err := nodeconfig.ParseFormat(c.ExportFormat); err != nil {
		return err
	}
	if c.MaxSessions <= 0 {
		return fmt.Errorf("max_sessions must be positive, got %d", c.MaxSessions)
	}
	if c.SessionTTL.Duration <= 0 {
		return fmt.Errorf("session_ttl must be positive, got %s", c.SessionTTL)
	}
	return checkBind(c.Bind, c.AllowRemote)
}

// checkBind refuses non-loopback binds unless remote access is allowed.
// Only 127.0.0.0/8, ::1, and "localhost" count as loopback.
func checkBind(bind string, allowRemote bool) error {
	if allowRemote {
		return nil
	}
	host, _, err := net.SplitHostPort(bind)
	if err != nil {
		return fmt.Errorf("invalid bind address %q: %w", bind, err)
	}
	if host == "localhost" {
		return nil
	}
	if ip := net.ParseIP(host); ip != nil && ip.IsLoopback() {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrNonLoopbackBind, bind)
}
