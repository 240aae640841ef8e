// Package config loads server configuration from a TOML file, with sane
// defaults so a bare `soldep serve` works without one.
package config

import (
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/soldep/soldep/pkg/errors"
	"github.com/soldep/soldep/pkg/solsrc"
)

// Config is the full server configuration.
type Config struct {
	Server  Server  `toml:"server"`
	Limits  Limits  `toml:"limits"`
	Fetch   Fetch   `toml:"fetch"`
	Cache   Cache   `toml:"cache"`
	Store   Store   `toml:"store"`
	Solc    Solc    `toml:"solc"`
	Logging Logging `toml:"logging"`
}

type Server struct {
	Addr            string   `toml:"addr"`
	RequestDeadline duration `toml:"request_deadline"`
}

type Limits struct {
	MaxFiles    int `toml:"max_files"`
	MaxFileSize int `toml:"max_file_size"`
	MaxTotal    int `toml:"max_total_size"`
	MaxImports  int `toml:"max_imports"`
}

type Fetch struct {
	Retries  int      `toml:"retries"`
	Timeout  duration `toml:"timeout"`
	CacheTTL duration `toml:"cache_ttl"`
}

// Cache selects the backend shared by the content and failure caches.
type Cache struct {
	Backend string `toml:"backend"` // memory, file, redis
	Dir     string `toml:"dir"`     // file backend
	Addr    string `toml:"addr"`    // redis backend
	Pass    string `toml:"password"`
	DB      int    `toml:"db"`
}

// Store selects where compilation records go.
type Store struct {
	Backend    string `toml:"backend"` // memory, mongo
	URI        string `toml:"uri"`
	Database   string `toml:"database"`
	Collection string `toml:"collection"`
}

type Solc struct {
	Binary string `toml:"binary"`
}

type Logging struct {
	Level string `toml:"level"`
}

// duration unwraps TOML duration strings like "30s".
type duration time.Duration

func (d *duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = duration(v)
	return nil
}

func (d duration) Std() time.Duration { return time.Duration(d) }

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Server: Server{
			Addr:            ":8080",
			RequestDeadline: duration(2 * time.Minute),
		},
		Cache:   Cache{Backend: "memory"},
		Store:   Store{Backend: "memory"},
		Solc:    Solc{Binary: "solc"},
		Logging: Logging{Level: "info"},
	}
}

// Load reads a TOML file over the defaults. An empty path returns the
// defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(errors.ErrCodeInvalidInput, err, "reading config file %s", path)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrap(errors.ErrCodeInvalidInput, err, "parsing config file %s", path)
	}
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Cache.Backend {
	case "memory", "file", "redis":
	default:
		return errors.New(errors.ErrCodeInvalidInput, "unknown cache backend %q", c.Cache.Backend)
	}
	switch c.Store.Backend {
	case "memory", "mongo":
	default:
		return errors.New(errors.ErrCodeInvalidInput, "unknown store backend %q", c.Store.Backend)
	}
	if c.Store.Backend == "mongo" && c.Store.URI == "" {
		return errors.New(errors.ErrCodeInvalidInput, "store backend mongo requires a uri")
	}
	return nil
}

// SourceLimits converts the configured limits, leaving zeroes for defaults.
func (c Config) SourceLimits() solsrc.Limits {
	return solsrc.Limits{
		MaxFiles:     c.Limits.MaxFiles,
		MaxFileSize:  c.Limits.MaxFileSize,
		MaxTotalSize: c.Limits.MaxTotal,
		MaxImports:   c.Limits.MaxImports,
	}
}
