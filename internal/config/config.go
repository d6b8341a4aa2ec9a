// Package config loads the wasmlab.toml file shared by every command.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caffeineduck/wasmlab/executor"
	"github.com/caffeineduck/wasmlab/guest"
	"github.com/caffeineduck/wasmlab/playground"
	"github.com/caffeineduck/wasmlab/reference"
)

// FileName is the config file looked up in the working directory when no
// path is given.
const FileName = "wasmlab.toml"

// Config is the decoded configuration file.
type Config struct {
	Logging    Logging             `toml:"logging"`
	Execution  Execution           `toml:"execution"`
	References References          `toml:"references"`
	Fallback   map[string]Fallback `toml:"fallback"`
	Server     Server              `toml:"server"`
}

// Logging configures the zap logger.
type Logging struct {
	Level       string   `toml:"level"`
	Development bool     `toml:"development"`
	Encoding    string   `toml:"encoding"`
	OutputPaths []string `toml:"output_paths"`
}

// Execution configures the sandbox.
type Execution struct {
	Timeout     time.Duration `toml:"timeout"`
	OutputLimit int64         `toml:"output_limit"`
	// Memory is one of 1mb, 16mb, 64mb, 256mb or 1gb. Empty means no limit.
	Memory    string `toml:"memory"`
	DiskCache bool   `toml:"disk_cache"`
	CacheDir  string `toml:"cache_dir"`
}

// References configures the reference cache.
type References struct {
	Names []string `toml:"names"`
	// BaseURL selects the HTTP supplier. Empty uses the bundled libraries.
	BaseURL     string `toml:"base_url"`
	Concurrency int    `toml:"concurrency"`
}

// Fallback overrides the console fallback gate of one language.
type Fallback struct {
	Enabled      *bool  `toml:"enabled"`
	DiagnosticID string `toml:"diagnostic"`
	MinVersion   int    `toml:"min_version"`
}

// Server configures the HTTP API.
type Server struct {
	Addr       string        `toml:"addr"`
	SessionTTL time.Duration `toml:"session_ttl"`
}

// Default returns the configuration used without a file.
func Default() *Config {
	return &Config{
		Logging: Logging{
			Level:       "info",
			Encoding:    "console",
			OutputPaths: []string{"stderr"},
		},
		Execution: Execution{
			Timeout:     executor.DefaultTimeout,
			OutputLimit: executor.DefaultOutputLimit,
			DiskCache:   true,
		},
		References: References{
			Names: slices.Clone(reference.DefaultNames),
		},
		Server: Server{
			Addr:       ":8080",
			SessionTTL: 15 * time.Minute,
		},
	}
}

// Load reads path on top of the defaults. An empty path reads FileName if
// it exists and returns the defaults otherwise.
func Load(path string) (*Config, error) {
	cfg := Default()
	explicit := path != ""
	if !explicit {
		path = FileName
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	if err := Parse(string(data), cfg); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes TOML text into cfg and validates the result.
func Parse(text string, cfg *Config) error {
	md, err := toml.Decode(text, cfg)
	if err != nil {
		return err
	}
	if keys := md.Undecoded(); len(keys) > 0 {
		names := make([]string, len(keys))
		for i, k := range keys {
			names[i] = k.String()
		}
		return fmt.Errorf("unknown keys: %s", strings.Join(names, ", "))
	}
	return cfg.Validate()
}

// Validate checks values the decoder cannot.
func (c *Config) Validate() error {
	if _, err := MemoryPages(c.Execution.Memory); err != nil {
		return err
	}
	if c.Execution.Timeout < 0 {
		return fmt.Errorf("execution.timeout must not be negative")
	}
	for name := range c.Fallback {
		if _, err := guest.ParseLanguage(name); err != nil {
			return fmt.Errorf("fallback.%s: %w", name, err)
		}
	}
	return nil
}

// MemoryPages converts a memory size name to wasm pages. Empty is zero.
func MemoryPages(s string) (uint32, error) {
	switch strings.ToLower(s) {
	case "":
		return 0, nil
	case "1mb":
		return executor.MemoryLimit1MB, nil
	case "16mb":
		return executor.MemoryLimit16MB, nil
	case "64mb":
		return executor.MemoryLimit64MB, nil
	case "256mb":
		return executor.MemoryLimit256MB, nil
	case "1gb":
		return executor.MemoryLimit1GB, nil
	}
	return 0, fmt.Errorf("invalid memory limit %q (expected 1mb, 16mb, 64mb, 256mb or 1gb)", s)
}

// ExecutorOptions translates the [execution] section.
func (c *Config) ExecutorOptions() []executor.ExecutorOption {
	opts := []executor.ExecutorOption{
		executor.WithDefaultTimeout(c.Execution.Timeout),
		executor.WithDefaultOutputLimit(c.Execution.OutputLimit),
	}
	if c.Execution.DiskCache {
		opts = append(opts, executor.WithDiskCache(c.Execution.CacheDir))
	}
	if pages, _ := MemoryPages(c.Execution.Memory); pages > 0 {
		opts = append(opts, executor.WithMemoryLimit(pages))
	}
	return opts
}

// Supplier returns the reference supplier selected by [references].
func (c *Config) Supplier() reference.Supplier {
	if c.References.BaseURL != "" {
		return reference.NewHTTPSupplier(c.References.BaseURL)
	}
	return reference.BundledSupplier{}
}

// CacheOptions translates the [references] section.
func (c *Config) CacheOptions() []reference.Option {
	var opts []reference.Option
	if c.References.Concurrency > 0 {
		opts = append(opts, reference.WithConcurrency(c.References.Concurrency))
	}
	return opts
}

// CompilerOptions returns the fallback overrides as compiler options.
func (c *Config) CompilerOptions() []playground.CompilerOption {
	var opts []playground.CompilerOption
	for name, f := range c.Fallback {
		id, err := guest.ParseLanguage(name)
		if err != nil {
			continue
		}
		opts = append(opts, playground.WithFallbackConfig(id, f.resolve(playground.DefaultFallbacks[id])))
	}
	return opts
}

func (f Fallback) resolve(base playground.FallbackConfig) playground.FallbackConfig {
	if f.Enabled != nil && !*f.Enabled {
		return playground.FallbackConfig{}
	}
	if f.DiagnosticID != "" {
		base.DiagnosticID = f.DiagnosticID
	}
	if f.MinVersion != 0 {
		base.MinVersion = f.MinVersion
	}
	return base
}
