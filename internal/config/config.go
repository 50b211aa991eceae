// Package config loads the application configuration from a YAML file, a
// .env file, and STOCKHIST_* environment variables, in increasing order of
// precedence.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"stockhist/internal/quota"
)

type Source struct {
	Provider        string `yaml:"provider"` // yahoo | mock
	HistoryBaseURL  string `yaml:"history_base_url"`
	DownloadBaseURL string `yaml:"download_base_url"`
	TimeoutSeconds  int    `yaml:"timeout_seconds"`
	UserAgent       string `yaml:"user_agent"`
}

type Cache struct {
	Driver string `yaml:"driver"` // sqlite | memory
	Path   string `yaml:"path"`
	Quoted bool   `yaml:"quoted"` // wrap the store with cache quota managers
}

type Quotas struct {
	RemoteRead quota.Policy `yaml:"remote_read"`
	CacheRead  quota.Policy `yaml:"cache_read"`
	CacheWrite quota.Policy `yaml:"cache_write"`
}

type Root struct {
	Source Source `yaml:"source"`
	Cache  Cache  `yaml:"cache"`
	Quotas Quotas `yaml:"quotas"`
}

// Load reads path (missing file yields pure defaults), then overlays .env
// and environment overrides, then fills defaults and validates.
func Load(path string) (Root, error) {
	// .env populates the process environment without clobbering real vars
	_ = godotenv.Load()

	var c Root
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return c, err
		}
		if err == nil {
			if err := yaml.Unmarshal(b, &c); err != nil {
				return c, err
			}
		}
	}

	overlayEnv(&c)
	applyDefaults(&c)

	switch c.Source.Provider {
	case "yahoo", "mock":
	default:
		return c, fmt.Errorf("invalid source provider: %q", c.Source.Provider)
	}
	switch c.Cache.Driver {
	case "sqlite", "memory":
	default:
		return c, fmt.Errorf("invalid cache driver: %q", c.Cache.Driver)
	}
	for _, p := range []*quota.Policy{&c.Quotas.RemoteRead, &c.Quotas.CacheRead, &c.Quotas.CacheWrite} {
		if err := p.Validate(); err != nil {
			return c, err
		}
	}
	return c, nil
}

func overlayEnv(c *Root) {
	envStr("STOCKHIST_SOURCE_PROVIDER", &c.Source.Provider)
	envStr("STOCKHIST_HISTORY_BASE_URL", &c.Source.HistoryBaseURL)
	envStr("STOCKHIST_DOWNLOAD_BASE_URL", &c.Source.DownloadBaseURL)
	envInt("STOCKHIST_TIMEOUT_SECONDS", &c.Source.TimeoutSeconds)
	envStr("STOCKHIST_USER_AGENT", &c.Source.UserAgent)
	envStr("STOCKHIST_CACHE_DRIVER", &c.Cache.Driver)
	envStr("STOCKHIST_CACHE_PATH", &c.Cache.Path)
}

func applyDefaults(c *Root) {
	if c.Source.Provider == "" {
		c.Source.Provider = "yahoo"
	}
	if c.Source.TimeoutSeconds == 0 {
		c.Source.TimeoutSeconds = 30
	}
	if c.Cache.Driver == "" {
		c.Cache.Driver = "sqlite"
	}
	if c.Cache.Path == "" {
		c.Cache.Path = "data/stockhist.db"
	}

	// spaced remote reads keep the provider from throttling us; the local
	// cache needs no pacing, only retry
	if c.Quotas.RemoteRead.Strategy == "" {
		c.Quotas.RemoteRead = quota.Policy{
			Strategy:          quota.StrategyLevel,
			Quota:             30,
			Unit:              quota.UnitMinute,
			MaxBackoffSeconds: 64,
		}
	}
	if c.Quotas.CacheRead.Strategy == "" {
		c.Quotas.CacheRead = quota.Policy{
			Strategy:          quota.StrategyNone,
			MaxBackoffSeconds: 8,
		}
	}
	if c.Quotas.CacheWrite.Strategy == "" {
		c.Quotas.CacheWrite = quota.Policy{
			Strategy:          quota.StrategyNone,
			MaxBackoffSeconds: 8,
		}
	}
}

func envStr(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
