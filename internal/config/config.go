// Package config loads and holds all store configuration.
// Settings are layered: defaults → config.json → environment variables (env vars win).
package config

import (
	"encoding/json"
	"log"
	"os"
	"strconv"
)

// Config holds the full store configuration.
type Config struct {
	Port        int    `json:"port"`
	CacheSize   int    `json:"cacheSize"`
	CachePolicy string `json:"cachePolicy"` // "LRU" | "LFU" | "ARC" | "ENHANCED"
	LogLevel    string `json:"logLevel"`

	APIKey   string `json:"apiKey"`
	Password string `json:"password"`

	ClusterNodes []string `json:"clusterNodes"`

	CertPath string `json:"certPath"`
	KeyPath  string `json:"keyPath"`

	AdminPort  int    `json:"adminPort"`
	AdminToken string `json:"adminToken"`

	AOFPath      string `json:"aofPath"`
	SnapshotPath string `json:"snapshotPath"`
	TTLStorePath string `json:"ttlStorePath"`

	MaxConnections int `json:"maxConnections"`
}

// Load returns config with defaults overridden by config.json and env vars.
func Load() *Config {
	cfg := defaults()
	loadFile(cfg, "config.json")
	loadEnv(cfg)
	return cfg
}

func defaults() *Config {
	return &Config{
		Port:           6380,
		CacheSize:      1000,
		CachePolicy:    "LRU",
		LogLevel:       "info",
		AdminPort:      6381,
		AOFPath:        "cachedb.aof",
		SnapshotPath:   "cachedb.snapshot",
		TTLStorePath:   "cachedb-ttl.db",
		MaxConnections: 1000,
		ClusterNodes:   []string{},
	}
}

func loadFile(cfg *Config, path string) {
	data, err := os.ReadFile(path) //nolint:gosec // G703: path is a controlled config file path, not user input
	if err != nil {
		return // file is optional
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		log.Printf("[CONFIG] Warning: could not parse %s: %v", path, err)
	} else {
		log.Printf("[CONFIG] Loaded %s", path)
	}
}

func loadEnv(cfg *Config) {
	if v := os.Getenv("CACHEDB_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Port = n
		}
	}
	if v := os.Getenv("CACHEDB_CACHE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.CacheSize = n
		}
	}
	if v := os.Getenv("CACHEDB_CACHE_POLICY"); v != "" {
		cfg.CachePolicy = v
	}
	if v := os.Getenv("CACHEDB_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("CACHEDB_API_KEY"); v != "" {
		cfg.APIKey = v
	}
	if v := os.Getenv("CACHEDB_PASSWORD"); v != "" {
		cfg.Password = v
	}
	if v := os.Getenv("CACHEDB_CERT_PATH"); v != "" {
		cfg.CertPath = v
	}
	if v := os.Getenv("CACHEDB_KEY_PATH"); v != "" {
		cfg.KeyPath = v
	}
	if v := os.Getenv("CACHEDB_ADMIN_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.AdminPort = n
		}
	}
	if v := os.Getenv("CACHEDB_ADMIN_TOKEN"); v != "" {
		cfg.AdminToken = v
	}
	if v := os.Getenv("CACHEDB_AOF_PATH"); v != "" {
		cfg.AOFPath = v
	}
	if v := os.Getenv("CACHEDB_SNAPSHOT_PATH"); v != "" {
		cfg.SnapshotPath = v
	}
	if v := os.Getenv("CACHEDB_TTL_STORE_PATH"); v != "" {
		cfg.TTLStorePath = v
	}
	if v := os.Getenv("CACHEDB_MAX_CONNECTIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxConnections = n
		}
	}
}
