package config

import (
	"encoding/json"
	"os"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg := defaults()

	if cfg.Port != 6380 {
		t.Errorf("Port: got %d, want 6380", cfg.Port)
	}
	if cfg.CacheSize != 1000 {
		t.Errorf("CacheSize: got %d, want 1000", cfg.CacheSize)
	}
	if cfg.CachePolicy != "LRU" {
		t.Errorf("CachePolicy: got %s, want LRU", cfg.CachePolicy)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel: got %s", cfg.LogLevel)
	}
	if cfg.AdminPort != 6381 {
		t.Errorf("AdminPort: got %d, want 6381", cfg.AdminPort)
	}
	if cfg.AOFPath != "cachedb.aof" {
		t.Errorf("AOFPath: got %s", cfg.AOFPath)
	}
	if cfg.SnapshotPath != "cachedb.snapshot" {
		t.Errorf("SnapshotPath: got %s", cfg.SnapshotPath)
	}
	if cfg.TTLStorePath != "cachedb-ttl.db" {
		t.Errorf("TTLStorePath: got %s", cfg.TTLStorePath)
	}
	if cfg.MaxConnections != 1000 {
		t.Errorf("MaxConnections: got %d, want 1000", cfg.MaxConnections)
	}
	if cfg.ClusterNodes == nil {
		t.Error("ClusterNodes should be initialized, not nil")
	}
}

func TestLoadEnv_Port(t *testing.T) {
	t.Setenv("CACHEDB_PORT", "9090")
	cfg := defaults()
	loadEnv(cfg)
	if cfg.Port != 9090 {
		t.Errorf("Port: got %d, want 9090", cfg.Port)
	}
}

func TestLoadEnv_CacheSize(t *testing.T) {
	t.Setenv("CACHEDB_CACHE_SIZE", "5000")
	cfg := defaults()
	loadEnv(cfg)
	if cfg.CacheSize != 5000 {
		t.Errorf("CacheSize: got %d, want 5000", cfg.CacheSize)
	}
}

func TestLoadEnv_CacheSize_Zero_Ignored(t *testing.T) {
	t.Setenv("CACHEDB_CACHE_SIZE", "0")
	cfg := defaults()
	loadEnv(cfg)
	if cfg.CacheSize != 1000 {
		t.Errorf("CacheSize: got %d, want 1000 (zero should be ignored)", cfg.CacheSize)
	}
}

func TestLoadEnv_CachePolicy(t *testing.T) {
	t.Setenv("CACHEDB_CACHE_POLICY", "ARC")
	cfg := defaults()
	loadEnv(cfg)
	if cfg.CachePolicy != "ARC" {
		t.Errorf("CachePolicy: got %s, want ARC", cfg.CachePolicy)
	}
}

func TestLoadEnv_LogLevel(t *testing.T) {
	t.Setenv("CACHEDB_LOG_LEVEL", "debug")
	cfg := defaults()
	loadEnv(cfg)
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel: got %s", cfg.LogLevel)
	}
}

func TestLoadEnv_APIKey(t *testing.T) {
	t.Setenv("CACHEDB_API_KEY", "abc123")
	cfg := defaults()
	loadEnv(cfg)
	if cfg.APIKey != "abc123" {
		t.Errorf("APIKey: got %s", cfg.APIKey)
	}
}

func TestLoadEnv_Password(t *testing.T) {
	t.Setenv("CACHEDB_PASSWORD", "hunter2")
	cfg := defaults()
	loadEnv(cfg)
	if cfg.Password != "hunter2" {
		t.Errorf("Password: got %s", cfg.Password)
	}
}

func TestLoadEnv_AdminPort(t *testing.T) {
	t.Setenv("CACHEDB_ADMIN_PORT", "9091")
	cfg := defaults()
	loadEnv(cfg)
	if cfg.AdminPort != 9091 {
		t.Errorf("AdminPort: got %d, want 9091", cfg.AdminPort)
	}
}

func TestLoadEnv_AdminToken(t *testing.T) {
	t.Setenv("CACHEDB_ADMIN_TOKEN", "secret-token")
	cfg := defaults()
	loadEnv(cfg)
	if cfg.AdminToken != "secret-token" {
		t.Errorf("AdminToken: got %s", cfg.AdminToken)
	}
}

func TestLoadEnv_AOFPath(t *testing.T) {
	t.Setenv("CACHEDB_AOF_PATH", "/tmp/my.aof")
	cfg := defaults()
	loadEnv(cfg)
	if cfg.AOFPath != "/tmp/my.aof" {
		t.Errorf("AOFPath: got %s", cfg.AOFPath)
	}
}

func TestLoadEnv_SnapshotPath(t *testing.T) {
	t.Setenv("CACHEDB_SNAPSHOT_PATH", "/tmp/my.snapshot")
	cfg := defaults()
	loadEnv(cfg)
	if cfg.SnapshotPath != "/tmp/my.snapshot" {
		t.Errorf("SnapshotPath: got %s", cfg.SnapshotPath)
	}
}

func TestLoadEnv_TTLStorePath(t *testing.T) {
	t.Setenv("CACHEDB_TTL_STORE_PATH", "/tmp/my-ttl.db")
	cfg := defaults()
	loadEnv(cfg)
	if cfg.TTLStorePath != "/tmp/my-ttl.db" {
		t.Errorf("TTLStorePath: got %s", cfg.TTLStorePath)
	}
}

func TestLoadEnv_MaxConnections(t *testing.T) {
	t.Setenv("CACHEDB_MAX_CONNECTIONS", "50")
	cfg := defaults()
	loadEnv(cfg)
	if cfg.MaxConnections != 50 {
		t.Errorf("MaxConnections: got %d, want 50", cfg.MaxConnections)
	}
}

func TestLoadEnv_InvalidPort_Ignored(t *testing.T) {
	t.Setenv("CACHEDB_PORT", "not-a-number")
	cfg := defaults()
	loadEnv(cfg)
	if cfg.Port != 6380 {
		t.Errorf("Port: got %d, want 6380 (invalid env should be ignored)", cfg.Port)
	}
}

func TestLoadFile_ValidJSON(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "config-*.json")
	if err != nil {
		t.Fatal(err)
	}

	data, marshalErr := json.Marshal(map[string]any{
		"port":        9999,
		"cachePolicy": "LFU",
		"cacheSize":   2500,
	})
	if marshalErr != nil {
		t.Fatal(marshalErr)
	}
	if _, err := f.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	cfg := defaults()
	loadFile(cfg, f.Name())

	if cfg.Port != 9999 {
		t.Errorf("Port: got %d, want 9999", cfg.Port)
	}
	if cfg.CachePolicy != "LFU" {
		t.Errorf("CachePolicy: got %s", cfg.CachePolicy)
	}
	if cfg.CacheSize != 2500 {
		t.Errorf("CacheSize: got %d, want 2500", cfg.CacheSize)
	}
}

func TestLoadFile_Missing_IsNoOp(t *testing.T) {
	cfg := defaults()
	loadFile(cfg, "/nonexistent/path/config.json")
	if cfg.Port != 6380 {
		t.Errorf("Port changed unexpectedly: %d", cfg.Port)
	}
}

func TestLoadFile_InvalidJSON_PreservesDefaults(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "config-bad-*.json")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString("{this is not json}"); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	cfg := defaults()
	loadFile(cfg, f.Name())
	if cfg.Port != 6380 {
		t.Errorf("Port changed on bad JSON: %d", cfg.Port)
	}
}

func TestLoad_ReturnsNonNil(t *testing.T) {
	cfg := Load()
	if cfg == nil {
		t.Fatal("Load() returned nil")
	}
	if cfg.Port <= 0 {
		t.Errorf("Port should be positive, got %d", cfg.Port)
	}
}
