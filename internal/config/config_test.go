package config

import (
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"API_ADDR", "KANBAN_STORAGE", "KANBAN_ACCESS_TTL_SECONDS", "REDIS_URL",
		"MEILI_URL", "LOG_LEVEL", "KANBAN_MIGRATIONS_DIR", "KANBAN_BOARD_CACHE_TTL_SECONDS",
	} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.Addr != ":8787" {
		t.Fatalf("Addr = %q", cfg.Addr)
	}
	if cfg.Storage != StoragePostgres {
		t.Fatalf("Storage = %q", cfg.Storage)
	}
	if cfg.AccessTTL != 15*time.Minute {
		t.Fatalf("AccessTTL = %s", cfg.AccessTTL)
	}
	if cfg.RedisURL != "" || cfg.MeiliURL != "" {
		t.Fatalf("optional backends should default to disabled: %+v", cfg)
	}
	if cfg.LogLevel != log.InfoLevel {
		t.Fatalf("LogLevel = %s", cfg.LogLevel)
	}
	if cfg.MigrationsDir != "./db/migrations" {
		t.Fatalf("MigrationsDir = %q", cfg.MigrationsDir)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("KANBAN_STORAGE", " Memory ")
	t.Setenv("KANBAN_ACCESS_TTL_SECONDS", "60")
	t.Setenv("KANBAN_BOARD_CACHE_TTL_SECONDS", "5")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("REDIS_URL", "redis://cache:6379/1")

	cfg := Load()
	if cfg.Storage != StorageMemory {
		t.Fatalf("Storage = %q", cfg.Storage)
	}
	if cfg.AccessTTL != time.Minute || cfg.BoardCacheTTL != 5*time.Second {
		t.Fatalf("ttls = %s %s", cfg.AccessTTL, cfg.BoardCacheTTL)
	}
	if cfg.LogLevel != log.DebugLevel {
		t.Fatalf("LogLevel = %s", cfg.LogLevel)
	}
	if cfg.RedisURL != "redis://cache:6379/1" {
		t.Fatalf("RedisURL = %q", cfg.RedisURL)
	}
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("KANBAN_STORAGE", "sqlite")
	t.Setenv("KANBAN_REFRESH_TTL_SECONDS", "soon")
	t.Setenv("LOG_LEVEL", "loud")

	cfg := Load()
	if cfg.Storage != StoragePostgres {
		t.Fatalf("Storage = %q", cfg.Storage)
	}
	if cfg.RefreshTTL != 30*24*time.Hour {
		t.Fatalf("RefreshTTL = %s", cfg.RefreshTTL)
	}
	if cfg.LogLevel != log.InfoLevel {
		t.Fatalf("LogLevel = %s", cfg.LogLevel)
	}
}
