package config

import (
	"os"
	"testing"

	"github.com/spf13/viper"
)

func TestLoadConfig_UsesSessionSecretAlias(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	unsetEnvWithCleanup(t, "JWT_SECRET")
	setEnvWithCleanup(t, "SESSION_SECRET", "alias-only-secret")
	setEnvWithCleanup(t, "STORE_BACKEND", "memory")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.JWTSecret != "alias-only-secret" {
		t.Fatalf("expected JWTSecret from alias env var, got %q", cfg.JWTSecret)
	}
}

func TestLoadConfig_RequiresDatabaseURLForPostgresBackend(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "JWT_SECRET", "secret")
	setEnvWithCleanup(t, "STORE_BACKEND", "postgres")
	unsetEnvWithCleanup(t, "DATABASE_URL")

	if _, err := LoadConfig(t.TempDir()); err == nil {
		t.Fatal("expected error when DATABASE_URL is missing for postgres backend")
	}
}

func TestLoadConfig_RejectsUnknownStoreBackend(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "JWT_SECRET", "secret")
	setEnvWithCleanup(t, "STORE_BACKEND", "dynamo")

	if _, err := LoadConfig(t.TempDir()); err == nil {
		t.Fatal("expected error for unsupported store backend")
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "JWT_SECRET", "secret")
	setEnvWithCleanup(t, "STORE_BACKEND", "memory")
	unsetEnvWithCleanup(t, "SERVER_PORT")
	unsetEnvWithCleanup(t, "PORT")
	unsetEnvWithCleanup(t, "TOKEN_TTL_MINUTES")
	unsetEnvWithCleanup(t, "ACCEPT_RATE_LIMIT_PER_MINUTE")
	unsetEnvWithCleanup(t, "REDIS_RATE_LIMIT_PREFIX")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ServerPort != "8080" {
		t.Errorf("expected default server port 8080, got %q", cfg.ServerPort)
	}
	if cfg.TokenTTLMinutes != 1440 {
		t.Errorf("expected default token ttl 1440, got %d", cfg.TokenTTLMinutes)
	}
	if cfg.AcceptRateLimitPerMinute != 30 {
		t.Errorf("expected default accept rate limit 30, got %d", cfg.AcceptRateLimitPerMinute)
	}
	if cfg.RedisRateLimitPrefix != "p2ploan:rate_limit" {
		t.Errorf("expected default redis prefix, got %q", cfg.RedisRateLimitPrefix)
	}
}

func TestLoadConfig_PortOverridesServerPort(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "JWT_SECRET", "secret")
	setEnvWithCleanup(t, "STORE_BACKEND", "memory")
	setEnvWithCleanup(t, "SERVER_PORT", "8080")
	setEnvWithCleanup(t, "PORT", "9090")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ServerPort != "9090" {
		t.Fatalf("expected PORT to win, got %q", cfg.ServerPort)
	}
}

func setEnvWithCleanup(t *testing.T, key string, value string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Setenv(key, value); err != nil {
		t.Fatalf("failed to set env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
			return
		}
		_ = os.Unsetenv(key)
	})
}

func unsetEnvWithCleanup(t *testing.T, key string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Unsetenv(key); err != nil {
		t.Fatalf("failed to unset env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
			return
		}
		_ = os.Unsetenv(key)
	})
}
