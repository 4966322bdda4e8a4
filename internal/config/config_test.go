package config

import (
	"log/slog"
	"testing"
	"time"
)

func setRequiredEnvVars(t *testing.T) {
	t.Helper()
	t.Setenv("BASE_URL", "http://localhost:8080")
	t.Setenv("SESSION_STORE", "")
}

func TestLoad_AllRequiredVarsSet_ReturnsConfig(t *testing.T) {
	setRequiredEnvVars(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.BaseURL != "http://localhost:8080" {
		t.Errorf("BaseURL = %q, want %q", cfg.BaseURL, "http://localhost:8080")
	}
	if cfg.SessionStore != SessionStoreMemory {
		t.Errorf("SessionStore = %q, want %q", cfg.SessionStore, SessionStoreMemory)
	}
}

func TestLoad_DefaultValues(t *testing.T) {
	setRequiredEnvVars(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.APIBaseURL != DefaultAPIBaseURL {
		t.Errorf("APIBaseURL = %q, want %q", cfg.APIBaseURL, DefaultAPIBaseURL)
	}
	if cfg.SearchBuildingsPath != "/api/buildingss/" {
		t.Errorf("SearchBuildingsPath = %q, want %q", cfg.SearchBuildingsPath, "/api/buildingss/")
	}
	if cfg.SearchLandPath != "/api/landss/" {
		t.Errorf("SearchLandPath = %q, want %q", cfg.SearchLandPath, "/api/landss/")
	}
	if cfg.UpstreamTimeout != 0 {
		t.Errorf("UpstreamTimeout = %v, want 0", cfg.UpstreamTimeout)
	}
	if cfg.SecondaryFetchGrace != 3*time.Second {
		t.Errorf("SecondaryFetchGrace = %v, want %v", cfg.SecondaryFetchGrace, 3*time.Second)
	}
	if cfg.SessionMaxAge != 86400 {
		t.Errorf("SessionMaxAge = %d, want %d", cfg.SessionMaxAge, 86400)
	}
	if cfg.RateLimitGeneral != 120 {
		t.Errorf("RateLimitGeneral = %d, want %d", cfg.RateLimitGeneral, 120)
	}
	if cfg.RateLimitLogin != 10 {
		t.Errorf("RateLimitLogin = %d, want %d", cfg.RateLimitLogin, 10)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v, want %v", cfg.LogLevel, slog.LevelInfo)
	}
	if cfg.ServerPort != "8080" {
		t.Errorf("ServerPort = %q, want %q", cfg.ServerPort, "8080")
	}
	if cfg.CookieSecure {
		t.Error("CookieSecure should be false for http BASE_URL")
	}
}

func TestLoad_CustomValues(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("ESTATE_API_BASE_URL", "https://estate.example.com/")
	t.Setenv("ESTATE_SEARCH_BUILDINGS_PATH", "/api/buildings/search/")
	t.Setenv("UPSTREAM_TIMEOUT", "15s")
	t.Setenv("SECONDARY_FETCH_GRACE", "500ms")
	t.Setenv("SESSION_MAX_AGE", "3600")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("SERVER_PORT", "9090")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	// 末尾のスラッシュは除去される
	if cfg.APIBaseURL != "https://estate.example.com" {
		t.Errorf("APIBaseURL = %q, want %q", cfg.APIBaseURL, "https://estate.example.com")
	}
	if cfg.SearchBuildingsPath != "/api/buildings/search/" {
		t.Errorf("SearchBuildingsPath = %q, want %q", cfg.SearchBuildingsPath, "/api/buildings/search/")
	}
	if cfg.UpstreamTimeout != 15*time.Second {
		t.Errorf("UpstreamTimeout = %v, want %v", cfg.UpstreamTimeout, 15*time.Second)
	}
	if cfg.SecondaryFetchGrace != 500*time.Millisecond {
		t.Errorf("SecondaryFetchGrace = %v, want %v", cfg.SecondaryFetchGrace, 500*time.Millisecond)
	}
	if cfg.SessionMaxAge != 3600 {
		t.Errorf("SessionMaxAge = %d, want %d", cfg.SessionMaxAge, 3600)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("LogLevel = %v, want %v", cfg.LogLevel, slog.LevelDebug)
	}
	if cfg.ServerPort != "9090" {
		t.Errorf("ServerPort = %q, want %q", cfg.ServerPort, "9090")
	}
}

func TestLoad_MissingBaseURL_ReturnsError(t *testing.T) {
	t.Setenv("BASE_URL", "")
	t.Setenv("SESSION_STORE", "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for missing BASE_URL")
	}
}

func TestLoad_PostgresStore_RequiresDatabaseURL(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("SESSION_STORE", "postgres")
	t.Setenv("DATABASE_URL", "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for missing DATABASE_URL")
	}
}

func TestLoad_RedisStore_RequiresAddr(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("SESSION_STORE", "redis")
	t.Setenv("REDIS_ADDR", "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for missing REDIS_ADDR")
	}
}

func TestLoad_RedisStore_WithAddr(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("SESSION_STORE", "redis")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("REDIS_DB", "2")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.RedisAddr != "localhost:6379" {
		t.Errorf("RedisAddr = %q, want %q", cfg.RedisAddr, "localhost:6379")
	}
	if cfg.RedisDB != 2 {
		t.Errorf("RedisDB = %d, want %d", cfg.RedisDB, 2)
	}
}

func TestLoad_UnknownStore_ReturnsError(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("SESSION_STORE", "dynamo")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for unsupported SESSION_STORE")
	}
}

func TestLoad_CookieSecure_HTTPS(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("BASE_URL", "https://estate.example.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !cfg.CookieSecure {
		t.Error("CookieSecure should be true for https BASE_URL")
	}
}

func TestGetEnvDuration_InvalidValue_ReturnsDefault(t *testing.T) {
	t.Setenv("TEST_DURATION", "not-a-duration")

	got := getEnvDuration("TEST_DURATION", 5*time.Second)
	if got != 5*time.Second {
		t.Errorf("getEnvDuration = %v, want %v", got, 5*time.Second)
	}
}

func TestGetEnvLevel_InvalidValue_ReturnsDefault(t *testing.T) {
	t.Setenv("TEST_LEVEL", "verbose")

	got := getEnvLevel("TEST_LEVEL", slog.LevelWarn)
	if got != slog.LevelWarn {
		t.Errorf("getEnvLevel = %v, want %v", got, slog.LevelWarn)
	}
}
