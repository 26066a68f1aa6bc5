package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "UPSTREAM_TRANSPORT", "UPSTREAM_URL", "UPSTREAM_STOP_TIMEOUT", "ENABLE_UPLOAD_FILE", "Model", "ARK_API_KEY"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Addr != ":8080" {
		t.Fatalf("unexpected addr %q", cfg.Server.Addr)
	}
	if cfg.Upstream.Transport != TransportADK || cfg.Upstream.AppName != "travel_agent" || cfg.Upstream.UserID != "user" {
		t.Fatalf("unexpected upstream defaults: %+v", cfg.Upstream)
	}
	if cfg.Upstream.StopTimeout != 5*time.Second {
		t.Fatalf("unexpected stop timeout %v", cfg.Upstream.StopTimeout)
	}
	if !cfg.Settings.EnableUploadFile || !cfg.Settings.EnableSelectMode {
		t.Fatalf("feature flags should default to enabled: %+v", cfg.Settings)
	}
}

func TestLoadRejectsUnknownTransport(t *testing.T) {
	t.Setenv("UPSTREAM_TRANSPORT", "carrier-pigeon")

	if _, err := Load(); err == nil {
		t.Fatalf("expected error for unknown transport")
	}
}

func TestLoadArkRequiresCredentials(t *testing.T) {
	t.Setenv("UPSTREAM_TRANSPORT", "ark")
	t.Setenv("ARK_API_KEY", "")
	t.Setenv("ARK_ACCESS_KEY", "")
	t.Setenv("Model", "")

	if _, err := Load(); err == nil {
		t.Fatalf("expected error without ark credentials")
	}

	t.Setenv("ARK_API_KEY", "key")
	t.Setenv("Model", "ep-123")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !cfg.AI.Enabled() {
		t.Fatalf("expected AI config to be enabled")
	}
}

func TestParseDurationEnv(t *testing.T) {
	t.Setenv("UPSTREAM_STOP_TIMEOUT", "250ms")
	got, err := parseDurationEnv("UPSTREAM_STOP_TIMEOUT", time.Second)
	if err != nil || got != 250*time.Millisecond {
		t.Fatalf("got %v, %v", got, err)
	}

	t.Setenv("UPSTREAM_STOP_TIMEOUT", "-1s")
	if _, err := parseDurationEnv("UPSTREAM_STOP_TIMEOUT", time.Second); err == nil {
		t.Fatalf("expected error for negative duration")
	}
}

func TestPortWithHost(t *testing.T) {
	t.Setenv("PORT", "127.0.0.1:9000")

	cfg, err := loadServerConfig()
	if err != nil {
		t.Fatalf("loadServerConfig returned error: %v", err)
	}
	if cfg.Addr != "127.0.0.1:9000" {
		t.Fatalf("unexpected addr %q", cfg.Addr)
	}
}

func TestLoadCORSOrigins(t *testing.T) {
	t.Setenv("CORS_ORIGINS", " http://localhost:5173 ,,https://trip.example.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if len(cfg.Server.AllowedOrigins) != 2 || cfg.Server.AllowedOrigins[1] != "https://trip.example.com" {
		t.Fatalf("unexpected origins %v", cfg.Server.AllowedOrigins)
	}
}

func TestLoadSettingsAllowedHosts(t *testing.T) {
	t.Setenv("SETTINGS_ALLOWED_HOSTS", "agent.example.com, ,backup.example.com ")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if len(cfg.Settings.AllowedHosts) != 2 || cfg.Settings.AllowedHosts[1] != "backup.example.com" {
		t.Fatalf("unexpected hosts %v", cfg.Settings.AllowedHosts)
	}
}
