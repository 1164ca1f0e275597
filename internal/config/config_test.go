package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ENV", "")
	t.Setenv("UPLOAD_DIR", "")

	cfg := Load()

	if cfg.Port != "8080" {
		t.Fatalf("default port = %q", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Fatalf("default env = %q", cfg.Env)
	}
	if !cfg.IsDevelopment() {
		t.Fatal("default env should be development")
	}
	if cfg.UploadDir != "./data/uploads" {
		t.Fatalf("default upload dir = %q", cfg.UploadDir)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "staging")
	t.Setenv("ALLOWED_ORIGINS", "https://shop.example.com, https://admin.example.com ,")
	t.Setenv("RATE_LIMIT_WHITELIST", "10.0.0.1")

	cfg := Load()

	if cfg.Port != "9090" || cfg.Env != "staging" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.IsDevelopment() {
		t.Fatal("staging is not development")
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://admin.example.com" {
		t.Fatalf("origins = %v", cfg.AllowedOrigins)
	}
	if len(cfg.RateLimitWhitelist) != 1 {
		t.Fatalf("whitelist = %v", cfg.RateLimitWhitelist)
	}
}

func TestProductionRequiresSecrets(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("ADMIN_TOKEN_HASH", "")
	t.Setenv("CLEANUP_SECRET", "")
	t.Setenv("ALLOWED_ORIGINS", "")

	defer func() {
		if recover() == nil {
			t.Fatal("production without secrets should panic")
		}
	}()
	Load()
}
