package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "")
	t.Setenv("ORDER_LOCK_TTL_MINUTES", "")

	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("port = %s, want 8080", cfg.Port)
	}
	if cfg.AccessTokenTTLMinutes != 480 {
		t.Fatalf("token ttl = %d, want 480", cfg.AccessTokenTTLMinutes)
	}
	if cfg.LockTTLMinutes != 10 {
		t.Fatalf("lock ttl = %d, want 10", cfg.LockTTLMinutes)
	}
	if cfg.Address() != ":8080" {
		t.Fatalf("address = %s", cfg.Address())
	}
}

func TestLoadOverridesAndBadValues(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "nope")
	t.Setenv("ORDER_LOCK_TTL_MINUTES", "-3")
	t.Setenv("AUTH_SECRET", "  secret-with-space  ")

	cfg := Load()
	if cfg.Port != "9999" {
		t.Fatalf("port = %s, want 9999", cfg.Port)
	}
	if cfg.AccessTokenTTLMinutes != 480 {
		t.Fatalf("bad ttl should fall back to 480, got %d", cfg.AccessTokenTTLMinutes)
	}
	if cfg.LockTTLMinutes != 10 {
		t.Fatalf("negative lock ttl should fall back to 10, got %d", cfg.LockTTLMinutes)
	}
	if cfg.AuthSecret != "secret-with-space" {
		t.Fatalf("auth secret should be trimmed, got %q", cfg.AuthSecret)
	}
}
