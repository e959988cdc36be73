package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CLOUDDRIVE_AUTH_JWT_SECRET", "test-secret")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("listen_addr = %q", cfg.Server.ListenAddr)
	}
	if cfg.Database.Driver != "sqlite" || cfg.Database.Path != "clouddrive.db" {
		t.Errorf("database = %+v", cfg.Database)
	}
	if cfg.Storage.Backend != "local" {
		t.Errorf("storage backend = %q", cfg.Storage.Backend)
	}
	if cfg.Auth.TokenTTL != 24*time.Hour {
		t.Errorf("token ttl = %v", cfg.Auth.TokenTTL)
	}
}

func TestLoadRequiresSecret(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatal("config without a JWT secret accepted")
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
server:
  listen_addr: ":9090"
logging:
  level: debug
  format: console
database:
  driver: sqlite
  path: /tmp/test.db
auth:
  jwt_secret: file-secret
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.ListenAddr != ":9090" || cfg.Logging.Level != "debug" ||
		cfg.Auth.JWTSecret != "file-secret" {
		t.Errorf("unexpected config: %+v", cfg)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
server:
  listen_addr: ":9090"
auth:
  jwt_secret: file-secret
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CLOUDDRIVE_SERVER_LISTEN_ADDR", ":7070")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.ListenAddr != ":7070" {
		t.Errorf("env override lost: %q", cfg.Server.ListenAddr)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("CLOUDDRIVE_AUTH_JWT_SECRET", "s")
	t.Setenv("CLOUDDRIVE_LOGGING_LEVEL", "loud")

	if _, err := Load(""); err == nil {
		t.Fatal("invalid log level accepted")
	}
}

func TestPostgresRequiresURL(t *testing.T) {
	t.Setenv("CLOUDDRIVE_AUTH_JWT_SECRET", "s")
	t.Setenv("CLOUDDRIVE_DATABASE_DRIVER", "postgres")

	if _, err := Load(""); err == nil {
		t.Fatal("postgres driver without url accepted")
	}
}
