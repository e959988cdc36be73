// Package config loads server configuration from file, environment, and
// defaults.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/MaxymDv/CloudDrive-System/internal/storage"
)

// Config holds all server configuration.
//
// Sources, in order of precedence: environment variables (CLOUDDRIVE_*),
// configuration file, defaults. Example: CLOUDDRIVE_SERVER_LISTEN_ADDR
// overrides server.listen_addr.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Database DatabaseConfig `mapstructure:"database"`
	Storage  storage.Config `mapstructure:"storage"`
	Auth     AuthConfig     `mapstructure:"auth"`
}

// ServerConfig contains the HTTP listener settings.
type ServerConfig struct {
	ListenAddr      string        `mapstructure:"listen_addr" validate:"required"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
	// MaxUploadBytes caps multipart upload size.
	MaxUploadBytes int64 `mapstructure:"max_upload_bytes" validate:"gt=0"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=json console"`
	Output string `mapstructure:"output" validate:"required"`
}

// DatabaseConfig selects the metadata backend.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver" validate:"oneof=sqlite postgres"`
	// Path is the SQLite database file; used when Driver is "sqlite".
	Path string `mapstructure:"path"`
	// URL is the PostgreSQL connection URL; used when Driver is "postgres".
	URL string `mapstructure:"url"`
}

// AuthConfig holds token settings.
type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret" validate:"required"`
	TokenTTL  time.Duration `mapstructure:"token_ttl" validate:"gt=0"`
}

var validate = validator.New()

// Load reads configuration from the given file path (empty means no file)
// plus CLOUDDRIVE_* environment variables, applies defaults, and validates.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetEnvPrefix("CLOUDDRIVE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validate.Struct(&cfg); err != nil {
		return nil, formatValidationError(err)
	}

	if cfg.Database.Driver == "postgres" && cfg.Database.URL == "" {
		return nil, fmt.Errorf("database.url is required with the postgres driver")
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.listen_addr", ":8080")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.max_upload_bytes", int64(64<<20))

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "clouddrive.db")

	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.dir", "data")
	v.SetDefault("storage.region", "us-east-1")

	v.SetDefault("auth.token_ttl", 24*time.Hour)

	// Viper only picks env vars up for keys it knows about.
	for _, key := range []string{
		"database.url",
		"storage.endpoint", "storage.bucket",
		"storage.access_key", "storage.secret_key",
		"auth.jwt_secret",
	} {
		v.SetDefault(key, "")
	}
}

// formatValidationError converts validator errors into readable messages.
func formatValidationError(err error) error {
	if e, ok := err.(validator.ValidationErrors); ok && len(e) > 0 {
		first := e[0]
		return fmt.Errorf("config %s: failed %q validation (value: %v)",
			first.Namespace(), first.Tag(), first.Value())
	}
	return fmt.Errorf("config validation: %w", err)
}
