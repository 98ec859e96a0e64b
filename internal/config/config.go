package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/nodewarden/warden/internal/logger"
)

// Config captures runtime configuration sourced from environment variables.
type Config struct {
	Environment  string
	HTTPPort     string
	DatabasePath string
	FrontendDir  string

	// JWTSecret signs admin session tokens. When unset a random secret is
	// generated at boot, which logs everyone out on restart.
	JWTSecret     string
	AdminEmail    string
	AdminPassword string

	// Fallback notify credentials; rows in the settings table take
	// precedence so they can be changed from the UI without a restart.
	TelegramBotToken string
	TelegramChatID   string

	// NATSURL enables the event bridge when non-empty.
	NATSURL           string
	NATSSubjectPrefix string

	EngineTick      time.Duration
	DispatchTimeout time.Duration

	// NodeDriver picks how restart_node and force_sync reach nodes:
	// "docker" drives local agent containers, "none" only records the intent.
	NodeDriver string
}

// Load reads WARDEN_* env vars and falls back to defaults so the server can
// boot with zero configuration.
func Load() (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("WARDEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("env", "development")
	v.SetDefault("http.port", "8080")
	v.SetDefault("db.path", filepath.Join("data", "warden.db"))
	v.SetDefault("frontend.dir", filepath.Clean(filepath.Join("..", "frontend", "dist")))
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("admin.email", "")
	v.SetDefault("admin.password", "")
	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.chat_id", "")
	v.SetDefault("nats.url", "")
	v.SetDefault("nats.subject_prefix", "warden.events")
	v.SetDefault("engine.tick_seconds", 60)
	v.SetDefault("engine.dispatch_timeout_seconds", 10)
	v.SetDefault("node.driver", "none")

	cfg := Config{
		Environment:       v.GetString("env"),
		HTTPPort:          v.GetString("http.port"),
		DatabasePath:      v.GetString("db.path"),
		FrontendDir:       v.GetString("frontend.dir"),
		JWTSecret:         v.GetString("auth.jwt_secret"),
		AdminEmail:        v.GetString("admin.email"),
		AdminPassword:     v.GetString("admin.password"),
		TelegramBotToken:  v.GetString("telegram.bot_token"),
		TelegramChatID:    v.GetString("telegram.chat_id"),
		NATSURL:           v.GetString("nats.url"),
		NATSSubjectPrefix: v.GetString("nats.subject_prefix"),
		EngineTick:        time.Duration(v.GetInt("engine.tick_seconds")) * time.Second,
		DispatchTimeout:   time.Duration(v.GetInt("engine.dispatch_timeout_seconds")) * time.Second,
		NodeDriver:        v.GetString("node.driver"),
	}

	if cfg.EngineTick <= 0 {
		cfg.EngineTick = time.Minute
	}
	if cfg.DispatchTimeout <= 0 {
		cfg.DispatchTimeout = 10 * time.Second
	}

	if cfg.JWTSecret == "" {
		secret, err := randomSecret()
		if err != nil {
			return Config{}, err
		}
		cfg.JWTSecret = secret
		logger.Log().Warn("WARDEN_AUTH_JWT_SECRET not set; using a generated secret, sessions will not survive restarts")
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0o755); err != nil {
		return Config{}, fmt.Errorf("ensure data directory: %w", err)
	}

	return cfg, nil
}

func randomSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
