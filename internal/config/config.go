package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// CloakMode controls Claude-Code system-prefix injection.
type CloakMode string

const (
	CloakAlways CloakMode = "always"
	CloakNever  CloakMode = "never"
	CloakAuto   CloakMode = "auto"
)

// CORSMode is the parsed CORS policy.
type CORSMode struct {
	AllowAll bool
	// Origins is the explicit allow-list; empty with AllowAll false means
	// localhost-only.
	Origins []string
}

// LocalhostOnly reports whether only localhost origins are accepted.
func (m CORSMode) LocalhostOnly() bool {
	return !m.AllowAll && len(m.Origins) == 0
}

type Config struct {
	Server ServerConfig `mapstructure:"server"`
	Admin  AdminConfig  `mapstructure:"admin"`
	Redis  RedisConfig  `mapstructure:"redis"`

	CloakMode   CloakMode `mapstructure:"-"`
	CORS        CORSMode  `mapstructure:"-"`
	DataDir     string    `mapstructure:"data_dir"`
	Tracing     bool      `mapstructure:"tracing"`
	DisableAuth bool      `mapstructure:"disable_auth"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
	Env  string `mapstructure:"env"`
}

type AdminConfig struct {
	Username string `mapstructure:"admin_username"`
	Password string `mapstructure:"admin_password"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Load reads configuration from environment variables (CLAUDE_GATE_ prefix)
// with an optional .env file.
func Load() (*Config, error) {
	// Load .env file if present
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("CLAUDE_GATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("host", "127.0.0.1")
	v.SetDefault("port", "4096")
	v.SetDefault("env", "development")
	v.SetDefault("cloak_mode", "auto")
	v.SetDefault("cors_origins", "localhost")
	v.SetDefault("tracing", false)
	v.SetDefault("disable_auth", false)
	v.SetDefault("redis_addr", "")
	v.SetDefault("redis_db", 0)

	cfg := &Config{
		Server: ServerConfig{
			Host: v.GetString("host"),
			Port: v.GetString("port"),
			Env:  v.GetString("env"),
		},
		Admin: AdminConfig{
			Username: v.GetString("admin_username"),
			Password: v.GetString("admin_password"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis_addr"),
			Password: v.GetString("redis_password"),
			DB:       v.GetInt("redis_db"),
		},
		DataDir:     v.GetString("data_dir"),
		Tracing:     v.GetBool("tracing"),
		DisableAuth: v.GetBool("disable_auth"),
	}

	if !cfg.DisableAuth {
		if cfg.Admin.Username == "" || cfg.Admin.Password == "" {
			return nil, fmt.Errorf("CLAUDE_GATE_ADMIN_USERNAME and CLAUDE_GATE_ADMIN_PASSWORD must be set")
		}
	}

	switch mode := CloakMode(strings.ToLower(v.GetString("cloak_mode"))); mode {
	case CloakAlways, CloakNever, CloakAuto:
		cfg.CloakMode = mode
	default:
		return nil, fmt.Errorf("invalid cloak mode %q (want always, never or auto)", mode)
	}

	cfg.CORS = parseCORS(v.GetString("cors_origins"))

	if cfg.DataDir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			base = "."
		}
		cfg.DataDir = filepath.Join(base, "claude-gate")
	}

	return cfg, nil
}

// parseCORS interprets "localhost" (default), "*" or a CSV origin list.
func parseCORS(raw string) CORSMode {
	raw = strings.TrimSpace(raw)
	switch raw {
	case "", "localhost":
		return CORSMode{}
	case "*":
		return CORSMode{AllowAll: true}
	}
	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			origins = append(origins, p)
		}
	}
	return CORSMode{Origins: origins}
}

// DBPath returns the sqlite database location inside the data dir.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "gate.db")
}

// Addr is the bind address.
func (c *Config) Addr() string {
	return c.Server.Host + ":" + c.Server.Port
}

// IsLocalhostBind reports whether the server binds a loopback address; used
// to decide on the Secure cookie flag.
func (c *Config) IsLocalhostBind() bool {
	switch c.Server.Host {
	case "127.0.0.1", "localhost", "::1":
		return true
	}
	return false
}
