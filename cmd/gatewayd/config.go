package main

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	authcore "github.com/securepay/authcore"
)

// fileConfig is the on-disk shape of the gateway configuration. Secrets may
// be set here for local runs but are normally supplied via environment.
type fileConfig struct {
	Listen string `yaml:"listen"`

	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Secrets struct {
		SigningSecret  string `yaml:"signing_secret"`
		EncryptionSeed string `yaml:"encryption_seed"`
	} `yaml:"secrets"`

	Limits struct {
		PerMinute int `yaml:"per_minute"`
		PerHour   int `yaml:"per_hour"`
	} `yaml:"limits"`

	Lockout struct {
		Threshold int `yaml:"threshold"`
		Minutes   int `yaml:"minutes"`
	} `yaml:"lockout"`

	Token struct {
		AccessMinutes int `yaml:"access_minutes"`
		RefreshHours  int `yaml:"refresh_hours"`
	} `yaml:"token"`

	Session struct {
		Hours int `yaml:"hours"`
	} `yaml:"session"`

	MFA struct {
		Issuer string `yaml:"issuer"`
	} `yaml:"mfa"`

	Audit struct {
		LogPath string `yaml:"log_path"`
	} `yaml:"audit"`
}

// loadConfig reads the optional .env file, the optional YAML file, and then
// applies environment overrides. Environment always wins.
func loadConfig(path string) (*fileConfig, error) {
	// A missing .env is fine; systemd and containers set the environment
	// directly.
	_ = godotenv.Load()

	cfg := &fileConfig{}
	cfg.Listen = ":8080"
	cfg.Redis.Addr = "localhost:6379"
	cfg.Database.Path = "accounts.db"

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *fileConfig) {
	if v := os.Getenv("GATEWAY_LISTEN"); v != "" {
		cfg.Listen = v
	}
	if v := os.Getenv("GATEWAY_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("GATEWAY_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("GATEWAY_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("GATEWAY_SIGNING_SECRET"); v != "" {
		cfg.Secrets.SigningSecret = v
	}
	if v := os.Getenv("GATEWAY_ENCRYPTION_SEED"); v != "" {
		cfg.Secrets.EncryptionSeed = v
	}
	if v := os.Getenv("GATEWAY_AUDIT_LOG"); v != "" {
		cfg.Audit.LogPath = v
	}
}

// coreConfig converts the file configuration into the library configuration,
// leaving defaults in place for anything unset.
func (c *fileConfig) coreConfig() authcore.Config {
	cfg := authcore.DefaultConfig()
	cfg.SigningSecret = []byte(c.Secrets.SigningSecret)
	cfg.EncryptionSeed = c.Secrets.EncryptionSeed

	if c.Limits.PerMinute > 0 {
		cfg.RateLimit.PerMinute = c.Limits.PerMinute
	}
	if c.Limits.PerHour > 0 {
		cfg.RateLimit.PerHour = c.Limits.PerHour
	}
	if c.Lockout.Threshold > 0 {
		cfg.Lockout.Threshold = c.Lockout.Threshold
	}
	if c.Lockout.Minutes > 0 {
		cfg.Lockout.Duration = time.Duration(c.Lockout.Minutes) * time.Minute
	}
	if c.Token.AccessMinutes > 0 {
		cfg.Token.AccessTTL = time.Duration(c.Token.AccessMinutes) * time.Minute
	}
	if c.Token.RefreshHours > 0 {
		cfg.Token.RefreshTTL = time.Duration(c.Token.RefreshHours) * time.Hour
	}
	if c.Session.Hours > 0 {
		cfg.Session.TTL = time.Duration(c.Session.Hours) * time.Hour
	}
	if c.MFA.Issuer != "" {
		cfg.MFA.Issuer = c.MFA.Issuer
	}
	return cfg
}
