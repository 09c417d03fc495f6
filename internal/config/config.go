package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

type BackendConfig struct {
	// Mode selects the verification backend: "external" (HTTP) or "dev"
	// (in-process harness).
	Mode    string `yaml:"mode"`
	BaseURL string `yaml:"base_url"`
}

type FirebaseConfig struct {
	APIKey   string `yaml:"api_key"`
	Audience string `yaml:"audience"`
	DryRun   bool   `yaml:"dry_run"`
}

type TelegramConfig struct {
	BotToken  string `yaml:"bot_token"`
	OpsChatID int64  `yaml:"ops_chat_id"`
}

type SessionConfig struct {
	JWTSecret  string `yaml:"jwt_secret"`
	TTLMinutes int    `yaml:"ttl_minutes"`
}

type Config struct {
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`
	Database struct {
		DSN string `yaml:"url"`
	} `yaml:"database"`
	Email struct {
		SMTPHost     string `yaml:"smtp_host"`
		SMTPPort     int    `yaml:"smtp_port"`
		SMTPUser     string `yaml:"smtp_user"`
		SMTPPassword string `yaml:"smtp_password"`
		FromEmail    string `yaml:"from_email"`
	} `yaml:"email"`
	Backend  BackendConfig  `yaml:"backend"`
	Firebase FirebaseConfig `yaml:"firebase"`
	Telegram TelegramConfig `yaml:"telegram"`
	Session  SessionConfig  `yaml:"session"`
}

func LoadConfig() *Config {
	path := os.Getenv("SIGNUPD_CONFIG")
	if path == "" {
		path = "config/config.yaml"
	}
	f, err := os.Open(path)
	if err != nil {
		panic("Failed to open " + path + ": " + err.Error())
	}
	defer f.Close()

	var cfg Config
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		panic("Failed to parse " + path + ": " + err.Error())
	}

	if cfg.Backend.Mode == "" {
		cfg.Backend.Mode = "external"
	}
	if cfg.Session.TTLMinutes <= 0 {
		cfg.Session.TTLMinutes = 30
	}
	return &cfg
}
