package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Log           LogConfig           `yaml:"log"`
	Auth          AuthConfig          `yaml:"auth"`
	Monitor       MonitorConfig       `yaml:"monitor"`
	Notifications NotificationsConfig `yaml:"notifications"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Host string `yaml:"host"` // listen address, loopback unless set
	Port string `yaml:"port"`
	Mode string `yaml:"mode"` // debug/release
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Type          string `yaml:"type"` // only sqlite
	Path          string `yaml:"path"`
	BusyTimeoutMS int    `yaml:"busy_timeout_ms"`
	BackupDir     string `yaml:"backup_dir"`
}

// LogConfig represents logger configuration
type LogConfig struct {
	Level  string `yaml:"level"`  // debug/info/warn/error
	Format string `yaml:"format"` // json/console
}

// AuthConfig represents operator authentication configuration
type AuthConfig struct {
	JWTSecret       string `yaml:"jwt_secret"`
	SessionTTL      string `yaml:"session_ttl"`
	RememberFile    string `yaml:"remember_file"`
	DefaultAdmin    string `yaml:"default_admin"`
	DefaultPassword string `yaml:"default_password"`
	LoginRetries    int    `yaml:"login_retries"`
}

// MonitorConfig represents the notification scan configuration
type MonitorConfig struct {
	ScanInterval    string `yaml:"scan_interval"`    // Cron expression
	CleanupInterval string `yaml:"cleanup_interval"` // Cron expression
	RetentionDays   int    `yaml:"retention_days"`   // read notifications older than this are cleared
}

// NotificationsConfig represents outbound alert delivery configuration
type NotificationsConfig struct {
	Email    EmailConfig    `yaml:"email"`
	Webhook  WebhookConfig  `yaml:"webhook"`
	Telegram TelegramConfig `yaml:"telegram"`
}

// EmailConfig represents email notification configuration
type EmailConfig struct {
	Enabled  bool     `yaml:"enabled"`
	SMTPHost string   `yaml:"smtp_host"`
	SMTPPort int      `yaml:"smtp_port"`
	From     string   `yaml:"from"`
	Password string   `yaml:"password"`
	To       []string `yaml:"to"`
}

// WebhookConfig represents webhook notification configuration
type WebhookConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
}

// TelegramConfig represents Telegram notification configuration
type TelegramConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot_token"`
	ChatID   string `yaml:"chat_id"`
	APIURL   string `yaml:"api_url"`
	Proxy    string `yaml:"proxy"` // SOCKS5 host:port, empty for direct
}

// Default returns the configuration used when a field is left empty in YAML
func Default() *Config {
	return &Config{
		Server: ServerConfig{Host: "127.0.0.1", Port: "8080", Mode: "debug"},
		Database: DatabaseConfig{
			Type:          "sqlite",
			Path:          "clients.db",
			BusyTimeoutMS: 5000,
			BackupDir:     "backup",
		},
		Log: LogConfig{Level: "info", Format: "json"},
		Auth: AuthConfig{
			JWTSecret:       "change-this-secret-in-production",
			SessionTTL:      "12h",
			RememberFile:    defaultRememberFile(),
			DefaultAdmin:    "admin",
			DefaultPassword: "admin",
			LoginRetries:    3,
		},
		Monitor: MonitorConfig{
			ScanInterval:    "@every 30m",
			CleanupInterval: "@daily",
			RetentionDays:   30,
		},
		Notifications: NotificationsConfig{
			Telegram: TelegramConfig{APIURL: "https://api.telegram.org"},
		},
	}
}

func defaultRememberFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "client-registry", "remember_token.json")
}

// LoadConfig loads configuration from a YAML file on top of the defaults
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, err
	}

	return config, nil
}

// ApplySettings overrides configuration with runtime settings stored in the database
func (c *Config) ApplySettings(settings map[string]string) {
	if val, ok := settings["monitor.scan_interval"]; ok && val != "" {
		c.Monitor.ScanInterval = val
	}
	if val, ok := settings["monitor.retention_days"]; ok {
		if days, err := strconv.Atoi(strings.TrimSpace(val)); err == nil && days > 0 {
			c.Monitor.RetentionDays = days
		}
	}

	if val, ok := settings["email.enabled"]; ok {
		c.Notifications.Email.Enabled = val == "true"
	}
	if val, ok := settings["email.smtp_host"]; ok {
		c.Notifications.Email.SMTPHost = val
	}
	if val, ok := settings["email.smtp_port"]; ok {
		if port, err := strconv.Atoi(val); err == nil {
			c.Notifications.Email.SMTPPort = port
		}
	}
	if val, ok := settings["email.from"]; ok {
		c.Notifications.Email.From = val
	}
	if val, ok := settings["email.password"]; ok {
		c.Notifications.Email.Password = val
	}
	if val, ok := settings["email.to"]; ok && val != "" {
		c.Notifications.Email.To = strings.Split(val, ",")
	}

	if val, ok := settings["webhook.enabled"]; ok {
		c.Notifications.Webhook.Enabled = val == "true"
	}
	if val, ok := settings["webhook.url"]; ok {
		c.Notifications.Webhook.URL = val
	}

	if val, ok := settings["telegram.enabled"]; ok {
		c.Notifications.Telegram.Enabled = val == "true"
	}
	if val, ok := settings["telegram.bot_token"]; ok {
		c.Notifications.Telegram.BotToken = val
	}
	if val, ok := settings["telegram.chat_id"]; ok {
		c.Notifications.Telegram.ChatID = val
	}
	if val, ok := settings["telegram.proxy"]; ok {
		c.Notifications.Telegram.Proxy = val
	}
}
