// Package config loads service configuration from YAML with
// environment overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/printwatch-io/printwatch/internal/registry"
	"github.com/spf13/viper"
)

// Config is the full service configuration.
type Config struct {
	Server   ServerConfig      `mapstructure:"server"`
	Database DatabaseConfig    `mapstructure:"database"`
	Mail     MailConfig        `mapstructure:"mail"`
	Fetch    FetchConfig       `mapstructure:"fetch"`
	Devices  []registry.Device `mapstructure:"devices"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"` // sqlite or postgres
	Path     string `mapstructure:"path"`   // sqlite file location
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"ssl_mode"`
}

// MailConfig holds the report mailbox credentials. All required fields
// must be present together; a partial set disables fetching for the
// life of the process.
type MailConfig struct {
	Server   string `mapstructure:"server"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type FetchConfig struct {
	Interval    time.Duration `mapstructure:"interval"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

// Configured reports whether every required mailbox credential is set.
func (m MailConfig) Configured() bool {
	return m.Server != "" && m.Username != "" && m.Password != ""
}

// GetDSN returns the PostgreSQL connection string.
func (c DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// GetServerAddr returns the HTTP listen address.
func (c ServerConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Load reads configuration from the given directory (config.yaml,
// optional) merged with environment overrides. Mailbox settings honor
// both the PRINTWATCH_MAIL_* and bare MAIL_* variable names.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigName("config")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	v.SetEnvPrefix("PRINTWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, bare := range map[string]string{
		"mail.server":   "MAIL_SERVER",
		"mail.port":     "MAIL_PORT",
		"mail.username": "MAIL_USERNAME",
		"mail.password": "MAIL_PASSWORD",
	} {
		if err := v.BindEnv(key, "PRINTWATCH_"+bare, bare); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "data/printwatch.db")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("mail.port", 995)
	v.SetDefault("fetch.interval", 10*time.Minute)
	v.SetDefault("fetch.dial_timeout", 10*time.Second)
}
