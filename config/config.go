package config

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v6"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Queue         QueueConfig         `yaml:"queue"`
	Attendance    AttendanceConfig    `yaml:"attendance"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Logging       LoggingConfig       `yaml:"logging"`
}

type ServerConfig struct {
	Port           string   `env:"SERVER_PORT" yaml:"port"`
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," yaml:"allowed_origins"`
}

type DatabaseConfig struct {
	// Driver is one of sqlite, postgres or mysql
	Driver string `env:"DB_DRIVER" yaml:"driver"`
	DSN    string `env:"DB_DSN" yaml:"dsn"`
	LogSQL bool   `env:"DB_LOG_SQL" yaml:"log_sql"`
}

type QueueConfig struct {
	// Maximum number of ACTIVE interests a listing may hold at once
	MaxActiveInterests int `env:"QUEUE_MAX_ACTIVE_INTERESTS" yaml:"max_active_interests"`
}

type AttendanceConfig struct {
	// Number of no-shows after which a tenant gets blocked
	NoShowThreshold int `env:"ATTENDANCE_NO_SHOW_THRESHOLD" yaml:"no_show_threshold"`

	// Length of the block, in months from the attendance report
	BlockMonths int `env:"ATTENDANCE_BLOCK_MONTHS" yaml:"block_months"`
}

type NotificationsConfig struct {
	BufferSize       int    `env:"NOTIFY_BUFFER_SIZE" yaml:"buffer_size"`
	TelegramEnabled  bool   `env:"TELEGRAM_ENABLED" yaml:"telegram_enabled"`
	TelegramBotToken string `env:"TELEGRAM_BOT_TOKEN" yaml:"telegram_bot_token"`
}

type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL" yaml:"level"`
	Format string `env:"LOG_FORMAT" yaml:"format"`
}

// DefaultConfig returns the configuration used when neither a file nor the
// environment says otherwise
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           "5250",
			AllowedOrigins: []string{"http://localhost:5173"},
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "database/roommate.db?_busy_timeout=5000&_foreign_keys=on",
		},
		Queue: QueueConfig{
			MaxActiveInterests: 3,
		},
		Attendance: AttendanceConfig{
			NoShowThreshold: 3,
			BlockMonths:     3,
		},
		Notifications: NotificationsConfig{
			BufferSize: 100,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadConfig builds the configuration from defaults, the optional YAML file
// at path and finally the environment. Later sources win.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// fall through to environment only
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Queue.MaxActiveInterests < 1 {
		return fmt.Errorf("queue.max_active_interests must be at least 1, got %d", c.Queue.MaxActiveInterests)
	}
	if c.Attendance.NoShowThreshold < 1 {
		return fmt.Errorf("attendance.no_show_threshold must be at least 1, got %d", c.Attendance.NoShowThreshold)
	}
	if c.Attendance.BlockMonths < 1 {
		return fmt.Errorf("attendance.block_months must be at least 1, got %d", c.Attendance.BlockMonths)
	}
	switch c.Database.Driver {
	case "sqlite", "postgres", "mysql":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	return nil
}
