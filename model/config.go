package model

import "time"

// Config is the root runtime configuration.
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Sweeper  SweeperConfig  `mapstructure:"sweeper"`
	Checks   CheckConfig    `mapstructure:"checks"`
	Log      LogConfig      `mapstructure:"log"`
}

// DatabaseConfig selects and parameterizes the store backend. The backend
// is chosen once at construction and never switched at runtime.
type DatabaseConfig struct {
	Backend   string        `mapstructure:"backend"` // "sqlite" or "mysql"
	OpTimeout time.Duration `mapstructure:"op_timeout"`
	SQLite    SQLiteConfig  `mapstructure:"sqlite"`
	MySQL     MySQLConfig   `mapstructure:"mysql"`
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

type MySQLConfig struct {
	Host        string        `mapstructure:"host"`
	Port        int           `mapstructure:"port"`
	Database    string        `mapstructure:"database"`
	Username    string        `mapstructure:"username"`
	Password    string        `mapstructure:"password"`
	UseSSL      bool          `mapstructure:"use_ssl"`
	MaxPoolSize int           `mapstructure:"max_pool_size"`
	MinIdle     int           `mapstructure:"min_idle"`
	ConnTimeout time.Duration `mapstructure:"conn_timeout"`
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
	MaxLifetime time.Duration `mapstructure:"max_lifetime"`
}

// SweeperConfig controls the periodic expired-punishment sweep.
type SweeperConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// CheckConfig bounds how long event handlers block on store lookups.
// Login checks fail closed on timeout, chat checks fail open.
type CheckConfig struct {
	LoginTimeout time.Duration `mapstructure:"login_timeout"`
	ChatTimeout  time.Duration `mapstructure:"chat_timeout"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}
