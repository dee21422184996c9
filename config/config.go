// Package config loads runtime configuration from a YAML file with
// environment overrides. A missing file is fine; defaults cover a local
// SQLite deployment out of the box.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"banward/model"
)

// Load reads path (default "config.yml" when empty), applies BANWARD_*
// environment overrides and returns the validated config. A .env file in
// the working directory is loaded first so deployments can keep secrets
// out of the YAML.
func Load(path string) (*model.Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("BANWARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg model.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.backend", "sqlite")
	v.SetDefault("database.op_timeout", 5*time.Second)
	v.SetDefault("database.sqlite.path", "data/punishments.db")

	v.SetDefault("database.mysql.host", "127.0.0.1")
	v.SetDefault("database.mysql.port", 3306)
	v.SetDefault("database.mysql.database", "punishments")
	v.SetDefault("database.mysql.max_pool_size", 10)
	v.SetDefault("database.mysql.min_idle", 2)
	v.SetDefault("database.mysql.conn_timeout", 10*time.Second)
	v.SetDefault("database.mysql.idle_timeout", 10*time.Minute)
	v.SetDefault("database.mysql.max_lifetime", 30*time.Minute)

	v.SetDefault("sweeper.interval", time.Hour)

	v.SetDefault("checks.login_timeout", time.Second)
	v.SetDefault("checks.chat_timeout", time.Second)

	v.SetDefault("log.level", "info")
}

func validate(cfg *model.Config) error {
	switch cfg.Database.Backend {
	case "sqlite", "mysql":
	default:
		return fmt.Errorf("unknown database backend %q, want sqlite or mysql", cfg.Database.Backend)
	}
	if cfg.Database.Backend == "mysql" && cfg.Database.MySQL.Username == "" {
		return errors.New("mysql backend requires database.mysql.username")
	}
	if cfg.Sweeper.Interval <= 0 {
		return fmt.Errorf("sweeper interval must be positive, got %s", cfg.Sweeper.Interval)
	}
	return nil
}
