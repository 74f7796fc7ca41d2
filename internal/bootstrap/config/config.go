package config

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	"handlescope/internal/bootstrap/logging"
	"handlescope/internal/errs"
)

type Config struct {
	App        AppConfig        `mapstructure:"app" toml:"app"`
	Log        LogConfig        `mapstructure:"log" toml:"log"`
	Database   DatabaseConfig   `mapstructure:"database" toml:"database"`
	UnitOfWork UnitOfWorkConfig `mapstructure:"unitofwork" toml:"unitofwork"`
	Server     ServerConfig     `mapstructure:"server" toml:"server"`
}

type AppConfig struct {
	Name string `mapstructure:"name" toml:"name"`
	Env  string `mapstructure:"env" toml:"env"`
}

type LogConfig struct {
	Level string `mapstructure:"level" toml:"level"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver" toml:"driver"`
	DSN    string `mapstructure:"dsn" toml:"dsn"`
	// Isolation is applied to every transaction a handle begins.
	Isolation    string `mapstructure:"isolation" toml:"isolation"`
	MaxOpenConns int    `mapstructure:"max_open_conns" toml:"max_open_conns"`
}

type UnitOfWorkConfig struct {
	// Manager selects the handle manager: default, request or linked.
	Manager string `mapstructure:"manager" toml:"manager"`
	// ExcludedPaths are path substrings whose requests get no handle.
	ExcludedPaths []string `mapstructure:"excluded_paths" toml:"excluded_paths"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr" toml:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" toml:"shutdown_timeout"`
}

func Load(ctx context.Context, configFile string) (Config, error) {
	if ctx == nil {
		return Config{}, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return Config{}, errs.Wrap(err, "check context")
	}

	logCtx := logging.WithAttrs(ctx, slog.String("component", "bootstrap.config"))

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("HS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile == "" && errors.As(err, &notFound) {
			logging.Warn(logCtx, "config file not found, fallback to defaults and env")
		} else {
			return Config{}, errs.Wrap(err, "read config")
		}
	} else {
		logging.Info(logCtx, "using config file", slog.String("path", v.ConfigFileUsed()))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errs.Wrap(err, "unmarshal config")
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	logging.Info(
		logCtx,
		"config loaded",
		slog.String("app", cfg.App.Name),
		slog.String("env", cfg.App.Env),
		slog.String("database_driver", cfg.Database.Driver),
		slog.String("unitofwork_manager", cfg.UnitOfWork.Manager),
	)

	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Database.DSN) == "" {
		return errors.New("database.dsn is required")
	}
	if c.Database.MaxOpenConns < 0 {
		return errors.New("database.max_open_conns must not be negative")
	}
	if strings.TrimSpace(c.Server.Addr) == "" {
		return errors.New("server.addr is required")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("server.shutdown_timeout must be positive")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "handlescope")
	v.SetDefault("app.env", "local")
	v.SetDefault("log.level", "info")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", ".state/handlescope.sqlite")
	v.SetDefault("database.isolation", "default")
	v.SetDefault("database.max_open_conns", 16)
	v.SetDefault("unitofwork.manager", "request")
	v.SetDefault("unitofwork.excluded_paths", []string{"/metrics"})
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.shutdown_timeout", "10s")
}
