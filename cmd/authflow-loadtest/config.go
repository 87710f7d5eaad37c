package main

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type loadConfig struct {
	RedisAddr   string `env:"REDIS_ADDR"`
	Prefix      string `env:"AUTHFLOW_REDIS_PREFIX" envDefault:"af"`
	Users       int    `env:"AUTHFLOW_LOADTEST_USERS" envDefault:"2000"`
	Concurrency int    `env:"AUTHFLOW_LOADTEST_CONCURRENCY" envDefault:"64"`
	Ops         int    `env:"AUTHFLOW_LOADTEST_OPS" envDefault:"50000"`
	LogLevel    string `env:"AUTHFLOW_LOG_LEVEL" envDefault:"warn"`
}

// loadSettings reads .env (if present), then the environment, then flags.
func loadSettings(args []string) (loadConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return loadConfig{}, fmt.Errorf("load .env: %w", err)
	}

	var cfg loadConfig
	if err := env.Parse(&cfg); err != nil {
		return loadConfig{}, fmt.Errorf("parse environment: %w", err)
	}

	fset := flag.NewFlagSet("authflow-loadtest", flag.ContinueOnError)
	fset.StringVar(&cfg.RedisAddr, "redis-addr", cfg.RedisAddr, "redis address; miniredis is used when empty")
	fset.StringVar(&cfg.Prefix, "prefix", cfg.Prefix, "redis key prefix")
	fset.IntVar(&cfg.Users, "users", cfg.Users, "number of accounts to sign up")
	fset.IntVar(&cfg.Concurrency, "concurrency", cfg.Concurrency, "number of concurrent workers")
	fset.IntVar(&cfg.Ops, "ops", cfg.Ops, "operations per limiter and smart-check phase")
	fset.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "engine log level")
	if err := fset.Parse(args); err != nil {
		return loadConfig{}, err
	}

	if cfg.Users <= 0 || cfg.Concurrency <= 0 || cfg.Ops <= 0 {
		return loadConfig{}, errors.New("users, concurrency, and ops must be > 0")
	}
	return cfg, nil
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	return zcfg.Build()
}
