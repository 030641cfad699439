// Package config centraliza o carregamento de configurações da aplicação.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/JeanGrijp/quota-limiter/internal/core/domain"
)

type Config struct {
	Server      ServerConfig
	Store       StoreConfig
	Quota       QuotaConfig
	RateLimiter RateLimiterConfig
	Log         LogConfig
	Email       EmailConfig
}

type ServerConfig struct {
	Port           string `env:"SERVER_PORT" envDefault:"8080"`
	MetricsEnabled bool   `env:"METRICS_ENABLED" envDefault:"true"`
}

// StoreConfig descreve o store remoto. URL vazia significa modo só-local, que não é erro.
type StoreConfig struct {
	URL           string        `env:"REMOTE_STORE_URL"`
	Token         string        `env:"REMOTE_STORE_TOKEN"`
	UpstashURL    string        `env:"UPSTASH_REDIS_REST_URL"`
	UpstashToken  string        `env:"UPSTASH_REDIS_REST_TOKEN"`
	Timeout       time.Duration `env:"REMOTE_STORE_TIMEOUT" envDefault:"500ms"`
	BreakerWindow time.Duration `env:"REMOTE_STORE_BREAKER" envDefault:"30s"`
}

type StoreKind string

const (
	StoreNone  StoreKind = "none"
	StoreREST  StoreKind = "rest"
	StoreRedis StoreKind = "redis"
)

type QuotaConfig struct {
	FreeDailyLimit int `env:"FREE_DAILY_LIMIT" envDefault:"50"`
	ProDailyLimit  int `env:"PRO_DAILY_LIMIT" envDefault:"5000"`
}

type RateLimiterConfig struct {
	EnforceLocally       bool          `env:"RATE_LIMIT_ENFORCE_LOCALLY" envDefault:"false"`
	PasswordResetIP      int           `env:"PASSWORD_RESET_IP_LIMIT" envDefault:"20"`
	PasswordResetAccount int           `env:"PASSWORD_RESET_ACCOUNT_LIMIT" envDefault:"5"`
	ResetAttemptIP       int           `env:"RESET_ATTEMPT_IP_LIMIT" envDefault:"30"`
	InvalidToken         int           `env:"INVALID_TOKEN_LIMIT" envDefault:"5"`
	Window               time.Duration `env:"PASSWORD_RESET_WINDOW" envDefault:"1h"`
}

// EmailConfig habilita a entrega de tokens de reset via Postmark. Sem token, os tokens só vão para o log.
type EmailConfig struct {
	PostmarkServerToken string `env:"POSTMARK_SERVER_TOKEN"`
	From                string `env:"EMAIL_FROM"`
	ResetURL            string `env:"PASSWORD_RESET_URL" envDefault:"http://localhost:3000/reset-password"`
}

func (e EmailConfig) Enabled() bool {
	return e.PostmarkServerToken != ""
}

type LogConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"text"`
}

func Load() (Config, error) {
	_ = godotenv.Load()
	return Parse(env.Options{})
}

// Parse lê as variáveis usando as opções dadas. Testes passam Environment para isolar o processo.
func Parse(opts env.Options) (Config, error) {
	cfg, err := env.ParseAsWithOptions[Config](opts)
	if err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	cfg.Store.resolveAliases()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error

	if _, err := c.Store.Kind(); err != nil {
		errs = append(errs, err)
	}
	if c.Store.Timeout <= 0 {
		errs = append(errs, errors.New("REMOTE_STORE_TIMEOUT must be > 0"))
	}
	if c.Store.BreakerWindow < 0 {
		errs = append(errs, errors.New("REMOTE_STORE_BREAKER must be >= 0"))
	}
	if c.Quota.FreeDailyLimit < 0 || c.Quota.ProDailyLimit < 0 {
		errs = append(errs, errors.New("daily limits must be >= 0"))
	}
	rl := c.RateLimiter
	if rl.PasswordResetIP < 0 || rl.PasswordResetAccount < 0 || rl.ResetAttemptIP < 0 || rl.InvalidToken < 0 {
		errs = append(errs, errors.New("rate limits must be >= 0"))
	}
	if rl.Window <= 0 {
		errs = append(errs, errors.New("PASSWORD_RESET_WINDOW must be > 0"))
	}
	if c.Email.Enabled() && strings.TrimSpace(c.Email.From) == "" {
		errs = append(errs, errors.New("EMAIL_FROM is required when POSTMARK_SERVER_TOKEN is set"))
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("invalid LOG_LEVEL: %w", err))
	}
	if f := strings.ToLower(c.Log.Format); f != "text" && f != "json" {
		errs = append(errs, fmt.Errorf("invalid LOG_FORMAT %q", c.Log.Format))
	}

	return errors.Join(errs...)
}

func (c Config) PlanLimits() domain.PlanLimits {
	return domain.PlanLimits{Free: c.Quota.FreeDailyLimit, Pro: c.Quota.ProDailyLimit}
}

func (s *StoreConfig) resolveAliases() {
	s.URL = strings.TrimSpace(s.URL)
	s.Token = strings.TrimSpace(s.Token)
	if s.URL == "" {
		s.URL = strings.TrimSpace(s.UpstashURL)
	}
	if s.Token == "" {
		s.Token = strings.TrimSpace(s.UpstashToken)
	}
}

// Kind decide o cliente remoto pelo esquema da URL. REST sem token conta como não configurado.
func (s StoreConfig) Kind() (StoreKind, error) {
	if s.URL == "" {
		return StoreNone, nil
	}
	u, err := url.Parse(s.URL)
	if err != nil {
		return StoreNone, fmt.Errorf("invalid REMOTE_STORE_URL: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "redis", "rediss":
		return StoreRedis, nil
	case "http", "https":
		if s.Token == "" {
			return StoreNone, nil
		}
		return StoreREST, nil
	default:
		return StoreNone, fmt.Errorf("unsupported REMOTE_STORE_URL scheme: %q", u.Scheme)
	}
}

// NewLogger monta o logger do processo conforme LOG_LEVEL e LOG_FORMAT.
func (c LogConfig) NewLogger() *logrus.Logger {
	logger := logrus.New()
	if level, err := logrus.ParseLevel(c.Level); err == nil {
		logger.SetLevel(level)
	}
	if strings.EqualFold(c.Format, "json") {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger
}
