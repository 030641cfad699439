package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	httpHandlers "github.com/JeanGrijp/quota-limiter/internal/adapters/http/handlers"
	"github.com/JeanGrijp/quota-limiter/internal/adapters/email"
	"github.com/JeanGrijp/quota-limiter/internal/adapters/metrics"
	"github.com/JeanGrijp/quota-limiter/internal/adapters/storage/memory"
	redisstorage "github.com/JeanGrijp/quota-limiter/internal/adapters/storage/redis"
	"github.com/JeanGrijp/quota-limiter/internal/adapters/storage/upstash"
	"github.com/JeanGrijp/quota-limiter/internal/config"
	"github.com/JeanGrijp/quota-limiter/internal/core/domain"
	"github.com/JeanGrijp/quota-limiter/internal/core/ports"
	"github.com/JeanGrijp/quota-limiter/internal/core/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("failed to load config")
	}
	logger := cfg.Log.NewLogger()

	remote, closeFn, err := initStore(cfg.Store, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to init remote store")
	}
	defer closeFn()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	handler, err := newRouter(cfg, remote, memory.NewCounter(), logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to build router")
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", srv.Addr).Info("server listening")
		err := srv.ListenAndServe()
		if err != nil {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("server error")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("graceful shutdown failed")
	}
}

// newRouter monta serviços e rotas. remote nil significa modo só-local.
func newRouter(cfg config.Config, remote ports.Counter, local *memory.Counter, logger logrus.FieldLogger) (http.Handler, error) {
	opts := []services.Option{
		services.WithLogger(logger),
		services.WithRemoteTimeout(cfg.Store.Timeout),
		services.WithBreaker(cfg.Store.BreakerWindow),
		services.WithLocalEnforcement(cfg.RateLimiter.EnforceLocally),
	}

	var reg *prometheus.Registry
	if cfg.Server.MetricsEnabled {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		recorder, err := metrics.NewRecorder(reg)
		if err != nil {
			return nil, err
		}
		opts = append(opts, services.WithRecorder(recorder))
	}

	counter, err := services.NewFailoverCounter(remote, local, opts...)
	if err != nil {
		return nil, err
	}
	quota, err := services.NewQuotaService(counter, cfg.PlanLimits(), opts...)
	if err != nil {
		return nil, err
	}
	limiter, err := services.NewRateLimiterService(counter, opts...)
	if err != nil {
		return nil, err
	}

	rl := cfg.RateLimiter

	resetOpts := []memory.ResetOption{}
	if cfg.Email.Enabled() {
		mailer, err := email.NewPostmarkMailer(email.Config{
			ServerToken: cfg.Email.PostmarkServerToken,
			From:        cfg.Email.From,
			ResetURL:    cfg.Email.ResetURL,
		})
		if err != nil {
			return nil, fmt.Errorf("init mailer: %w", err)
		}
		resetOpts = append(resetOpts, memory.WithNotifier(mailer))
	}
	resets := memory.NewResetTokens(memory.DefaultResetTokenTTL, logger, resetOpts...)
	usage := httpHandlers.NewUsageHandler(quota, logger)
	passwords := httpHandlers.NewPasswordResetHandler(limiter, resets, resets, httpHandlers.ResetRules{
		ForgotIP:     domain.RateLimitRule{Scope: domain.ScopePasswordResetIP, Limit: rl.PasswordResetIP, Window: rl.Window},
		ResetIP:      domain.RateLimitRule{Scope: domain.ScopeResetAttemptIP, Limit: rl.ResetAttemptIP, Window: rl.Window},
		Account:      domain.RateLimitRule{Scope: domain.ScopePasswordResetAccount, Limit: rl.PasswordResetAccount, Window: rl.Window},
		InvalidToken: domain.RateLimitRule{Scope: domain.ScopeInvalidResetToken, Limit: rl.InvalidToken, Window: rl.Window},
	}, logger)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", httpHandlers.Health)
	if reg != nil {
		r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/chat", usage.Chat)
		r.Get("/usage", usage.Usage)

		r.Post("/auth/forgot-password", passwords.ForgotPassword)
		r.Post("/auth/reset-password", passwords.ResetPassword)
	})

	return r, nil
}

func initStore(cfg config.StoreConfig, logger logrus.FieldLogger) (ports.Counter, func(), error) {
	kind, err := cfg.Kind()
	if err != nil {
		return nil, nil, err
	}

	switch kind {
	case config.StoreREST:
		client, err := upstash.New(upstash.Config{URL: cfg.URL, Token: cfg.Token, Timeout: cfg.Timeout})
		if err != nil {
			return nil, nil, err
		}
		logger.Info("using REST remote store")
		return client, func() {}, nil
	case config.StoreRedis:
		storage, err := redisstorage.New(redisstorage.Config{URL: cfg.URL, Timeout: cfg.Timeout})
		if err != nil {
			return nil, nil, err
		}
		pingCtx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
		if err := storage.Ping(pingCtx); err != nil {
			logger.WithError(err).Warn("redis not reachable at startup, serving with local fallback")
		}
		cancel()
		logger.Info("using redis remote store")
		return storage, func() {
			if err := storage.Close(); err != nil {
				logger.WithError(err).Error("failed to close redis storage")
			}
		}, nil
	default:
		logger.Warn("remote store not configured, counters are per process")
		return nil, func() {}, nil
	}
}
