// Package services implementa as políticas de quota diária e de rate limit sobre o contador com failover.
package services

import (
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/JeanGrijp/quota-limiter/internal/core/domain"
	"github.com/JeanGrijp/quota-limiter/internal/core/ports"
)

const (
	defaultRemoteTimeout = 500 * time.Millisecond
	defaultBreaker       = 30 * time.Second
	warnInterval         = 10 * time.Second
)

type options struct {
	logger         logrus.FieldLogger
	recorder       ports.Recorder
	now            func() time.Time
	remoteTimeout  time.Duration
	breaker        time.Duration
	enforceLocally bool
}

// Option configura os serviços e o contador com failover.
type Option func(*options)

func WithLogger(logger logrus.FieldLogger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func WithRecorder(recorder ports.Recorder) Option {
	return func(o *options) {
		if recorder != nil {
			o.recorder = recorder
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithRemoteTimeout limita cada chamada ao store remoto. Estourou, vale como indisponível.
func WithRemoteTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.remoteTimeout = d
		}
	}
}

// WithBreaker define por quanto tempo o store remoto é ignorado depois de uma falha. Zero desliga.
func WithBreaker(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.breaker = d
		}
	}
}

// WithLocalEnforcement faz o rate limiter usar o contador local quando não há store remoto
// configurado, em vez de liberar tudo.
func WithLocalEnforcement(enabled bool) Option {
	return func(o *options) { o.enforceLocally = enabled }
}

func buildOptions(opts []Option) options {
	discard := logrus.New()
	discard.SetOutput(io.Discard)

	o := options{
		logger:        discard,
		recorder:      noopRecorder{},
		now:           time.Now,
		remoteTimeout: defaultRemoteTimeout,
		breaker:       defaultBreaker,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

type noopRecorder struct{}

func (noopRecorder) QuotaDecision(domain.Plan, bool, domain.CounterSource) {}
func (noopRecorder) RateLimitDecision(string, bool, domain.CounterSource) {}
func (noopRecorder) Fallback(string) {}
