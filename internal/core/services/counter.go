package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/JeanGrijp/quota-limiter/internal/core/domain"
	"github.com/JeanGrijp/quota-limiter/internal/core/ports"
)

// FailoverCounter junta o contador remoto (opcional) e o local. Nenhum método devolve erro:
// falha remota vira uso do contador local, então as políticas não têm como esquecer o fallback.
type FailoverCounter struct {
	remote ports.Counter
	local  ports.LocalCounter
	opts   options

	mu           sync.Mutex
	breakerUntil time.Time

	warn rate.Sometimes
}

func NewFailoverCounter(remote ports.Counter, local ports.LocalCounter, opts ...Option) (*FailoverCounter, error) {
	if local == nil {
		return nil, errors.New("local counter is required")
	}
	return &FailoverCounter{
		remote: remote,
		local:  local,
		opts:   buildOptions(opts),
		warn:   rate.Sometimes{First: 1, Interval: warnInterval},
	}, nil
}

// RemoteConfigured informa se existe store remoto. Sem ele, o modo local é permanente e não é erro.
func (f *FailoverCounter) RemoteConfigured() bool {
	return f.remote != nil
}

// Increment incrementa no store remoto e, se ele estiver indisponível, no contador local.
// Cada chamada altera exatamente um contador.
func (f *FailoverCounter) Increment(ctx context.Context, key string, ttl time.Duration) domain.Count {
	if f.remoteUsable() {
		callCtx, cancel := context.WithTimeout(ctx, f.opts.remoteTimeout)
		n, err := f.remote.Increment(callCtx, key, ttl)
		cancel()
		if err == nil {
			return domain.Count{Value: n, Source: domain.SourceRemote}
		}
		f.remoteFailed(ctx, "increment", key, err)
	}
	if f.remote != nil {
		f.opts.recorder.Fallback("increment")
	}
	return domain.Count{Value: f.local.Increment(key, ttl), Source: domain.SourceLocal}
}

// Compensate desfaz um incremento remoto que estourou o limite. Best-effort: sem retry,
// falha só é logada. Roda desacoplado do cancelamento da requisição.
func (f *FailoverCounter) Compensate(ctx context.Context, key string) {
	if f.remote == nil {
		return
	}
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.opts.remoteTimeout)
	defer cancel()

	if err := f.remote.Decrement(callCtx, key); err != nil {
		f.opts.logger.WithError(err).WithField("key", key).Warn("quota: compensating decrement failed")
	}
}

// Read lê o contador sem alterar. Não é usado para decisão, só para exibição.
func (f *FailoverCounter) Read(ctx context.Context, key string) int64 {
	if f.remoteUsable() {
		callCtx, cancel := context.WithTimeout(ctx, f.opts.remoteTimeout)
		n, err := f.remote.Get(callCtx, key)
		cancel()
		if err == nil {
			return n
		}
		f.remoteFailed(ctx, "read", key, err)
	}
	if f.remote != nil {
		f.opts.recorder.Fallback("read")
	}
	return f.local.Peek(key)
}

func (f *FailoverCounter) remoteUsable() bool {
	if f.remote == nil {
		return false
	}
	now := f.opts.now()

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.breakerUntil.IsZero() {
		return true
	}
	if now.Before(f.breakerUntil) {
		return false
	}
	f.breakerUntil = time.Time{}
	return true
}

func (f *FailoverCounter) remoteFailed(ctx context.Context, op, key string, err error) {
	// requisição cancelada pelo cliente não diz nada sobre a saúde do store
	if ctx.Err() == nil && f.opts.breaker > 0 {
		f.mu.Lock()
		f.breakerUntil = f.opts.now().Add(f.opts.breaker)
		f.mu.Unlock()
	}

	f.opts.logger.WithError(err).WithFields(logrus.Fields{"op": op, "key": key}).Debug("remote store call failed")
	f.warn.Do(func() {
		f.opts.logger.WithError(err).WithField("op", op).Warn("remote store unavailable, falling back to in-process counter")
	})
}
