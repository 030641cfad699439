package services

import (
	"context"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/JeanGrijp/quota-limiter/internal/core/domain"
	"github.com/JeanGrijp/quota-limiter/internal/core/ports"
)

const reasonRemoteUnavailable = "remote store unavailable"

// RateLimiterService implementa o "N operações por janela por chave".
//
// Diferente da quota, tentativa negada continua contando na janela: quem insiste fica bloqueado.
// A janela é o TTL do contador, definido no primeiro incremento.
type RateLimiterService struct {
	counter *FailoverCounter
	opts    options
}

var _ ports.RateLimiter = (*RateLimiterService)(nil)

// NewRateLimiterService cria uma nova instância do serviço.
func NewRateLimiterService(counter *FailoverCounter, opts ...Option) (*RateLimiterService, error) {
	if counter == nil {
		return nil, errors.New("counter is required")
	}
	return &RateLimiterService{counter: counter, opts: buildOptions(opts)}, nil
}

// Enforce avalia a requisição. Nunca falha: entrada inválida ou store ausente liberam,
// porque o rate limit é uma camada extra e não o controle principal.
func (s *RateLimiterService) Enforce(ctx context.Context, req domain.RateLimitRequest) domain.RateLimitResult {
	now := s.opts.now()
	resetAt := now.Add(req.Window)

	if req.Limit <= 0 {
		return domain.RateLimitResult{Success: true, Remaining: req.Limit, ResetAt: resetAt, Source: domain.SourceNone}
	}
	if strings.TrimSpace(req.Key) == "" || req.Window <= 0 {
		s.opts.logger.WithFields(logrus.Fields{"key": req.Key, "window": req.Window}).Warn("rate limit: invalid request, allowing")
		return domain.RateLimitResult{Success: true, Remaining: req.Limit, Reason: "invalid rate limit request", Source: domain.SourceNone}
	}
	if !s.counter.RemoteConfigured() && !s.opts.enforceLocally {
		return domain.RateLimitResult{Success: true, Remaining: req.Limit, ResetAt: resetAt, Source: domain.SourceNone}
	}

	count := s.counter.Increment(ctx, req.Key, req.Window)

	res := domain.RateLimitResult{ResetAt: resetAt, Source: count.Source}
	if count.Source == domain.SourceLocal && s.counter.RemoteConfigured() {
		res.Reason = reasonRemoteUnavailable
	}

	if count.Value > int64(req.Limit) {
		res.Success = false
		res.Remaining = 0
	} else {
		res.Success = true
		res.Remaining = req.Limit - int(count.Value)
	}

	s.opts.recorder.RateLimitDecision(req.Scope, res.Success, count.Source)
	if !res.Success {
		s.opts.logger.WithFields(logrus.Fields{
			"key":    req.Key,
			"limit":  req.Limit,
			"window": req.Window,
			"source": count.Source,
		}).Info("rate limit exceeded")
	}

	return res
}
