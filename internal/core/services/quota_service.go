package services

import (
	"context"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/JeanGrijp/quota-limiter/internal/core/domain"
	"github.com/JeanGrijp/quota-limiter/internal/core/ports"
)

// QuotaService aplica o limite diário de mensagens por plano.
//
// O fluxo incrementa primeiro e compensa depois se estourar. Duas requisições
// simultâneas podem ver "abaixo do limite" antes da compensação uma da outra e
// passar do limite por pouco na fronteira; isso é aceito para não exigir transação.
type QuotaService struct {
	counter *FailoverCounter
	limits  domain.PlanLimits
	opts    options
}

var _ ports.QuotaEnforcer = (*QuotaService)(nil)

func NewQuotaService(counter *FailoverCounter, limits domain.PlanLimits, opts ...Option) (*QuotaService, error) {
	if counter == nil {
		return nil, errors.New("counter is required")
	}
	return &QuotaService{counter: counter, limits: limits, opts: buildOptions(opts)}, nil
}

// RecordUsage conta uma mensagem para o assunto. Devolve *domain.QuotaExceededError quando
// o limite do dia foi atingido; problemas de infraestrutura nunca bloqueiam a requisição.
func (s *QuotaService) RecordUsage(ctx context.Context, subjectID string, plan domain.Plan) error {
	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		return domain.ErrInvalidSubject
	}

	if s.limits.Unlimited(plan) {
		s.opts.recorder.QuotaDecision(plan, true, domain.SourceNone)
		return nil
	}

	limit := s.limits.Limit(plan)
	if limit <= 0 {
		s.opts.recorder.QuotaDecision(plan, true, domain.SourceNone)
		return nil
	}

	now := s.opts.now()
	key := domain.QuotaKey(subjectID, now)
	count := s.counter.Increment(ctx, key, domain.DailyWindowTTL(now))

	if count.Value <= int64(limit) {
		s.opts.recorder.QuotaDecision(plan, true, count.Source)
		return nil
	}

	// No fallback local o incremento fica registrado; só o store remoto recebe compensação.
	if count.Source == domain.SourceRemote {
		s.counter.Compensate(ctx, key)
	}

	s.opts.recorder.QuotaDecision(plan, false, count.Source)
	s.opts.logger.WithFields(logrus.Fields{
		"subject": subjectID,
		"plan":    plan,
		"limit":   limit,
		"source":  count.Source,
	}).Info("daily quota exceeded")

	return &domain.QuotaExceededError{Plan: plan, Limit: limit, Count: count.Value}
}

// UsageSummary lê o uso do dia sem alterar o contador. Sem uso ainda é o caso normal e vale 0.
func (s *QuotaService) UsageSummary(ctx context.Context, subjectID string, plan domain.Plan) (domain.UsageSummary, error) {
	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		return domain.UsageSummary{}, domain.ErrInvalidSubject
	}

	used := s.counter.Read(ctx, domain.QuotaKey(subjectID, s.opts.now()))
	if used < 0 {
		used = 0
	}

	return domain.UsageSummary{
		Plan:       plan,
		UsedToday:  used,
		DailyLimit: s.limits.Limit(plan),
	}, nil
}
