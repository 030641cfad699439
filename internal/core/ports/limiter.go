// Package ports define contratos que conectam o domínio a implementações externas.
package ports

import (
	"context"

	"github.com/JeanGrijp/quota-limiter/internal/core/domain"
)

type RateLimiter interface {
	Enforce(ctx context.Context, req domain.RateLimitRequest) domain.RateLimitResult
}

type QuotaEnforcer interface {
	RecordUsage(ctx context.Context, subjectID string, plan domain.Plan) error
	UsageSummary(ctx context.Context, subjectID string, plan domain.Plan) (domain.UsageSummary, error)
}

// Recorder recebe os vereditos para métricas. Deve ser best-effort.
type Recorder interface {
	QuotaDecision(plan domain.Plan, allowed bool, source domain.CounterSource)
	RateLimitDecision(scope string, allowed bool, source domain.CounterSource)
	Fallback(op string)
}
