// Package metrics exporta os vereditos de quota e rate limit para o Prometheus.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JeanGrijp/quota-limiter/internal/core/domain"
	"github.com/JeanGrijp/quota-limiter/internal/core/ports"
)

const namespace = "quota_limiter"

// Recorder implementa ports.Recorder com contadores Prometheus.
//
// Cuidado com cardinalidade: os rótulos são plano, escopo e origem, nunca a chave.
type Recorder struct {
	quota     *prometheus.CounterVec
	rateLimit *prometheus.CounterVec
	fallbacks *prometheus.CounterVec
}

var _ ports.Recorder = (*Recorder)(nil)

func NewRecorder(reg prometheus.Registerer) (*Recorder, error) {
	r := &Recorder{
		quota: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quota_decisions_total",
			Help:      "Daily quota decisions by plan, outcome and counter source.",
		}, []string{"plan", "outcome", "source"}),
		rateLimit: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ratelimit_decisions_total",
			Help:      "Rate limit decisions by scope, outcome and counter source.",
		}, []string{"scope", "outcome", "source"}),
		fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "counter_fallbacks_total",
			Help:      "Operations served by the in-process counter because the remote store was unavailable.",
		}, []string{"op"}),
	}

	for _, c := range []prometheus.Collector{r.quota, r.rateLimit, r.fallbacks} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}
	return r, nil
}

func (r *Recorder) QuotaDecision(plan domain.Plan, allowed bool, source domain.CounterSource) {
	r.quota.WithLabelValues(string(plan), outcome(allowed), string(source)).Inc()
}

func (r *Recorder) RateLimitDecision(scope string, allowed bool, source domain.CounterSource) {
	if scope == "" {
		scope = "unscoped"
	}
	r.rateLimit.WithLabelValues(scope, outcome(allowed), string(source)).Inc()
}

func (r *Recorder) Fallback(op string) {
	r.fallbacks.WithLabelValues(op).Inc()
}

func outcome(allowed bool) string {
	if allowed {
		return "allowed"
	}
	return "denied"
}
