package domain

import (
	"fmt"
	"strings"
	"time"
)

const (
	ScopePasswordResetIP      = "password-reset:ip"
	ScopePasswordResetAccount = "password-reset:user"
	ScopeResetAttemptIP       = "password-reset:reset:ip"
	ScopeInvalidResetToken    = "password-reset:invalid-token"
)

const (
	dayLayout     = "2006-01-02"
	minDailyTTL   = time.Minute
	quotaKeyRoot  = "usage"
	rateLimitRoot = "ratelimit"
)

// QuotaKey gera a chave diária do assunto. O bucket é a data UTC, então a virada
// do dia cria um contador novo sem precisar de reset.
func QuotaKey(subjectID string, at time.Time) string {
	return fmt.Sprintf("%s:%s:%s", quotaKeyRoot, strings.TrimSpace(subjectID), at.UTC().Format(dayLayout))
}

// RateLimitKey gera a chave de rate limit. A janela fica no TTL do contador, não na chave.
func RateLimitKey(scope, identifier string) string {
	identifier = strings.ToLower(strings.TrimSpace(identifier))
	return fmt.Sprintf("%s:%s:%s", rateLimitRoot, scope, identifier)
}

// DailyWindowTTL devolve o tempo até a próxima meia-noite UTC, nunca menos que um minuto.
func DailyWindowTTL(now time.Time) time.Duration {
	now = now.UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)
	ttl := midnight.Sub(now).Truncate(time.Second)
	if ttl < minDailyTTL {
		return minDailyTTL
	}
	return ttl
}
