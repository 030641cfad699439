package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrQuotaExceeded sinaliza que o assunto atingiu o limite diário do plano.
	ErrQuotaExceeded = errors.New("daily usage limit reached")
	// ErrStoreUnavailable envolve qualquer falha do store remoto (rede, timeout, status, resposta inválida).
	ErrStoreUnavailable = errors.New("remote store unavailable")
	ErrInvalidSubject   = errors.New("subject identifier is required")
)

// QuotaExceededError carrega o contexto da negativa de quota.
type QuotaExceededError struct {
	Plan  Plan
	Limit int
	// Count é a contagem observada no incremento negado.
	Count int64
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("daily usage limit reached: plan=%s limit=%d", e.Plan, e.Limit)
}

func (e *QuotaExceededError) Unwrap() error {
	return ErrQuotaExceeded
}

func IsQuotaExceeded(err error) bool {
	return errors.Is(err, ErrQuotaExceeded)
}

func IsStoreUnavailable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}
