// Package ports define contratos que conectam o domínio a implementações externas.
package ports

import (
	"context"
	"time"
)

// Counter é o contador atômico remoto, compartilhado entre instâncias.
//
// Increment faz INCR e define o TTL apenas se a chave ainda não tiver um, numa única ida ao store.
// Qualquer falha deve ser devolvida envolvendo domain.ErrStoreUnavailable.
type Counter interface {
	Increment(ctx context.Context, key string, ttl time.Duration) (int64, error)
	Decrement(ctx context.Context, key string) error
	Get(ctx context.Context, key string) (int64, error)
}

// LocalCounter é o contador em memória do processo. Nunca falha e não é compartilhado.
type LocalCounter interface {
	Increment(key string, ttl time.Duration) int64
	Peek(key string) int64
}

// ResetNotifier entrega o token de reset ao dono do e-mail.
type ResetNotifier interface {
	SendPasswordReset(ctx context.Context, to, token string, expiresIn time.Duration) error
}
