// Package domain concentra entidades e estruturas centrais do motor de quota e rate limit.
package domain

import "time"

// CounterSource indica qual contador respondeu a uma operação.
type CounterSource string

const (
	SourceRemote CounterSource = "remote"
	SourceLocal  CounterSource = "local"
	// SourceNone é usado quando nenhuma contagem foi feita (plano ilimitado, limite desligado).
	SourceNone CounterSource = "none"
)

// Count é o valor pós-incremento de um contador e a origem dele.
type Count struct {
	Value  int64
	Source CounterSource
}

// RateLimitRequest descreve uma checagem "N operações por janela por chave".
// Scope é opcional e só serve de rótulo para métricas.
type RateLimitRequest struct {
	Key    string
	Scope  string
	Limit  int
	Window time.Duration
}

// NewRateLimitRequest monta a requisição já com a chave formatada para o escopo.
func NewRateLimitRequest(scope, identifier string, limit int, window time.Duration) RateLimitRequest {
	return RateLimitRequest{
		Key:    RateLimitKey(scope, identifier),
		Scope:  scope,
		Limit:  limit,
		Window: window,
	}
}

// RateLimitResult é o veredito do rate limiter. Reason é apenas observabilidade.
type RateLimitResult struct {
	Success   bool
	Remaining int
	ResetAt   time.Time
	Reason    string
	Source    CounterSource
}

// RateLimitRule é a política de um escopo: quantas operações por janela.
type RateLimitRule struct {
	Scope  string
	Limit  int
	Window time.Duration
}

// Request monta a requisição da regra para um identificador (IP, e-mail, hash de token).
func (r RateLimitRule) Request(identifier string) RateLimitRequest {
	return NewRateLimitRequest(r.Scope, identifier, r.Limit, r.Window)
}
