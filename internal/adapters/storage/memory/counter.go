// Package memory disponibiliza o contador de fallback em memória do processo.
//
// O estado pertence exclusivamente ao processo: não é sincronizado entre instâncias
// e some no restart. É usado quando o store remoto não está configurado ou falha.
package memory

import (
	"sync"
	"time"

	"github.com/JeanGrijp/quota-limiter/internal/core/ports"
)

const defaultSweepEvery = 1024

type record struct {
	count     int64
	expiresAt time.Time
}

type Counter struct {
	mu      sync.Mutex
	records map[string]*record
	writes  int

	now        func() time.Time
	sweepEvery int
}

var _ ports.LocalCounter = (*Counter)(nil)

type Option func(*Counter)

// WithClock troca o relógio usado para expiração. Útil em testes.
func WithClock(now func() time.Time) Option {
	return func(c *Counter) {
		if now != nil {
			c.now = now
		}
	}
}

// WithSweepEvery define a cada quantas escritas os registros expirados são varridos.
// Zero ou negativo desliga a varredura oportunista.
func WithSweepEvery(n int) Option {
	return func(c *Counter) { c.sweepEvery = n }
}

func NewCounter(opts ...Option) *Counter {
	c := &Counter{
		records:    make(map[string]*record),
		now:        time.Now,
		sweepEvery: defaultSweepEvery,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Increment soma um ao contador da chave. Se não existir registro, ou se ele já
// expirou, começa de novo em 1 com expiração now+ttl.
func (c *Counter) Increment(key string, ttl time.Duration) int64 {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.writes++
	if c.sweepEvery > 0 && c.writes%c.sweepEvery == 0 {
		c.sweepLocked(now)
	}

	rec, ok := c.records[key]
	if !ok || !now.Before(rec.expiresAt) {
		c.records[key] = &record{count: 1, expiresAt: now.Add(ttl)}
		return 1
	}
	rec.count++
	return rec.count
}

// Peek devolve a contagem atual sem alterar nada, exceto remover o registro se estiver expirado.
func (c *Counter) Peek(key string) int64 {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.records[key]
	if !ok {
		return 0
	}
	if !now.Before(rec.expiresAt) {
		delete(c.records, key)
		return 0
	}
	return rec.count
}

// Sweep remove todos os registros expirados e devolve quantos foram removidos.
func (c *Counter) Sweep() int {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	return c.sweepLocked(now)
}

func (c *Counter) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.records)
}

func (c *Counter) sweepLocked(now time.Time) int {
	removed := 0
	for k, rec := range c.records {
		if !now.Before(rec.expiresAt) {
			delete(c.records, k)
			removed++
		}
	}
	return removed
}
