// Package upstash disponibiliza o contador remoto via API REST compatível com Upstash.
//
// Cada operação é um único POST/GET autenticado por bearer token. O incremento usa
// /multi-exec, então INCR e EXPIRE NX são aplicados juntos ou nenhum deles.
package upstash

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/JeanGrijp/quota-limiter/internal/core/domain"
	"github.com/JeanGrijp/quota-limiter/internal/core/ports"
)

const (
	defaultTimeout = 2 * time.Second
	// limite de leitura do corpo de erro para não carregar respostas enormes no log
	maxErrorBody = 512
)

type Config struct {
	URL     string
	Token   string
	Timeout time.Duration
}

type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

var _ ports.Counter = (*Client)(nil)

type Option func(*Client)

// WithHTTPClient troca o http.Client usado nas chamadas.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

func New(cfg Config, opts ...Option) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if base == "" {
		return nil, fmt.Errorf("upstash url is required")
	}
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, fmt.Errorf("upstash token is required")
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("invalid upstash url: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	c := &Client{
		baseURL: base,
		token:   cfg.Token,
		http:    &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) Increment(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	seconds := int64(ttl / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	body, err := c.do(ctx, http.MethodPost, "/multi-exec", [][]any{
		{"INCR", key},
		{"EXPIRE", key, seconds, "NX"},
	})
	if err != nil {
		return 0, err
	}

	reply, err := parseCommandReply(body, 0)
	if err != nil {
		return 0, fmt.Errorf("%w: incr %s: %v", domain.ErrStoreUnavailable, key, err)
	}
	if !reply.present {
		return 0, fmt.Errorf("%w: incr %s: empty result", domain.ErrStoreUnavailable, key)
	}
	// contagem sem TTL confirmado não vale: a chave poderia nunca expirar
	expire, err := parseCommandReply(body, 1)
	if err != nil {
		return 0, fmt.Errorf("%w: expire %s: %v", domain.ErrStoreUnavailable, key, err)
	}
	if !expire.present {
		return 0, fmt.Errorf("%w: expire %s: empty result", domain.ErrStoreUnavailable, key)
	}
	return reply.value, nil
}

func (c *Client) Decrement(ctx context.Context, key string) error {
	body, err := c.do(ctx, http.MethodPost, "/pipeline", [][]any{{"DECR", key}})
	if err != nil {
		return err
	}
	if _, err := parseCommandReply(body, 0); err != nil {
		return fmt.Errorf("%w: decr %s: %v", domain.ErrStoreUnavailable, key, err)
	}
	return nil
}

// Get lê o contador sem alterar. Chave ausente vale 0.
func (c *Client) Get(ctx context.Context, key string) (int64, error) {
	body, err := c.do(ctx, http.MethodGet, "/get/"+url.PathEscape(key), nil)
	if err != nil {
		return 0, err
	}
	reply, err := parseSingleReply(body)
	if err != nil {
		return 0, fmt.Errorf("%w: get %s: %v", domain.ErrStoreUnavailable, key, err)
	}
	return reply.value, nil
}

func (c *Client) do(ctx context.Context, method, path string, commands [][]any) ([]byte, error) {
	var reader io.Reader
	if commands != nil {
		payload, err := json.Marshal(commands)
		if err != nil {
			return nil, fmt.Errorf("encode commands: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", domain.ErrStoreUnavailable, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", domain.ErrStoreUnavailable, method, path, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
		return nil, fmt.Errorf("%w: %s %s: status %d: %s", domain.ErrStoreUnavailable, method, path, res.StatusCode, strings.TrimSpace(string(snippet)))
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", domain.ErrStoreUnavailable, err)
	}
	return body, nil
}
