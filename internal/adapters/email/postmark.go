// Package email entrega os e-mails transacionais do fluxo de reset de senha.
package email

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/mrz1836/postmark"
)

var ErrSendFailed = errors.New("failed to send email")

type Config struct {
	ServerToken string
	From        string
	// ResetURL é a página que recebe o token como query ?token=.
	ResetURL string
}

type PostmarkMailer struct {
	client   *postmark.Client
	from     string
	resetURL *url.URL
}

type Option func(*postmark.Client)

// WithBaseURL aponta o cliente para outro endpoint da API. Usado em testes.
func WithBaseURL(base string) Option {
	return func(c *postmark.Client) { c.BaseURL = base }
}

func NewPostmarkMailer(cfg Config, opts ...Option) (*PostmarkMailer, error) {
	if cfg.ServerToken == "" {
		return nil, errors.New("postmark server token is required")
	}
	if cfg.From == "" {
		return nil, errors.New("sender address is required")
	}
	resetURL, err := url.Parse(cfg.ResetURL)
	if err != nil || resetURL.Scheme == "" || resetURL.Host == "" {
		return nil, fmt.Errorf("invalid reset url %q", cfg.ResetURL)
	}

	client := postmark.NewClient(cfg.ServerToken, "")
	for _, opt := range opts {
		opt(client)
	}

	return &PostmarkMailer{client: client, from: cfg.From, resetURL: resetURL}, nil
}

// SendPasswordReset envia o link de reset com o token em claro.
func (m *PostmarkMailer) SendPasswordReset(ctx context.Context, to, token string, expiresIn time.Duration) error {
	link := m.ResetLink(token)

	resp, err := m.client.SendEmail(ctx, postmark.Email{
		From:     m.from,
		To:       to,
		Subject:  "Reset your password",
		Tag:      "password-reset",
		TextBody: fmt.Sprintf("Use the link below to choose a new password. It expires in %d minutes.\n\n%s\n", int(expiresIn.Minutes()), link),
		HTMLBody: fmt.Sprintf(`<p>Use the link below to choose a new password. It expires in %d minutes.</p><p><a href="%s">Reset password</a></p>`, int(expiresIn.Minutes()), link),
	})
	if err != nil {
		return errors.Join(ErrSendFailed, err)
	}
	if resp.ErrorCode > 0 {
		return errors.Join(ErrSendFailed, fmt.Errorf("postmark error: %d - %s", resp.ErrorCode, resp.Message))
	}
	return nil
}

func (m *PostmarkMailer) ResetLink(token string) string {
	u := *m.resetURL
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}
