package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/mail"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/JeanGrijp/quota-limiter/internal/core/domain"
	"github.com/JeanGrijp/quota-limiter/internal/core/ports"
)

const maxAuthBody = 8 << 10

// ResetIssuer cria e entrega um token de reset para o e-mail.
type ResetIssuer interface {
	Issue(ctx context.Context, email string) (string, error)
}

// TokenConsumer valida e consome um token de reset, trocando a senha. false significa
// token inválido ou expirado.
type TokenConsumer interface {
	Consume(ctx context.Context, token, password string) (bool, error)
}

// ResetRules são as regras do fluxo de reset. As regras por IP só são cobradas depois
// que o corpo passa na validação, então requisições malformadas não gastam o orçamento do IP.
type ResetRules struct {
	ForgotIP     domain.RateLimitRule
	ResetIP      domain.RateLimitRule
	Account      domain.RateLimitRule
	InvalidToken domain.RateLimitRule
}

type PasswordResetHandler struct {
	limiter ports.RateLimiter
	issuer  ResetIssuer
	tokens  TokenConsumer
	rules   ResetRules
	logger  logrus.FieldLogger
}

func NewPasswordResetHandler(limiter ports.RateLimiter, issuer ResetIssuer, tokens TokenConsumer, rules ResetRules, logger logrus.FieldLogger) *PasswordResetHandler {
	return &PasswordResetHandler{
		limiter: limiter,
		issuer:  issuer,
		tokens:  tokens,
		rules:   rules,
		logger:  logger,
	}
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

// ForgotPassword sempre responde 202 depois de validar o corpo, com ou sem envio,
// para não revelar quais contas existem.
func (h *PasswordResetHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var body forgotPasswordRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxAuthBody)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if _, err := mail.ParseAddress(strings.TrimSpace(body.Email)); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request")
		return
	}

	if !h.allowIP(w, r, h.rules.ForgotIP) {
		return
	}

	email := domain.NormalizeEmail(body.Email)
	res := h.limiter.Enforce(r.Context(), h.rules.Account.Request(email))
	if !res.Success {
		h.logger.WithField("scope", h.rules.Account.Scope).Info("password reset suppressed by account limit")
	} else if _, err := h.issuer.Issue(r.Context(), email); err != nil {
		h.logger.WithError(err).Error("failed to issue password reset token")
	}

	writeJSON(w, http.StatusAccepted, map[string]bool{"ok": true})
}

// ResetPassword consome o token. Token inválido é cobrado no escopo de tokens
// inválidos pelo hash dele e responde 410.
func (h *PasswordResetHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var body resetPasswordRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxAuthBody)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if body.Token == "" || len(body.Password) < 8 {
		writeError(w, http.StatusBadRequest, "Invalid request")
		return
	}
	if !h.allowIP(w, r, h.rules.ResetIP) {
		return
	}

	ok, err := h.tokens.Consume(r.Context(), body.Token, body.Password)
	if err != nil {
		h.logger.WithError(err).Error("failed to reset password")
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if !ok {
		h.limiter.Enforce(r.Context(), h.rules.InvalidToken.Request(domain.HashToken(body.Token)))
		writeError(w, http.StatusGone, "Token expired or invalid")
		return
	}

	w.Header().Set("Cache-Control", noStore)
	w.WriteHeader(http.StatusNoContent)
}

// allowIP cobra a regra por IP do cliente e responde 429 quando ela nega.
func (h *PasswordResetHandler) allowIP(w http.ResponseWriter, r *http.Request, rule domain.RateLimitRule) bool {
	res := h.limiter.Enforce(r.Context(), rule.Request(ClientIP(r)))
	if res.Success {
		return true
	}
	writeTooManyRequests(w, rule.Limit, res)
	return false
}
