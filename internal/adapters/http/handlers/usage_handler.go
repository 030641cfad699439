package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/JeanGrijp/quota-limiter/internal/core/domain"
	"github.com/JeanGrijp/quota-limiter/internal/core/ports"
)

const (
	headerUserID   = "X-User-ID"
	headerUserPlan = "X-User-Plan"

	maxChatBody = 64 << 10
)

type UsageHandler struct {
	quota  ports.QuotaEnforcer
	logger logrus.FieldLogger
}

func NewUsageHandler(quota ports.QuotaEnforcer, logger logrus.FieldLogger) *UsageHandler {
	return &UsageHandler{quota: quota, logger: logger}
}

type chatRequest struct {
	Message string `json:"message"`
}

type chatResponse struct {
	Reply string `json:"reply"`
}

// Chat registra uma unidade de uso antes de responder. Só quota excedida bloqueia;
// qualquer outra falha do motor é logada e a requisição segue.
func (h *UsageHandler) Chat(w http.ResponseWriter, r *http.Request) {
	subject, plan, ok := subjectFromRequest(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var body chatRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxChatBody)).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	if err := h.quota.RecordUsage(r.Context(), subject, plan); err != nil {
		if domain.IsQuotaExceeded(err) {
			writeError(w, http.StatusTooManyRequests, "Daily usage limit reached")
			return
		}
		h.logger.WithError(err).WithField("subject", subject).Error("record usage failed")
	}

	writeJSON(w, http.StatusOK, chatResponse{Reply: placeholderReply(body.Message)})
}

// Usage devolve o resumo de uso do dia.
func (h *UsageHandler) Usage(w http.ResponseWriter, r *http.Request) {
	subject, plan, ok := subjectFromRequest(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	summary, err := h.quota.UsageSummary(r.Context(), subject, plan)
	if err != nil {
		h.logger.WithError(err).WithField("subject", subject).Error("usage summary failed")
		writeError(w, http.StatusServiceUnavailable, "Usage data unavailable")
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

func subjectFromRequest(r *http.Request) (string, domain.Plan, bool) {
	subject := strings.TrimSpace(r.Header.Get(headerUserID))
	if subject == "" {
		return "", "", false
	}
	return subject, domain.ParsePlan(r.Header.Get(headerUserPlan)), true
}

func placeholderReply(message string) string {
	if strings.TrimSpace(message) == "" {
		return "Hello! How can I help?"
	}
	return "Received: " + strings.TrimSpace(message)
}
