package handlers

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/JeanGrijp/quota-limiter/internal/core/domain"
)

const (
	rateLimitExceededMessage = "Too many requests"
	unknownClientIP          = "unknown"
)

// ClientIP usa o primeiro X-Forwarded-For, depois X-Real-IP, depois o host do RemoteAddr.
func ClientIP(r *http.Request) string {
	xForwardedFor := strings.TrimSpace(r.Header.Get("X-Forwarded-For"))
	if xForwardedFor != "" {
		first, _, _ := strings.Cut(xForwardedFor, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}

	xRealIP := strings.TrimSpace(r.Header.Get("X-Real-IP"))
	if xRealIP != "" {
		return xRealIP
	}

	remote := strings.TrimSpace(r.RemoteAddr)
	host, _, err := net.SplitHostPort(remote)
	if err != nil {
		host = remote
	}
	if host == "" {
		return unknownClientIP
	}
	return host
}

// writeTooManyRequests responde 429 com os cabeçalhos de rate limit.
func writeTooManyRequests(w http.ResponseWriter, limit int, res domain.RateLimitResult) {
	h := w.Header()
	h.Set("Retry-After", strconv.Itoa(retryAfterSeconds(res.ResetAt, time.Now())))
	h.Set("X-RateLimit-Limit", strconv.Itoa(limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(max(res.Remaining, 0)))
	writeError(w, http.StatusTooManyRequests, rateLimitExceededMessage)
}

func retryAfterSeconds(resetAt, now time.Time) int {
	if resetAt.IsZero() {
		return 1
	}
	secs := int(math.Ceil(resetAt.Sub(now).Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}
