package memory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/JeanGrijp/quota-limiter/internal/core/domain"
	"github.com/JeanGrijp/quota-limiter/internal/core/ports"
)

const DefaultResetTokenTTL = 30 * time.Minute

var ErrPasswordTooShort = errors.New("password too short")

const minPasswordLength = 8

type resetToken struct {
	email     string
	expiresAt time.Time
}

// ResetTokens guarda tokens de reset de senha por hash e as senhas redefinidas.
// Serve de colaborador para os handlers de reset em modo de processo único.
type ResetTokens struct {
	mu        sync.Mutex
	tokens    map[string]resetToken
	passwords map[string][]byte

	ttl      time.Duration
	now      func() time.Time
	logger   logrus.FieldLogger
	notifier ports.ResetNotifier
}

type ResetOption func(*ResetTokens)

// WithResetClock troca o relógio usado na expiração dos tokens.
func WithResetClock(now func() time.Time) ResetOption {
	return func(s *ResetTokens) {
		if now != nil {
			s.now = now
		}
	}
}

// WithNotifier entrega cada token emitido. Sem notifier o token só aparece no log de debug.
func WithNotifier(n ports.ResetNotifier) ResetOption {
	return func(s *ResetTokens) { s.notifier = n }
}

func NewResetTokens(ttl time.Duration, logger logrus.FieldLogger, opts ...ResetOption) *ResetTokens {
	if ttl <= 0 {
		ttl = DefaultResetTokenTTL
	}
	if logger == nil {
		l := logrus.New()
		l.Out = io.Discard
		logger = l
	}
	s := &ResetTokens{
		tokens:    make(map[string]resetToken),
		passwords: make(map[string][]byte),
		ttl:       ttl,
		now:       time.Now,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Issue gera um token novo para o e-mail, entrega pelo notifier e devolve o valor em claro.
func (s *ResetTokens) Issue(ctx context.Context, email string) (string, error) {
	email = domain.NormalizeEmail(email)
	token := strings.ReplaceAll(uuid.NewString()+uuid.NewString(), "-", "")

	now := s.now()

	s.mu.Lock()
	s.pruneLocked(now)
	s.tokens[domain.HashToken(token)] = resetToken{email: email, expiresAt: now.Add(s.ttl)}
	s.mu.Unlock()

	s.logger.WithField("email", email).Info("password reset token issued")
	if s.notifier == nil {
		s.logger.WithFields(logrus.Fields{"email": email, "token": token}).Debug("password reset token value")
		return token, nil
	}
	if err := s.notifier.SendPasswordReset(ctx, email, token, s.ttl); err != nil {
		return token, fmt.Errorf("deliver reset token: %w", err)
	}
	return token, nil
}

// Consume valida o token e troca a senha. Devolve false para token desconhecido,
// expirado ou já usado. O token é de uso único mesmo que a troca falhe depois.
func (s *ResetTokens) Consume(_ context.Context, token, password string) (bool, error) {
	if len(password) < minPasswordLength {
		return false, ErrPasswordTooShort
	}

	hash := domain.HashToken(token)

	s.mu.Lock()
	rec, ok := s.tokens[hash]
	if ok {
		delete(s.tokens, hash)
	}
	s.mu.Unlock()

	if !ok || !s.now().Before(rec.expiresAt) {
		return false, nil
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	s.passwords[rec.email] = passwordHash
	for h, other := range s.tokens {
		if other.email == rec.email {
			delete(s.tokens, h)
		}
	}
	s.mu.Unlock()

	s.logger.WithField("email", rec.email).Info("password reset completed")
	return true, nil
}

// CheckPassword compara a senha com a última redefinida para o e-mail.
func (s *ResetTokens) CheckPassword(email, password string) bool {
	s.mu.Lock()
	hash, ok := s.passwords[domain.NormalizeEmail(email)]
	s.mu.Unlock()
	if !ok {
		return false
	}
	return bcrypt.CompareHashAndPassword(hash, []byte(password)) == nil
}

// Pending devolve quantos tokens ainda estão guardados, expirados ou não.
func (s *ResetTokens) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tokens)
}

// pruneLocked remove tokens expirados. Roda a cada emissão, que já é limitada por IP e por conta.
func (s *ResetTokens) pruneLocked(now time.Time) {
	for h, rec := range s.tokens {
		if !now.Before(rec.expiresAt) {
			delete(s.tokens, h)
		}
	}
}
