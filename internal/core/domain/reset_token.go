package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// HashToken devolve o sha256 em hex do token de reset. Tokens nunca são guardados nem
// usados como chave em texto puro.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// NormalizeEmail é a identidade usada no limite por conta.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
