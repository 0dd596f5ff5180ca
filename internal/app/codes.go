package app

import (
	"crypto/rand"
	"math/big"

	"live-quiz-service/internal/domain"
)

// CodeGenerator returns a candidate join code. Uniqueness among active
// sessions is enforced by the Store; CreateSession retries on conflict.
type CodeGenerator func() (string, error)

const maxCodeAttempts = 8

// RandomJoinCode draws domain.JoinCodeLength characters from domain.JoinCodeAlphabet.
func RandomJoinCode() (string, error) {
	alphabet := big.NewInt(int64(len(domain.JoinCodeAlphabet)))
	code := make([]byte, domain.JoinCodeLength)
	for i := range code {
		n, err := rand.Int(rand.Reader, alphabet)
		if err != nil {
			return "", err
		}
		code[i] = domain.JoinCodeAlphabet[n.Int64()]
	}
	return string(code), nil
}
