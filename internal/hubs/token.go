package hubs

import (
	"fmt"

	"github.com/dinodialabs/hub-platform/internal/hubcrypto"
)

const tokenSecretBytes = 32

// TokenMaterial holds a freshly generated hub token in the three forms
// the system needs: the plaintext (handed out exactly once per read), the
// one-way hash the agent matches bearer credentials against, and the
// at-rest ciphertext stored for later issuance.
type TokenMaterial struct {
	Plaintext  string
	Hash       string
	Ciphertext string
}

func NewTokenMaterial(cipher *hubcrypto.Cipher) (TokenMaterial, error) {
	plaintext, err := hubcrypto.GenerateRandomHex(tokenSecretBytes)
	if err != nil {
		return TokenMaterial{}, fmt.Errorf("failed to generate token: %w", err)
	}

	ciphertext, err := cipher.Encrypt(plaintext)
	if err != nil {
		return TokenMaterial{}, fmt.Errorf("failed to encrypt token: %w", err)
	}

	return TokenMaterial{
		Plaintext:  plaintext,
		Hash:       hubcrypto.HashSHA256(plaintext),
		Ciphertext: ciphertext,
	}, nil
}
