package hubcrypto

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

var (
	ErrInvalidKey       = errors.New("at-rest key must be 32 bytes of hex")
	ErrMalformedPayload = errors.New("malformed ciphertext payload")
	ErrDecryptionFailed = errors.New("decryption failed")
	ErrInvalidSignature = errors.New("invalid signature")
)

// Cipher performs symmetric encryption of secret material at rest.
// Payloads are XChaCha20-Poly1305 sealed with a random nonce and encoded
// as base64(nonce || ciphertext).
type Cipher struct {
	key []byte
}

func NewCipher(hexKey string) (*Cipher, error) {
	key, err := hex.DecodeString(strings.TrimSpace(hexKey))
	if err != nil || len(key) != chacha20poly1305.KeySize {
		return nil, ErrInvalidKey
	}
	return &Cipher{key: key}, nil
}

func (c *Cipher) Encrypt(plaintext string) (string, error) {
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return "", fmt.Errorf("failed to initialize cipher: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (c *Cipher) Decrypt(payload string) (string, error) {
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return "", fmt.Errorf("failed to initialize cipher: %w", err)
	}

	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil || len(raw) < aead.NonceSize() {
		return "", ErrMalformedPayload
	}

	nonce, ciphertext := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(plaintext), nil
}

// HashSHA256 computes the hex-encoded SHA-256 digest used for token
// equality and acceptance checks. The digest is never reversed.
func HashSHA256(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// GenerateRandomHex returns n random bytes as a hex string.
func GenerateRandomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// signingString is the canonical byte layout signed by the hub agent:
// serial, decimal timestamp and nonce joined by newlines.
func signingString(serial string, ts int64, nonce string) string {
	return strings.Join([]string{serial, strconv.FormatInt(ts, 10), nonce}, "\n")
}

// ComputeSignature returns the lowercase hex HMAC-SHA256 of the canonical
// signing string under the shared sync secret.
func ComputeSignature(secret, serial string, ts int64, nonce string) string {
	m := hmac.New(sha256.New, []byte(secret))
	m.Write([]byte(signingString(serial, ts, nonce)))
	return hex.EncodeToString(m.Sum(nil))
}

// VerifySignature checks an agent-supplied signature in constant time.
func VerifySignature(secret, serial string, ts int64, nonce, sig string) error {
	want := ComputeSignature(secret, serial, ts, nonce)
	if !hmac.Equal([]byte(strings.ToLower(sig)), []byte(want)) {
		return ErrInvalidSignature
	}
	return nil
}
