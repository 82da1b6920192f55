package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid service token")

type Config struct {
	Secret     string `mapstructure:"secret"`
	Issuer     string `mapstructure:"issuer"`
	TTLMinutes int    `mapstructure:"ttl_minutes"`
}

// ServiceClaims identify a trusted first-party caller (e.g. the kiosk
// proxy) and the install it is bound to. The credential read path trusts
// the install ID from these claims instead of taking one from the body.
type ServiceClaims struct {
	InstallID string `json:"install_id"`
	Service   string `json:"service"`
	jwt.RegisteredClaims
}

// GenerateServiceToken mints a short-lived HS256 token binding a
// first-party service to one install.
func GenerateServiceToken(config Config, installID, service string) (string, error) {
	now := time.Now()
	claims := ServiceClaims{
		InstallID: installID,
		Service:   service,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    config.Issuer,
			Subject:   installID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(config.TTLMinutes) * time.Minute)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(config.Secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ValidateServiceToken parses and verifies a service token, enforcing the
// HS256 signing method.
func ValidateServiceToken(secret, tokenString string) (*ServiceClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &ServiceClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*ServiceClaims)
	if !ok || claims.InstallID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
