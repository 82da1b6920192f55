package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testConfig = Config{
	Secret:     "test-signing-secret",
	Issuer:     "hub-platform",
	TTLMinutes: 15,
}

func TestServiceTokenRoundTrip(t *testing.T) {
	token, err := GenerateServiceToken(testConfig, "install-1", "kiosk-proxy")
	require.NoError(t, err)

	claims, err := ValidateServiceToken(testConfig.Secret, token)
	require.NoError(t, err)
	assert.Equal(t, "install-1", claims.InstallID)
	assert.Equal(t, "kiosk-proxy", claims.Service)
	assert.Equal(t, "hub-platform", claims.Issuer)
}

func TestValidateServiceTokenWrongSecret(t *testing.T) {
	token, err := GenerateServiceToken(testConfig, "install-1", "kiosk-proxy")
	require.NoError(t, err)

	_, err = ValidateServiceToken("other-secret", token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateServiceTokenExpired(t *testing.T) {
	expired := testConfig
	expired.TTLMinutes = -1

	token, err := GenerateServiceToken(expired, "install-1", "kiosk-proxy")
	require.NoError(t, err)

	_, err = ValidateServiceToken(testConfig.Secret, token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateServiceTokenGarbage(t *testing.T) {
	_, err := ValidateServiceToken(testConfig.Secret, "not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
