package provisioning

import (
	"context"
	"testing"

	"github.com/dinodialabs/hub-platform/internal/hubcrypto"
	"github.com/dinodialabs/hub-platform/internal/hubs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAtRestKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func newTestService(t *testing.T) (*Service, *hubs.MemStore, *hubcrypto.Cipher) {
	t.Helper()
	cipher, err := hubcrypto.NewCipher(testAtRestKey)
	require.NoError(t, err)
	store := hubs.NewMemStore()
	return NewService(store, cipher), store, cipher
}

func TestProvisionInstall(t *testing.T) {
	svc, store, cipher := newTestService(t)

	result, err := svc.ProvisionInstall(context.Background(), "  HUB-001  ")
	require.NoError(t, err)
	assert.Equal(t, "HUB-001", result.Serial)
	assert.NotEmpty(t, result.InstallID)
	assert.Len(t, result.BootstrapSecret, 48)

	install, err := store.GetInstallBySerial(context.Background(), "HUB-001")
	require.NoError(t, err)
	assert.True(t, install.PlatformSyncEnabled)
	assert.Equal(t, 5, install.PlatformSyncIntervalMinutes)
	assert.Equal(t, 14, install.RotateEveryDays)
	assert.Equal(t, 7*24*60, install.GraceMinutes)
	assert.False(t, install.Paired())

	stored, err := cipher.Decrypt(install.BootstrapSecretCiphertext)
	require.NoError(t, err)
	assert.Equal(t, result.BootstrapSecret, stored)

	// The first token is seeded staged, awaiting the first poll.
	err = store.WithInstall(context.Background(), install.ID, func(tx hubs.InstallTx) error {
		tokens, err := tx.Tokens()
		require.NoError(t, err)
		require.Len(t, tokens, 1)
		assert.Equal(t, 1, tokens[0].Version)
		assert.Equal(t, hubs.TokenPending, tokens[0].Status)
		return nil
	})
	require.NoError(t, err)
}

func TestProvisionInstallEmptySerial(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.ProvisionInstall(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrSerialRequired)
}

func TestProvisionInstallDuplicateSerial(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.ProvisionInstall(context.Background(), "HUB-001")
	require.NoError(t, err)

	_, err = svc.ProvisionInstall(context.Background(), "HUB-001")
	assert.ErrorIs(t, err, ErrSerialTaken)
}

func TestPairInstall(t *testing.T) {
	svc, store, cipher := newTestService(t)

	provisioned, err := svc.ProvisionInstall(context.Background(), "HUB-001")
	require.NoError(t, err)

	paired, err := svc.PairInstall(context.Background(), "HUB-001", provisioned.BootstrapSecret, "https://hub-001.example.com/")
	require.NoError(t, err)
	assert.Equal(t, provisioned.InstallID, paired.InstallID)
	assert.NotEmpty(t, paired.SyncSecret)
	assert.Equal(t, 5, paired.SyncIntervalMinutes)

	install, err := store.GetInstallBySerial(context.Background(), "HUB-001")
	require.NoError(t, err)
	assert.True(t, install.Paired())
	assert.Equal(t, "https://hub-001.example.com", install.BaseURL)

	stored, err := cipher.Decrypt(install.SyncSecretCiphertext)
	require.NoError(t, err)
	assert.Equal(t, paired.SyncSecret, stored)
}

func TestPairInstallUnknownSerial(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.PairInstall(context.Background(), "HUB-404", "whatever", "https://hub.example.com")
	assert.ErrorIs(t, err, ErrNotProvisioned)
}

func TestPairInstallWrongBootstrapSecret(t *testing.T) {
	svc, store, _ := newTestService(t)

	_, err := svc.ProvisionInstall(context.Background(), "HUB-001")
	require.NoError(t, err)

	_, err = svc.PairInstall(context.Background(), "HUB-001", "wrong-secret", "https://hub.example.com")
	assert.ErrorIs(t, err, ErrBadBootstrapSecret)

	install, err := store.GetInstallBySerial(context.Background(), "HUB-001")
	require.NoError(t, err)
	assert.False(t, install.Paired())
}

func TestPairInstallTwice(t *testing.T) {
	svc, _, _ := newTestService(t)

	provisioned, err := svc.ProvisionInstall(context.Background(), "HUB-001")
	require.NoError(t, err)

	_, err = svc.PairInstall(context.Background(), "HUB-001", provisioned.BootstrapSecret, "https://hub.example.com")
	require.NoError(t, err)

	_, err = svc.PairInstall(context.Background(), "HUB-001", provisioned.BootstrapSecret, "https://hub.example.com")
	assert.ErrorIs(t, err, ErrAlreadyPaired)
}

func TestPairInstallInvalidBaseURL(t *testing.T) {
	svc, _, _ := newTestService(t)

	provisioned, err := svc.ProvisionInstall(context.Background(), "HUB-001")
	require.NoError(t, err)

	for _, raw := range []string{"", "ftp://hub.example.com", "hub.example.com", "https://"} {
		_, err = svc.PairInstall(context.Background(), "HUB-001", provisioned.BootstrapSecret, raw)
		assert.ErrorIs(t, err, ErrInvalidBaseURL, "baseURL %q", raw)
	}
}
