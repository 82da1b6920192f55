package hubs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newInstall(t *testing.T, store *MemStore, serial string) *HubInstall {
	t.Helper()
	install := &HubInstall{
		Serial:                      serial,
		BootstrapSecretCiphertext:   "bootstrap-ct",
		PlatformSyncEnabled:         true,
		PlatformSyncIntervalMinutes: 5,
		RotateEveryDays:             14,
		GraceMinutes:                10080,
	}
	require.NoError(t, store.CreateInstall(context.Background(), install))
	return install
}

func TestCreateInstallDuplicateSerial(t *testing.T) {
	store := NewMemStore()
	newInstall(t, store, "HUB-001")

	err := store.CreateInstall(context.Background(), &HubInstall{Serial: "HUB-001"})
	assert.ErrorIs(t, err, ErrSerialTaken)
}

func TestGetInstall(t *testing.T) {
	store := NewMemStore()
	created := newInstall(t, store, "HUB-001")

	byID, err := store.GetInstallByID(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "HUB-001", byID.Serial)

	bySerial, err := store.GetInstallBySerial(context.Background(), "HUB-001")
	require.NoError(t, err)
	assert.Equal(t, created.ID, bySerial.ID)

	_, err = store.GetInstallByID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrInstallNotFound)

	_, err = store.GetInstallBySerial(context.Background(), "HUB-404")
	assert.ErrorIs(t, err, ErrInstallNotFound)
}

func TestListSyncEnabledInstalls(t *testing.T) {
	store := NewMemStore()
	newInstall(t, store, "HUB-002")
	newInstall(t, store, "HUB-001")

	disabled := &HubInstall{Serial: "HUB-003", PlatformSyncEnabled: false}
	require.NoError(t, store.CreateInstall(context.Background(), disabled))

	installs, err := store.ListSyncEnabledInstalls(context.Background())
	require.NoError(t, err)
	require.Len(t, installs, 2)
	assert.Equal(t, "HUB-001", installs[0].Serial)
	assert.Equal(t, "HUB-002", installs[1].Serial)
}

func TestWithInstallCommits(t *testing.T) {
	store := NewMemStore()
	install := newInstall(t, store, "HUB-001")

	err := store.WithInstall(context.Background(), install.ID, func(tx InstallTx) error {
		if err := tx.CreateToken(&HubToken{Version: 1, Status: TokenPending, TokenHash: "h1"}); err != nil {
			return err
		}
		current := tx.Install()
		current.PublishedHubTokenVersion = 1
		return tx.UpdateInstall(current)
	})
	require.NoError(t, err)

	updated, err := store.GetInstallByID(context.Background(), install.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, updated.PublishedHubTokenVersion)

	err = store.WithInstall(context.Background(), install.ID, func(tx InstallTx) error {
		tokens, err := tx.Tokens()
		require.NoError(t, err)
		require.Len(t, tokens, 1)
		assert.Equal(t, TokenPending, tokens[0].Status)
		return nil
	})
	require.NoError(t, err)
}

func TestWithInstallRollsBackOnError(t *testing.T) {
	store := NewMemStore()
	install := newInstall(t, store, "HUB-001")

	boom := errors.New("boom")
	err := store.WithInstall(context.Background(), install.ID, func(tx InstallTx) error {
		if err := tx.CreateToken(&HubToken{Version: 1, Status: TokenPending, TokenHash: "h1"}); err != nil {
			return err
		}
		current := tx.Install()
		current.PublishedHubTokenVersion = 1
		if err := tx.UpdateInstall(current); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	// Nothing staged inside the failed unit of work is visible.
	unchanged, err := store.GetInstallByID(context.Background(), install.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, unchanged.PublishedHubTokenVersion)

	err = store.WithInstall(context.Background(), install.ID, func(tx InstallTx) error {
		tokens, err := tx.Tokens()
		require.NoError(t, err)
		assert.Empty(t, tokens)
		return nil
	})
	require.NoError(t, err)
}

func TestWithInstallUnknownInstall(t *testing.T) {
	store := NewMemStore()
	err := store.WithInstall(context.Background(), "missing", func(tx InstallTx) error { return nil })
	assert.ErrorIs(t, err, ErrInstallNotFound)
}

func TestCreateTokenConstraints(t *testing.T) {
	store := NewMemStore()
	install := newInstall(t, store, "HUB-001")

	err := store.WithInstall(context.Background(), install.ID, func(tx InstallTx) error {
		require.NoError(t, tx.CreateToken(&HubToken{Version: 1, Status: TokenPending, TokenHash: "h1"}))

		err := tx.CreateToken(&HubToken{Version: 1, Status: TokenGrace, TokenHash: "dup"})
		assert.ErrorIs(t, err, ErrVersionExists)

		err = tx.CreateToken(&HubToken{Version: 2, Status: TokenPending, TokenHash: "h2"})
		assert.ErrorIs(t, err, ErrPendingExists)
		return nil
	})
	require.NoError(t, err)
}

func TestUpdateTokenNotFound(t *testing.T) {
	store := NewMemStore()
	install := newInstall(t, store, "HUB-001")

	err := store.WithInstall(context.Background(), install.ID, func(tx InstallTx) error {
		return tx.UpdateToken(&HubToken{ID: "missing", Version: 1})
	})
	assert.ErrorIs(t, err, ErrTokenNotFound)
}

func TestTokensReturnedInVersionOrder(t *testing.T) {
	store := NewMemStore()
	install := newInstall(t, store, "HUB-001")

	now := time.Now()
	err := store.WithInstall(context.Background(), install.ID, func(tx InstallTx) error {
		require.NoError(t, tx.CreateToken(&HubToken{Version: 2, Status: TokenActive, TokenHash: "h2", PublishedAt: &now}))
		require.NoError(t, tx.CreateToken(&HubToken{Version: 1, Status: TokenGrace, TokenHash: "h1"}))
		return nil
	})
	require.NoError(t, err)

	err = store.WithInstall(context.Background(), install.ID, func(tx InstallTx) error {
		tokens, err := tx.Tokens()
		require.NoError(t, err)
		require.Len(t, tokens, 2)
		assert.Equal(t, 1, tokens[0].Version)
		assert.Equal(t, 2, tokens[1].Version)
		return nil
	})
	require.NoError(t, err)
}
