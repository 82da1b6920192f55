package issuance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dinodialabs/hub-platform/internal/hubcrypto"
	"github.com/dinodialabs/hub-platform/internal/hubs"
)

var (
	// ErrNotConfigured means no install is linked or no token has been
	// published yet; the caller should treat the hub as not set up.
	ErrNotConfigured = errors.New("no hub credential published")

	// ErrInternal marks a data inconsistency (published version with no
	// matching token, or an undecryptable ciphertext). Never recovered
	// automatically and never silently substituted.
	ErrInternal = errors.New("hub credential state is inconsistent")
)

// Credential is the published plaintext handed to trusted first-party
// callers so they can authenticate directly to the hub.
type Credential struct {
	BaseURL        string
	LongLivedToken string
}

type Service struct {
	store  hubs.Store
	cipher *hubcrypto.Cipher
}

func NewService(store hubs.Store, cipher *hubcrypto.Cipher) *Service {
	return &Service{store: store, cipher: cipher}
}

// Read returns the plaintext of the install's currently published token.
// A PENDING token's plaintext is never returned: its adoption by the
// agent is unconfirmed until the poll handler promotes it.
func (s *Service) Read(ctx context.Context, installID string) (Credential, error) {
	// The published version and the matching token are read inside one
	// unit of work so a promotion committing concurrently cannot leave
	// the version pointing at a token this read does not see.
	var install *hubs.HubInstall
	var published *hubs.HubToken
	err := s.store.WithInstall(ctx, installID, func(tx hubs.InstallTx) error {
		install = tx.Install()
		if install.PublishedHubTokenVersion == 0 {
			return ErrNotConfigured
		}

		tokens, err := tx.Tokens()
		if err != nil {
			return err
		}
		for i := range tokens {
			if tokens[i].Version == install.PublishedHubTokenVersion {
				published = &tokens[i]
				return nil
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, hubs.ErrInstallNotFound) || errors.Is(err, ErrNotConfigured) {
			return Credential{}, ErrNotConfigured
		}
		return Credential{}, fmt.Errorf("read tokens: %w", err)
	}

	if published == nil {
		slog.Error("Published hub token version has no matching token",
			"install_id", install.ID,
			"serial", install.Serial,
			"published_version", install.PublishedHubTokenVersion)
		return Credential{}, ErrInternal
	}

	plaintext, err := s.cipher.Decrypt(published.TokenCiphertext)
	if err != nil {
		slog.Error("Failed to decrypt published hub token",
			"install_id", install.ID,
			"serial", install.Serial,
			"version", published.Version,
			"error", err)
		return Credential{}, ErrInternal
	}

	return Credential{
		BaseURL:        install.BaseURL,
		LongLivedToken: plaintext,
	}, nil
}
