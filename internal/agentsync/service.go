package agentsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dinodialabs/hub-platform/internal/hubcrypto"
	"github.com/dinodialabs/hub-platform/internal/hubs"
	"github.com/dinodialabs/hub-platform/internal/replay"
)

const DefaultMaxSkew = 5 * time.Minute

var (
	ErrUnknownSerial = errors.New("unknown hub serial")
	ErrNotPaired     = errors.New("hub not paired yet")
	ErrBadSignature  = errors.New("invalid poll signature")
	ErrClockSkew     = errors.New("poll timestamp outside the accepted window")
	ErrReplayedNonce = errors.New("poll nonce already used")
)

// PollRequest is what the hub agent sends on each check-in. Sig covers
// serial, ts and nonce under the install's sync secret.
type PollRequest struct {
	Serial           string
	TS               int64
	Nonce            string
	Sig              string
	AgentSeenVersion int
}

// PollResult is the token state reported back to the agent.
type PollResult struct {
	PlatformSyncEnabled         bool
	PlatformSyncIntervalMinutes int
	PublishedVersion            int
	LatestVersion               int
	HubTokenHashes              []string
}

// Service implements the agent poll protocol: authenticate the caller,
// sweep expired grace tokens, promote the staged token once the agent has
// proven it holds it, and report the currently accepted credential set.
// This is the only path that promotes a PENDING token.
type Service struct {
	store   hubs.Store
	cipher  *hubcrypto.Cipher
	nonces  *replay.NonceCache
	maxSkew time.Duration
}

func NewService(store hubs.Store, cipher *hubcrypto.Cipher, nonces *replay.NonceCache) *Service {
	return &Service{
		store:   store,
		cipher:  cipher,
		nonces:  nonces,
		maxSkew: DefaultMaxSkew,
	}
}

func (s *Service) Poll(ctx context.Context, req PollRequest) (PollResult, error) {
	install, err := s.store.GetInstallBySerial(ctx, strings.TrimSpace(req.Serial))
	if err != nil {
		if errors.Is(err, hubs.ErrInstallNotFound) {
			return PollResult{}, ErrUnknownSerial
		}
		return PollResult{}, fmt.Errorf("lookup install: %w", err)
	}

	if !install.Paired() {
		return PollResult{}, ErrNotPaired
	}

	syncSecret, err := s.cipher.Decrypt(install.SyncSecretCiphertext)
	if err != nil {
		slog.Error("Failed to decrypt sync secret",
			"install_id", install.ID, "serial", install.Serial, "error", err)
		return PollResult{}, fmt.Errorf("decrypt sync secret: %w", err)
	}

	now := time.Now()
	sent := time.Unix(req.TS, 0)
	if sent.After(now.Add(s.maxSkew)) || sent.Before(now.Add(-s.maxSkew)) {
		return PollResult{}, ErrClockSkew
	}

	// The agent signs the serial exactly as it sends it.
	if err := hubcrypto.VerifySignature(syncSecret, req.Serial, req.TS, req.Nonce, req.Sig); err != nil {
		slog.Warn("Rejected poll with bad signature",
			"install_id", install.ID, "serial", install.Serial)
		return PollResult{}, ErrBadSignature
	}

	// Replay check comes after signature verification so unauthenticated
	// traffic cannot consume nonces.
	if s.nonces.Remember(install.Serial, req.Nonce, now) {
		slog.Warn("Rejected replayed poll nonce",
			"install_id", install.ID, "serial", install.Serial)
		return PollResult{}, ErrReplayedNonce
	}

	var result PollResult
	err = s.store.WithInstall(ctx, install.ID, func(tx hubs.InstallTx) error {
		install := tx.Install()
		tokens, err := tx.Tokens()
		if err != nil {
			return err
		}

		_, tokens, err = hubs.SweepExpiredGrace(tx, tokens, now)
		if err != nil {
			return err
		}

		var active, pending *hubs.HubToken
		latestVersion := 0
		for i := range tokens {
			if tokens[i].Version > latestVersion {
				latestVersion = tokens[i].Version
			}
			switch tokens[i].Status {
			case hubs.TokenActive:
				active = &tokens[i]
			case hubs.TokenPending:
				if pending == nil {
					pending = &tokens[i]
				}
			case hubs.TokenGrace, hubs.TokenRevoked:
			}
		}

		// Promote only once the agent reports it already holds the staged
		// version. Until then the staged hash stays advertised but its
		// plaintext is never issued to clients.
		if pending != nil && req.AgentSeenVersion >= pending.Version {
			if active != nil {
				graceUntil := now.Add(time.Duration(install.GraceMinutes) * time.Minute)
				active.Status = hubs.TokenGrace
				active.GraceUntil = &graceUntil
				if err := tx.UpdateToken(active); err != nil {
					return fmt.Errorf("demote token v%d: %w", active.Version, err)
				}
			}

			publishedAt := now
			pending.Status = hubs.TokenActive
			pending.PublishedAt = &publishedAt
			if err := tx.UpdateToken(pending); err != nil {
				return fmt.Errorf("promote token v%d: %w", pending.Version, err)
			}

			install.PublishedHubTokenVersion = pending.Version
			slog.Info("Promoted hub token",
				"install_id", install.ID,
				"serial", install.Serial,
				"version", pending.Version)
		}

		hashes := make([]string, 0, len(tokens))
		for i := range tokens {
			if tokens[i].Accepted(now) {
				hashes = append(hashes, tokens[i].TokenHash)
			}
		}

		install.LastSeenAt = &now
		if req.AgentSeenVersion > install.LastAckedHubTokenVersion {
			install.LastAckedHubTokenVersion = req.AgentSeenVersion
		}
		if err := tx.UpdateInstall(install); err != nil {
			return fmt.Errorf("update install: %w", err)
		}

		result = PollResult{
			PlatformSyncEnabled:         install.PlatformSyncEnabled,
			PlatformSyncIntervalMinutes: install.PlatformSyncIntervalMinutes,
			PublishedVersion:            install.PublishedHubTokenVersion,
			LatestVersion:               latestVersion,
			HubTokenHashes:              hashes,
		}
		return nil
	})
	if err != nil {
		return PollResult{}, err
	}
	return result, nil
}
