package rotation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dinodialabs/hub-platform/internal/hubcrypto"
	"github.com/dinodialabs/hub-platform/internal/hubs"
)

// Result reports what one scheduler pass did across all installs.
type Result struct {
	Created int
	Expired int
}

// Service keeps every sync-enabled install's token pipeline healthy. It
// owns no timer; an external trigger invokes RunPass on its own schedule,
// and repeated or overlapping invocations are safe.
type Service struct {
	store  hubs.Store
	cipher *hubcrypto.Cipher
}

func NewService(store hubs.Store, cipher *hubcrypto.Cipher) *Service {
	return &Service{store: store, cipher: cipher}
}

// RunPass sweeps expired grace tokens, seeds cold-start installs and
// stages a successor for any active token past its rotation age. A
// failure on one install is logged and does not abort the batch.
func (s *Service) RunPass(ctx context.Context) (Result, error) {
	installs, err := s.store.ListSyncEnabledInstalls(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("list installs: %w", err)
	}

	now := time.Now()
	var result Result
	for i := range installs {
		created, expired, err := s.processInstall(ctx, installs[i].ID, now)
		if err != nil {
			slog.Error("Rotation pass failed for install",
				"install_id", installs[i].ID,
				"serial", installs[i].Serial,
				"error", err)
			continue
		}
		result.Created += created
		result.Expired += expired
	}

	slog.Info("Rotation pass completed",
		"installs", len(installs),
		"created", result.Created,
		"expired", result.Expired)
	return result, nil
}

func (s *Service) processInstall(ctx context.Context, installID string, now time.Time) (created, expired int, err error) {
	err = s.store.WithInstall(ctx, installID, func(tx hubs.InstallTx) error {
		install := tx.Install()
		tokens, err := tx.Tokens()
		if err != nil {
			return err
		}

		expired, tokens, err = hubs.SweepExpiredGrace(tx, tokens, now)
		if err != nil {
			return err
		}

		// Cold start: nothing issued yet, seed version 1.
		if len(tokens) == 0 {
			if err := s.stageToken(tx, 1); err != nil {
				return err
			}
			created = 1
			return nil
		}

		var active, pending *hubs.HubToken
		latestVersion := 0
		for i := range tokens {
			if tokens[i].Version > latestVersion {
				latestVersion = tokens[i].Version
			}
			switch tokens[i].Status {
			case hubs.TokenActive:
				if tokens[i].PublishedAt != nil {
					active = &tokens[i]
				}
			case hubs.TokenPending:
				pending = &tokens[i]
			case hubs.TokenGrace, hubs.TokenRevoked:
			}
		}

		// A rotation is already staged, or the install is still waiting
		// for its first promotion. Either way, nothing to do.
		if pending != nil || active == nil {
			return nil
		}

		age := now.Sub(*active.PublishedAt)
		if age < time.Duration(install.RotateEveryDays)*24*time.Hour {
			return nil
		}

		if err := s.stageToken(tx, latestVersion+1); err != nil {
			return err
		}
		created = 1
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return created, expired, nil
}

func (s *Service) stageToken(tx hubs.InstallTx, version int) error {
	material, err := hubs.NewTokenMaterial(s.cipher)
	if err != nil {
		return err
	}

	token := &hubs.HubToken{
		Version:         version,
		Status:          hubs.TokenPending,
		TokenHash:       material.Hash,
		TokenCiphertext: material.Ciphertext,
	}
	if err := tx.CreateToken(token); err != nil {
		return fmt.Errorf("stage token v%d: %w", version, err)
	}

	slog.Info("Staged hub token",
		"install_id", tx.Install().ID,
		"version", version)
	return nil
}
