package provisioning

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/dinodialabs/hub-platform/internal/hubcrypto"
	"github.com/dinodialabs/hub-platform/internal/hubs"
)

const (
	bootstrapSecretBytes = 24
	syncSecretBytes      = 32

	defaultRotateEveryDays     = 14
	defaultGraceMinutes        = 7 * 24 * 60
	defaultSyncIntervalMinutes = 5
)

var (
	ErrSerialRequired     = errors.New("serial is required")
	ErrSerialTaken        = errors.New("that serial is already provisioned")
	ErrNotProvisioned     = errors.New("that serial is not provisioned")
	ErrBadBootstrapSecret = errors.New("serial or bootstrap secret is incorrect")
	ErrAlreadyPaired      = errors.New("hub is already paired")
	ErrInvalidBaseURL     = errors.New("base URL must start with http:// or https://")
)

// Service owns the privileged install lifecycle operations: creating a
// new install with its seeded version-1 token, and redeeming the
// bootstrap secret to establish the sync secret used by the poll handler.
type Service struct {
	store  hubs.Store
	cipher *hubcrypto.Cipher
}

func NewService(store hubs.Store, cipher *hubcrypto.Cipher) *Service {
	return &Service{store: store, cipher: cipher}
}

// ProvisionInstall creates a new install for the serial and seeds its
// version-1 token as PENDING, ready to be promoted on the first poll
// after pairing completes.
func (s *Service) ProvisionInstall(ctx context.Context, serial string) (*ProvisionResult, error) {
	serial = strings.TrimSpace(serial)
	if serial == "" {
		return nil, ErrSerialRequired
	}

	bootstrapSecret, err := hubcrypto.GenerateRandomHex(bootstrapSecretBytes)
	if err != nil {
		return nil, fmt.Errorf("generate bootstrap secret: %w", err)
	}
	bootstrapCiphertext, err := s.cipher.Encrypt(bootstrapSecret)
	if err != nil {
		return nil, fmt.Errorf("encrypt bootstrap secret: %w", err)
	}

	install := &hubs.HubInstall{
		Serial:                      serial,
		BootstrapSecretCiphertext:   bootstrapCiphertext,
		PlatformSyncEnabled:         true,
		PlatformSyncIntervalMinutes: defaultSyncIntervalMinutes,
		RotateEveryDays:             defaultRotateEveryDays,
		GraceMinutes:                defaultGraceMinutes,
	}
	if err := s.store.CreateInstall(ctx, install); err != nil {
		if errors.Is(err, hubs.ErrSerialTaken) {
			return nil, ErrSerialTaken
		}
		return nil, fmt.Errorf("create install: %w", err)
	}

	// Seed the initial pending hub token (version 1).
	material, err := hubs.NewTokenMaterial(s.cipher)
	if err != nil {
		return nil, err
	}
	err = s.store.WithInstall(ctx, install.ID, func(tx hubs.InstallTx) error {
		return tx.CreateToken(&hubs.HubToken{
			Version:         1,
			Status:          hubs.TokenPending,
			TokenHash:       material.Hash,
			TokenCiphertext: material.Ciphertext,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("seed token: %w", err)
	}

	slog.Info("Hub install provisioned", "install_id", install.ID, "serial", serial)

	return &ProvisionResult{
		InstallID:       install.ID,
		Serial:          serial,
		BootstrapSecret: bootstrapSecret,
	}, nil
}

// PairInstall redeems the bootstrap secret: it verifies the caller holds
// the plaintext handed out at provisioning, then generates and stores the
// sync secret the agent will sign its polls with.
func (s *Service) PairInstall(ctx context.Context, serial, bootstrapSecret, baseURL string) (*PairResult, error) {
	normalizedURL, err := normalizeBaseURL(baseURL)
	if err != nil {
		return nil, err
	}

	install, err := s.store.GetInstallBySerial(ctx, strings.TrimSpace(serial))
	if err != nil {
		if errors.Is(err, hubs.ErrInstallNotFound) {
			return nil, ErrNotProvisioned
		}
		return nil, fmt.Errorf("lookup install: %w", err)
	}

	stored, err := s.cipher.Decrypt(install.BootstrapSecretCiphertext)
	if err != nil {
		slog.Error("Failed to decrypt bootstrap secret",
			"install_id", install.ID, "serial", install.Serial, "error", err)
		return nil, fmt.Errorf("decrypt bootstrap secret: %w", err)
	}
	if subtle.ConstantTimeCompare([]byte(stored), []byte(strings.TrimSpace(bootstrapSecret))) != 1 {
		return nil, ErrBadBootstrapSecret
	}

	if install.Paired() {
		return nil, ErrAlreadyPaired
	}

	syncSecret, err := hubcrypto.GenerateRandomHex(syncSecretBytes)
	if err != nil {
		return nil, fmt.Errorf("generate sync secret: %w", err)
	}
	syncCiphertext, err := s.cipher.Encrypt(syncSecret)
	if err != nil {
		return nil, fmt.Errorf("encrypt sync secret: %w", err)
	}

	var interval int
	err = s.store.WithInstall(ctx, install.ID, func(tx hubs.InstallTx) error {
		current := tx.Install()
		if current.Paired() {
			return ErrAlreadyPaired
		}
		current.SyncSecretCiphertext = syncCiphertext
		current.BaseURL = normalizedURL
		interval = current.PlatformSyncIntervalMinutes
		return tx.UpdateInstall(current)
	})
	if err != nil {
		return nil, err
	}

	slog.Info("Hub install paired", "install_id", install.ID, "serial", install.Serial)

	return &PairResult{
		InstallID:           install.ID,
		Serial:              install.Serial,
		SyncSecret:          syncSecret,
		SyncIntervalMinutes: interval,
	}, nil
}

func normalizeBaseURL(raw string) (string, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(raw), "/")
	parsed, err := url.Parse(trimmed)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return "", ErrInvalidBaseURL
	}
	return trimmed, nil
}
