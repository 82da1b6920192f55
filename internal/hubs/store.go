package hubs

import (
	"context"
	"errors"
)

var (
	ErrInstallNotFound = errors.New("hub install not found")
	ErrTokenNotFound   = errors.New("hub token not found")
	ErrSerialTaken     = errors.New("serial is already provisioned")
	ErrPendingExists   = errors.New("a pending token already exists for this install")
	ErrVersionExists   = errors.New("token version already exists for this install")
)

// Store is the persistence boundary for hub installs and their tokens.
// Implementations must make WithInstall an atomic unit of work: either
// every mutation made through the InstallTx commits, or none do.
type Store interface {
	CreateInstall(ctx context.Context, install *HubInstall) error
	GetInstallByID(ctx context.Context, id string) (*HubInstall, error)
	GetInstallBySerial(ctx context.Context, serial string) (*HubInstall, error)
	ListSyncEnabledInstalls(ctx context.Context) ([]HubInstall, error)

	// WithInstall runs fn while holding an exclusive lock on the install,
	// so concurrent polls or overlapping scheduler passes for the same
	// install serialize. Polls for different installs are independent.
	WithInstall(ctx context.Context, installID string, fn func(tx InstallTx) error) error
}

// InstallTx is the transactional view of a single install and its tokens.
type InstallTx interface {
	// Install returns the locked install row as of transaction start,
	// reflecting any UpdateInstall applied within this transaction.
	Install() *HubInstall

	// Tokens returns every token of the install in ascending version order.
	Tokens() ([]HubToken, error)

	CreateToken(t *HubToken) error
	UpdateToken(t *HubToken) error
	UpdateInstall(install *HubInstall) error
}
