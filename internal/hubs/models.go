package hubs

import (
	"time"
)

// TokenStatus is the lifecycle state of a hub token. The set is closed:
// a token is created PENDING, promoted to ACTIVE, demoted to GRACE when a
// successor is promoted, and ends REVOKED once its grace window elapses.
type TokenStatus string

const (
	TokenPending TokenStatus = "PENDING"
	TokenActive  TokenStatus = "ACTIVE"
	TokenGrace   TokenStatus = "GRACE"
	TokenRevoked TokenStatus = "REVOKED"
)

func (s TokenStatus) Valid() bool {
	switch s {
	case TokenPending, TokenActive, TokenGrace, TokenRevoked:
		return true
	}
	return false
}

// HubInstall represents one physically deployed hub unit and its token
// rotation policy. SyncSecretCiphertext is empty until the hub has been
// paired; the scheduler skips installs with PlatformSyncEnabled false.
type HubInstall struct {
	ID                          string
	Serial                      string
	BaseURL                     string
	BootstrapSecretCiphertext   string
	SyncSecretCiphertext        string
	PlatformSyncEnabled         bool
	PlatformSyncIntervalMinutes int
	RotateEveryDays             int
	GraceMinutes                int
	PublishedHubTokenVersion    int
	LastAckedHubTokenVersion    int
	LastSeenAt                  *time.Time
	CreatedAt                   time.Time
	UpdatedAt                   time.Time
}

// Paired reports whether the hub has completed bootstrap redemption and
// holds a sync secret for authenticating poll requests.
func (in *HubInstall) Paired() bool {
	return in.SyncSecretCiphertext != ""
}

// HubToken is one versioned bearer credential belonging to a HubInstall.
// Versions are strictly increasing per install and never reused.
type HubToken struct {
	ID              string
	HubInstallID    string
	Version         int
	Status          TokenStatus
	TokenHash       string
	TokenCiphertext string
	PublishedAt     *time.Time
	GraceUntil      *time.Time
	CreatedAt       time.Time
}

// Accepted reports whether the token's hash belongs in the set the agent
// should accept at the given instant. REVOKED tokens are never accepted;
// GRACE tokens stop being accepted once their window has elapsed.
func (t *HubToken) Accepted(now time.Time) bool {
	switch t.Status {
	case TokenActive, TokenPending, TokenGrace:
		return t.GraceUntil == nil || t.GraceUntil.After(now)
	case TokenRevoked:
		return false
	}
	return false
}
