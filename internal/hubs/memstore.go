package hubs

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemStore is an in-memory Store used by tests and by the unit tests of
// the services built on top of it. WithInstall works on deep copies and
// swaps them in only when fn succeeds, matching the commit-all-or-nothing
// contract of the Postgres store.
type MemStore struct {
	mu       sync.Mutex
	installs map[string]*HubInstall
	bySerial map[string]string
	tokens   map[string][]HubToken
	locks    map[string]*sync.Mutex
}

func NewMemStore() *MemStore {
	return &MemStore{
		installs: make(map[string]*HubInstall),
		bySerial: make(map[string]string),
		tokens:   make(map[string][]HubToken),
		locks:    make(map[string]*sync.Mutex),
	}
}

func (s *MemStore) CreateInstall(_ context.Context, install *HubInstall) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.bySerial[install.Serial]; exists {
		return ErrSerialTaken
	}

	if install.ID == "" {
		install.ID = uuid.NewString()
	}
	now := time.Now()
	install.CreatedAt = now
	install.UpdatedAt = now

	cp := copyInstall(install)
	s.installs[cp.ID] = cp
	s.bySerial[cp.Serial] = cp.ID
	s.locks[cp.ID] = &sync.Mutex{}
	return nil
}

func (s *MemStore) GetInstallByID(_ context.Context, id string) (*HubInstall, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	install, ok := s.installs[id]
	if !ok {
		return nil, ErrInstallNotFound
	}
	return copyInstall(install), nil
}

func (s *MemStore) GetInstallBySerial(_ context.Context, serial string) (*HubInstall, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.bySerial[serial]
	if !ok {
		return nil, ErrInstallNotFound
	}
	return copyInstall(s.installs[id]), nil
}

func (s *MemStore) ListSyncEnabledInstalls(_ context.Context) ([]HubInstall, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []HubInstall
	for _, install := range s.installs {
		if install.PlatformSyncEnabled {
			result = append(result, *copyInstall(install))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Serial < result[j].Serial })
	return result, nil
}

func (s *MemStore) WithInstall(_ context.Context, installID string, fn func(tx InstallTx) error) error {
	s.mu.Lock()
	lock, ok := s.locks[installID]
	s.mu.Unlock()
	if !ok {
		return ErrInstallNotFound
	}

	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	tx := &memTx{
		install: copyInstall(s.installs[installID]),
		tokens:  copyTokens(s.tokens[installID]),
	}
	s.mu.Unlock()

	if err := fn(tx); err != nil {
		return err
	}

	tx.install.UpdatedAt = time.Now()

	s.mu.Lock()
	s.installs[installID] = tx.install
	s.tokens[installID] = tx.tokens
	s.mu.Unlock()
	return nil
}

type memTx struct {
	install *HubInstall
	tokens  []HubToken
}

func (tx *memTx) Install() *HubInstall {
	return copyInstall(tx.install)
}

func (tx *memTx) Tokens() ([]HubToken, error) {
	return copyTokens(tx.tokens), nil
}

func (tx *memTx) CreateToken(t *HubToken) error {
	for i := range tx.tokens {
		if tx.tokens[i].Version == t.Version {
			return ErrVersionExists
		}
		if t.Status == TokenPending && tx.tokens[i].Status == TokenPending {
			return ErrPendingExists
		}
	}

	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.HubInstallID = tx.install.ID
	t.CreatedAt = time.Now()

	tx.tokens = append(tx.tokens, *copyToken(t))
	sort.Slice(tx.tokens, func(i, j int) bool { return tx.tokens[i].Version < tx.tokens[j].Version })
	return nil
}

func (tx *memTx) UpdateToken(t *HubToken) error {
	for i := range tx.tokens {
		if tx.tokens[i].ID == t.ID {
			tx.tokens[i] = *copyToken(t)
			return nil
		}
	}
	return ErrTokenNotFound
}

func (tx *memTx) UpdateInstall(install *HubInstall) error {
	if install.ID != tx.install.ID {
		return ErrInstallNotFound
	}
	tx.install = copyInstall(install)
	return nil
}

func copyInstall(in *HubInstall) *HubInstall {
	cp := *in
	if in.LastSeenAt != nil {
		t := *in.LastSeenAt
		cp.LastSeenAt = &t
	}
	return &cp
}

func copyToken(t *HubToken) *HubToken {
	cp := *t
	if t.PublishedAt != nil {
		ts := *t.PublishedAt
		cp.PublishedAt = &ts
	}
	if t.GraceUntil != nil {
		ts := *t.GraceUntil
		cp.GraceUntil = &ts
	}
	return &cp
}

func copyTokens(tokens []HubToken) []HubToken {
	result := make([]HubToken, len(tokens))
	for i := range tokens {
		result[i] = *copyToken(&tokens[i])
	}
	return result
}
