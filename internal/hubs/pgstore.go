package hubs

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const installColumns = `id, serial, base_url, bootstrap_secret_ciphertext, sync_secret_ciphertext,
	platform_sync_enabled, platform_sync_interval_minutes, rotate_every_days, grace_minutes,
	published_hub_token_version, last_acked_hub_token_version, last_seen_at, created_at, updated_at`

const tokenColumns = `id, hub_install_id, version, status, token_hash, token_ciphertext,
	published_at, grace_until, created_at`

// PGStore is the Postgres-backed Store. WithInstall opens a transaction
// and takes a row lock on the install (SELECT ... FOR UPDATE), so two
// concurrent polls for the same install cannot interleave their
// sweep/promote sequences. The one-PENDING-per-install invariant is also
// enforced by a partial unique index in the schema.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func (s *PGStore) CreateInstall(ctx context.Context, install *HubInstall) error {
	if install.ID == "" {
		install.ID = uuid.NewString()
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO hub_installs (
			id, serial, base_url, bootstrap_secret_ciphertext, sync_secret_ciphertext,
			platform_sync_enabled, platform_sync_interval_minutes, rotate_every_days, grace_minutes,
			published_hub_token_version, last_acked_hub_token_version
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at`,
		install.ID, install.Serial, install.BaseURL,
		install.BootstrapSecretCiphertext, install.SyncSecretCiphertext,
		install.PlatformSyncEnabled, install.PlatformSyncIntervalMinutes,
		install.RotateEveryDays, install.GraceMinutes,
		install.PublishedHubTokenVersion, install.LastAckedHubTokenVersion,
	)
	if err := row.Scan(&install.CreatedAt, &install.UpdatedAt); err != nil {
		return mapConstraintError(err, "insert install")
	}
	return nil
}

func (s *PGStore) GetInstallByID(ctx context.Context, id string) (*HubInstall, error) {
	query := fmt.Sprintf(`SELECT %s FROM hub_installs WHERE id = $1`, installColumns)
	return scanInstall(s.pool.QueryRow(ctx, query, id))
}

func (s *PGStore) GetInstallBySerial(ctx context.Context, serial string) (*HubInstall, error) {
	query := fmt.Sprintf(`SELECT %s FROM hub_installs WHERE serial = $1`, installColumns)
	return scanInstall(s.pool.QueryRow(ctx, query, serial))
}

func (s *PGStore) ListSyncEnabledInstalls(ctx context.Context) ([]HubInstall, error) {
	query := fmt.Sprintf(
		`SELECT %s FROM hub_installs WHERE platform_sync_enabled ORDER BY serial`, installColumns)
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list installs: %w", err)
	}
	defer rows.Close()

	var result []HubInstall
	for rows.Next() {
		install, err := scanInstall(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *install)
	}
	return result, rows.Err()
}

func (s *PGStore) WithInstall(ctx context.Context, installID string, fn func(tx InstallTx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := fmt.Sprintf(`SELECT %s FROM hub_installs WHERE id = $1 FOR UPDATE`, installColumns)
	install, err := scanInstall(tx.QueryRow(ctx, query, installID))
	if err != nil {
		return err
	}

	if err := fn(&pgTx{ctx: ctx, tx: tx, install: install}); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx,
		`UPDATE hub_installs SET updated_at = now() WHERE id = $1`, installID); err != nil {
		return fmt.Errorf("touch install: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

type pgTx struct {
	ctx     context.Context
	tx      pgx.Tx
	install *HubInstall
}

func (t *pgTx) Install() *HubInstall {
	cp := *t.install
	if t.install.LastSeenAt != nil {
		ts := *t.install.LastSeenAt
		cp.LastSeenAt = &ts
	}
	return &cp
}

func (t *pgTx) Tokens() ([]HubToken, error) {
	query := fmt.Sprintf(
		`SELECT %s FROM hub_tokens WHERE hub_install_id = $1 ORDER BY version`, tokenColumns)
	rows, err := t.tx.Query(t.ctx, query, t.install.ID)
	if err != nil {
		return nil, fmt.Errorf("list tokens: %w", err)
	}
	defer rows.Close()

	var result []HubToken
	for rows.Next() {
		var token HubToken
		if err := rows.Scan(
			&token.ID, &token.HubInstallID, &token.Version, &token.Status,
			&token.TokenHash, &token.TokenCiphertext,
			&token.PublishedAt, &token.GraceUntil, &token.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan token: %w", err)
		}
		result = append(result, token)
	}
	return result, rows.Err()
}

func (t *pgTx) CreateToken(token *HubToken) error {
	if token.ID == "" {
		token.ID = uuid.NewString()
	}
	token.HubInstallID = t.install.ID

	row := t.tx.QueryRow(t.ctx, `
		INSERT INTO hub_tokens (id, hub_install_id, version, status, token_hash, token_ciphertext, published_at, grace_until)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at`,
		token.ID, token.HubInstallID, token.Version, token.Status,
		token.TokenHash, token.TokenCiphertext, token.PublishedAt, token.GraceUntil,
	)
	if err := row.Scan(&token.CreatedAt); err != nil {
		return mapConstraintError(err, "insert token")
	}
	return nil
}

func (t *pgTx) UpdateToken(token *HubToken) error {
	tag, err := t.tx.Exec(t.ctx, `
		UPDATE hub_tokens
		SET status = $2, published_at = $3, grace_until = $4
		WHERE id = $1`,
		token.ID, token.Status, token.PublishedAt, token.GraceUntil,
	)
	if err != nil {
		return mapConstraintError(err, "update token")
	}
	if tag.RowsAffected() == 0 {
		return ErrTokenNotFound
	}
	return nil
}

func (t *pgTx) UpdateInstall(install *HubInstall) error {
	if install.ID != t.install.ID {
		return ErrInstallNotFound
	}

	_, err := t.tx.Exec(t.ctx, `
		UPDATE hub_installs
		SET base_url = $2, sync_secret_ciphertext = $3,
			platform_sync_enabled = $4, platform_sync_interval_minutes = $5,
			rotate_every_days = $6, grace_minutes = $7,
			published_hub_token_version = $8, last_acked_hub_token_version = $9,
			last_seen_at = $10
		WHERE id = $1`,
		install.ID, install.BaseURL, install.SyncSecretCiphertext,
		install.PlatformSyncEnabled, install.PlatformSyncIntervalMinutes,
		install.RotateEveryDays, install.GraceMinutes,
		install.PublishedHubTokenVersion, install.LastAckedHubTokenVersion,
		install.LastSeenAt,
	)
	if err != nil {
		return fmt.Errorf("update install: %w", err)
	}

	t.install = install
	return nil
}

func scanInstall(row pgx.Row) (*HubInstall, error) {
	var install HubInstall
	err := row.Scan(
		&install.ID, &install.Serial, &install.BaseURL,
		&install.BootstrapSecretCiphertext, &install.SyncSecretCiphertext,
		&install.PlatformSyncEnabled, &install.PlatformSyncIntervalMinutes,
		&install.RotateEveryDays, &install.GraceMinutes,
		&install.PublishedHubTokenVersion, &install.LastAckedHubTokenVersion,
		&install.LastSeenAt, &install.CreatedAt, &install.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInstallNotFound
		}
		return nil, fmt.Errorf("scan install: %w", err)
	}
	return &install, nil
}

func mapConstraintError(err error, op string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		switch pgErr.ConstraintName {
		case "hub_installs_serial_key":
			return ErrSerialTaken
		case "hub_tokens_one_pending_per_install":
			return ErrPendingExists
		case "hub_tokens_install_version_key":
			return ErrVersionExists
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
