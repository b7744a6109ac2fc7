package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/trempist/trempist/pkg/database"
	"github.com/trempist/trempist/pkg/models"
)

// PostgresStore persists user documents as JSONB rows, one table per
// namespace.
type PostgresStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresStore creates a store over an initialized database client.
func NewPostgresStore(client *database.Client) *PostgresStore {
	return &PostgresStore{
		db:     client.DB(),
		logger: slog.Default().With("component", "store"),
	}
}

// tableFor maps a prefix to its table. The whitelist is the prefix-isolation
// guarantee: an unknown prefix can never produce SQL.
func tableFor(prefix Prefix) (string, error) {
	switch prefix {
	case PrefixLive:
		return "users", nil
	case PrefixSandbox:
		return "test_users", nil
	}
	return "", fmt.Errorf("%w: %q", ErrPrefixUnknown, string(prefix))
}

// GetUser implements Store.
func (s *PostgresStore) GetUser(ctx context.Context, prefix Prefix, phone string) (*models.User, error) {
	table, err := tableFor(prefix)
	if err != nil {
		return nil, err
	}

	var raw []byte
	query := fmt.Sprintf("SELECT doc FROM %s WHERE phone_number = $1", table)
	if err := s.db.QueryRowContext(ctx, query, phone).Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: user %s", ErrNotFound, phone)
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	var user models.User
	if err := json.Unmarshal(raw, &user); err != nil {
		return nil, fmt.Errorf("failed to decode user document: %w", err)
	}
	return &user, nil
}

// Mutate implements Store. The read-modify-write runs in a transaction with
// the row locked, so concurrent mutations of the same user serialize. A
// transient failure is retried once with jitter.
func (s *PostgresStore) Mutate(ctx context.Context, prefix Prefix, phone string, create bool, fn func(*models.User) error) (*models.User, error) {
	user, err := s.mutateOnce(ctx, prefix, phone, create, fn)
	if err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, ErrPrefixUnknown) || errors.Is(err, ErrDuplicateRecord) || ctx.Err() != nil {
		return user, err
	}

	s.logger.Warn("retrying user mutation", "phone", phone, "error", err)
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(time.Duration(50+rand.IntN(150)) * time.Millisecond):
	}
	return s.mutateOnce(ctx, prefix, phone, create, fn)
}

func (s *PostgresStore) mutateOnce(ctx context.Context, prefix Prefix, phone string, create bool, fn func(*models.User) error) (*models.User, error) {
	table, err := tableFor(prefix)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if create {
		// Seed the row so the FOR UPDATE below always has a row to lock;
		// concurrent creators wait on this insert instead of racing the upsert.
		seed, err := json.Marshal(&models.User{Phone: phone})
		if err != nil {
			return nil, fmt.Errorf("failed to encode user document: %w", err)
		}
		seedQuery := fmt.Sprintf("INSERT INTO %s (phone_number, doc) VALUES ($1, $2) ON CONFLICT (phone_number) DO NOTHING", table)
		if _, err := tx.ExecContext(ctx, seedQuery, phone, seed); err != nil {
			return nil, fmt.Errorf("failed to create user row: %w", err)
		}
	}

	var raw []byte
	selectQuery := fmt.Sprintf("SELECT doc FROM %s WHERE phone_number = $1 FOR UPDATE", table)
	err = tx.QueryRowContext(ctx, selectQuery, phone).Scan(&raw)

	var user models.User
	switch {
	case err == nil:
		if err := json.Unmarshal(raw, &user); err != nil {
			return nil, fmt.Errorf("failed to decode user document: %w", err)
		}
	case errors.Is(err, sql.ErrNoRows):
		if !create {
			return nil, fmt.Errorf("%w: user %s", ErrNotFound, phone)
		}
		user = models.User{Phone: phone}
	default:
		return nil, fmt.Errorf("failed to load user for update: %w", err)
	}

	if err := fn(&user); err != nil {
		return nil, err
	}

	encoded, err := json.Marshal(&user)
	if err != nil {
		return nil, fmt.Errorf("failed to encode user document: %w", err)
	}

	upsert := fmt.Sprintf(`INSERT INTO %s (phone_number, doc, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (phone_number) DO UPDATE SET doc = EXCLUDED.doc, updated_at = now()`, table)
	if _, err := tx.ExecContext(ctx, upsert, phone, encoded); err != nil {
		return nil, fmt.Errorf("failed to write user document: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit user mutation: %w", err)
	}
	return &user, nil
}

// DeleteUser implements Store.
func (s *PostgresStore) DeleteUser(ctx context.Context, prefix Prefix, phone string) error {
	table, err := tableFor(prefix)
	if err != nil {
		return err
	}
	query := fmt.Sprintf("DELETE FROM %s WHERE phone_number = $1", table)
	if _, err := s.db.ExecContext(ctx, query, phone); err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return nil
}

// ChangePhone implements Store.
func (s *PostgresStore) ChangePhone(ctx context.Context, prefix Prefix, oldPhone, newPhone string) error {
	table, err := tableFor(prefix)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var raw []byte
	selectQuery := fmt.Sprintf("SELECT doc FROM %s WHERE phone_number = $1 FOR UPDATE", table)
	if err := tx.QueryRowContext(ctx, selectQuery, oldPhone).Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: user %s", ErrNotFound, oldPhone)
		}
		return fmt.Errorf("failed to load user: %w", err)
	}

	var taken int
	if err := tx.QueryRowContext(ctx,
		fmt.Sprintf("SELECT count(*) FROM %s WHERE phone_number = $1", table), newPhone).Scan(&taken); err != nil {
		return fmt.Errorf("failed to check target phone: %w", err)
	}
	if taken > 0 {
		return fmt.Errorf("%w: phone %s already exists", ErrDuplicateRecord, newPhone)
	}

	var user models.User
	if err := json.Unmarshal(raw, &user); err != nil {
		return fmt.Errorf("failed to decode user document: %w", err)
	}
	user.Phone = newPhone
	encoded, err := json.Marshal(&user)
	if err != nil {
		return fmt.Errorf("failed to encode user document: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE phone_number = $1", table), oldPhone); err != nil {
		return fmt.Errorf("failed to remove old phone row: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf("INSERT INTO %s (phone_number, doc) VALUES ($1, $2)", table), newPhone, encoded); err != nil {
		return fmt.Errorf("failed to insert new phone row: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit phone change: %w", err)
	}
	return nil
}

// ScanUsers implements Store. Full-collection enumeration is fine at this
// problem size.
func (s *PostgresStore) ScanUsers(ctx context.Context, prefix Prefix, fn func(*models.User) bool) error {
	table, err := tableFor(prefix)
	if err != nil {
		return err
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("SELECT doc FROM %s", table))
	if err != nil {
		return fmt.Errorf("failed to scan users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return fmt.Errorf("failed to read user row: %w", err)
		}
		var user models.User
		if err := json.Unmarshal(raw, &user); err != nil {
			s.logger.Error("skipping undecodable user document", "error", err)
			continue
		}
		if !fn(&user) {
			break
		}
	}
	return rows.Err()
}
