package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository implements AccountRepository using pgxpool.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new AccountRepository backed by the given connection pool.
func NewRepository(pool *pgxpool.Pool) AccountRepository {
	return &PostgresRepository{pool: pool}
}

// Create inserts a new account record.
func (r *PostgresRepository) Create(ctx context.Context, a *Account) error {
	query := `
		INSERT INTO accounts (email, password_hash, email_confirmed_at)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`

	err := r.pool.QueryRow(ctx, query,
		normalizeEmail(a.Email),
		a.PasswordHash,
		a.EmailConfirmedAt,
	).Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return ErrEmailTaken
		}
		return fmt.Errorf("inserting account: %w", err)
	}
	a.Email = normalizeEmail(a.Email)

	return nil
}

// GetByID retrieves a single account by its UUID.
func (r *PostgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Account, error) {
	query := `
		SELECT id, email, password_hash, email_confirmed_at, created_at
		FROM accounts
		WHERE id = $1`

	return r.getOne(ctx, query, id)
}

// GetByEmail retrieves a single account by email, case-insensitively.
func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*Account, error) {
	query := `
		SELECT id, email, password_hash, email_confirmed_at, created_at
		FROM accounts
		WHERE LOWER(email) = $1`

	return r.getOne(ctx, query, normalizeEmail(email))
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, arg any) (*Account, error) {
	var a Account
	err := r.pool.QueryRow(ctx, query, arg).Scan(
		&a.ID, &a.Email, &a.PasswordHash, &a.EmailConfirmedAt, &a.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("querying account: %w", err)
	}
	return &a, nil
}

// ListOrphans returns accounts older than cutoff without a matching profile,
// oldest first.
func (r *PostgresRepository) ListOrphans(ctx context.Context, cutoff time.Time, limit int) ([]Account, error) {
	query := `
		SELECT a.id, a.email, a.password_hash, a.email_confirmed_at, a.created_at
		FROM accounts a
		LEFT JOIN profiles p ON p.id = a.id
		WHERE p.id IS NULL AND a.created_at < $1
		ORDER BY a.created_at ASC
		LIMIT $2`

	rows, err := r.pool.Query(ctx, query, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("listing orphaned accounts: %w", err)
	}
	defer rows.Close()

	var accounts []Account
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.ID, &a.Email, &a.PasswordHash, &a.EmailConfirmedAt, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning account row: %w", err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating account rows: %w", err)
	}

	if accounts == nil {
		accounts = []Account{}
	}

	return accounts, nil
}

// Delete removes an account. Its profile, if any, goes with it (FK CASCADE).
func (r *PostgresRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting account: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrAccountNotFound
	}

	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
