package profile

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const profileColumns = `id, username, first_name, last_name, user_type, avatar_url,
		       bio, location, interests, created_at, updated_at`

// PostgresRepository implements Repository using pgxpool.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new Repository backed by the given connection pool.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &PostgresRepository{pool: pool}
}

// Create inserts a new profile record. The username unique index is the
// authority on username collisions.
func (r *PostgresRepository) Create(ctx context.Context, p *Profile) error {
	query := `
		INSERT INTO profiles (id, username, first_name, last_name, user_type,
		                      avatar_url, bio, location, interests)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at`

	interests := p.Interests
	if interests == nil {
		interests = []string{}
	}

	err := r.pool.QueryRow(ctx, query,
		p.ID,
		p.Username,
		p.FirstName,
		p.LastName,
		string(p.UserType),
		p.AvatarURL,
		p.Bio,
		p.Location,
		interests,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return mapWriteError("inserting profile", err)
	}
	p.Interests = interests

	return nil
}

// GetByID retrieves a single profile by the owning identity id.
func (r *PostgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE id = $1`

	p, err := scanProfile(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("querying profile: %w", err)
	}

	return p, nil
}

// UsernameExists reports whether any profile already uses the username.
func (r *PostgresRepository) UsernameExists(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM profiles WHERE username = $1)", username,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking username: %w", err)
	}
	return exists, nil
}

// Update applies the non-nil fields of u and returns the stored profile.
func (r *PostgresRepository) Update(ctx context.Context, id uuid.UUID, u Update) (*Profile, error) {
	if u.Empty() {
		return r.GetByID(ctx, id)
	}

	var (
		sets []string
		args []any
	)
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if u.Username != nil {
		add("username", *u.Username)
	}
	if u.FirstName != nil {
		add("first_name", *u.FirstName)
	}
	if u.LastName != nil {
		add("last_name", *u.LastName)
	}
	if u.AvatarURL != nil {
		add("avatar_url", *u.AvatarURL)
	}
	if u.Bio != nil {
		add("bio", *u.Bio)
	}
	if u.Location != nil {
		add("location", *u.Location)
	}
	if u.Interests != nil {
		add("interests", *u.Interests)
	}

	args = append(args, id)
	query := fmt.Sprintf(`
		UPDATE profiles
		SET %s, updated_at = NOW()
		WHERE id = $%d
		RETURNING `+profileColumns, strings.Join(sets, ", "), len(args))

	p, err := scanProfile(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, mapWriteError("updating profile", err)
	}

	return p, nil
}

// List retrieves profiles ordered by creation time, newest first.
func (r *PostgresRepository) List(ctx context.Context, filter ListFilter) ([]Profile, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = DefaultListLimit
	}

	query := `SELECT ` + profileColumns + ` FROM profiles`
	args := []any{}
	if filter.UserType != nil {
		args = append(args, string(*filter.UserType))
		query += ` WHERE user_type = $1`
	}
	args = append(args, limit)
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing profiles: %w", err)
	}
	defer rows.Close()

	var profiles []Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning profile row: %w", err)
		}
		profiles = append(profiles, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating profile rows: %w", err)
	}

	if profiles == nil {
		profiles = []Profile{}
	}

	return profiles, nil
}

func scanProfile(row pgx.Row) (*Profile, error) {
	var (
		p        Profile
		userType string
	)
	err := row.Scan(
		&p.ID, &p.Username, &p.FirstName, &p.LastName, &userType,
		&p.AvatarURL, &p.Bio, &p.Location, &p.Interests,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.UserType = UserType(userType)
	if p.Interests == nil {
		p.Interests = []string{}
	}
	return &p, nil
}

func mapWriteError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		if pgErr.ConstraintName == "profiles_pkey" {
			return ErrProfileExists
		}
		return ErrUsernameTaken
	}
	return fmt.Errorf("%s: %w", op, err)
}
