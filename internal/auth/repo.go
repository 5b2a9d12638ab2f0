package auth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository defines persistence operations for the auth module.
type Repository interface {
	// UpsertUser maps the identity subject to a user, creating it on first sight
	// and refreshing the email otherwise.
	UpsertUser(ctx context.Context, identity Identity, now time.Time) (User, error)
	GetUser(ctx context.Context, id uuid.UUID) (User, error)
	InsertAPIKey(ctx context.Context, key APIKey) error
	GetAPIKey(ctx context.Context, id string) (APIKey, error)
	ListAPIKeys(ctx context.Context, orgID uuid.UUID) ([]APIKey, error)
	TouchAPIKey(ctx context.Context, id string, at time.Time) error
	RevokeAPIKey(ctx context.Context, orgID uuid.UUID, id string, at time.Time) error
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// The owning organization is resolved on read so a freshly created
// organization is visible on the caller's next request.
const selectUser = `SELECT u.id, u.subject, u.email, o.id, u.created_at, u.updated_at
	FROM users u LEFT JOIN organizations o ON o.owner_user_id = u.id`

// UpsertUser implements Repository.
func (r *PGRepository) UpsertUser(ctx context.Context, identity Identity, now time.Time) (User, error) {
	var id uuid.UUID
	err := r.pool.QueryRow(ctx, `INSERT INTO users (id, subject, email, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (subject) DO UPDATE
		SET email = EXCLUDED.email,
		    updated_at = CASE WHEN users.email = EXCLUDED.email THEN users.updated_at ELSE EXCLUDED.updated_at END
		RETURNING id`,
		uuid.New(), identity.Subject, identity.Email, now).Scan(&id)
	if err != nil {
		return User{}, err
	}
	return r.GetUser(ctx, id)
}

// GetUser implements Repository.
func (r *PGRepository) GetUser(ctx context.Context, id uuid.UUID) (User, error) {
	var user User
	err := r.pool.QueryRow(ctx, selectUser+` WHERE u.id = $1`, id).
		Scan(&user.ID, &user.Subject, &user.Email, &user.OrganizationID, &user.CreatedAt, &user.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	return user, err
}

const selectAPIKey = `SELECT id, organization_id, user_id, name, secret_hash, last_used_at, revoked_at, created_at
	FROM api_keys`

// InsertAPIKey implements Repository.
func (r *PGRepository) InsertAPIKey(ctx context.Context, key APIKey) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO api_keys
		(id, organization_id, user_id, name, secret_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		key.ID, key.OrganizationID, key.UserID, key.Name, key.SecretHash, key.CreatedAt)
	return err
}

// GetAPIKey implements Repository.
func (r *PGRepository) GetAPIKey(ctx context.Context, id string) (APIKey, error) {
	key, err := scanAPIKey(r.pool.QueryRow(ctx, selectAPIKey+` WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return APIKey{}, ErrAPIKeyNotFound
	}
	return key, err
}

// ListAPIKeys implements Repository.
func (r *PGRepository) ListAPIKeys(ctx context.Context, orgID uuid.UUID) ([]APIKey, error) {
	rows, err := r.pool.Query(ctx, selectAPIKey+` WHERE organization_id = $1 ORDER BY created_at DESC`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var keys []APIKey
	for rows.Next() {
		key, err := scanAPIKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// TouchAPIKey implements Repository.
func (r *PGRepository) TouchAPIKey(ctx context.Context, id string, at time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE api_keys SET last_used_at = $2 WHERE id = $1`, id, at)
	return err
}

// RevokeAPIKey implements Repository.
func (r *PGRepository) RevokeAPIKey(ctx context.Context, orgID uuid.UUID, id string, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `UPDATE api_keys SET revoked_at = COALESCE(revoked_at, $3)
		WHERE id = $1 AND organization_id = $2`, id, orgID, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAPIKeyNotFound
	}
	return nil
}

func scanAPIKey(row pgx.Row) (APIKey, error) {
	var key APIKey
	err := row.Scan(&key.ID, &key.OrganizationID, &key.UserID, &key.Name, &key.SecretHash,
		&key.LastUsedAt, &key.RevokedAt, &key.CreatedAt)
	return key, err
}

var _ Repository = (*PGRepository)(nil)
