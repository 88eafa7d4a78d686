package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/cotex-app/cotex/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type UserStore struct {
	pool *pgxpool.Pool
}

func NewUserStore(pool *pgxpool.Pool) *UserStore {
	return &UserStore{pool: pool}
}

func (s *UserStore) Create(ctx context.Context, email, displayName, passwordHash string) (*models.User, error) {
	query := `
		INSERT INTO users (id, email, display_name, password_hash, verified, created_at)
		VALUES (uuid_generate_v4(), $1, $2, $3, false, now())
		RETURNING id, email, display_name, password_hash, verified, created_at`

	var u models.User
	err := s.pool.QueryRow(ctx, query, email, displayName, passwordHash).Scan(
		&u.ID,
		&u.Email,
		&u.DisplayName,
		&u.PasswordHash,
		&u.Verified,
		&u.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return &u, nil
}

func (s *UserStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `
		SELECT id, email, display_name, password_hash, verified, created_at
		FROM users
		WHERE email = $1`

	var u models.User
	err := s.pool.QueryRow(ctx, query, email).Scan(
		&u.ID,
		&u.Email,
		&u.DisplayName,
		&u.PasswordHash,
		&u.Verified,
		&u.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return &u, nil
}

func (s *UserStore) GetByID(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	query := `
		SELECT id, email, display_name, password_hash, verified, created_at
		FROM users
		WHERE id = $1`

	var u models.User
	err := s.pool.QueryRow(ctx, query, userID).Scan(
		&u.ID,
		&u.Email,
		&u.DisplayName,
		&u.PasswordHash,
		&u.Verified,
		&u.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

// CreateProfile inserts the sidecar profile row. Idempotent so a retried
// signup does not fail halfway.
func (s *UserStore) CreateProfile(ctx context.Context, userID uuid.UUID, bio string) error {
	query := `
		INSERT INTO profiles (user_id, bio, created_at)
		VALUES ($1, $2, now())
		ON CONFLICT (user_id) DO NOTHING`

	if _, err := s.pool.Exec(ctx, query, userID, bio); err != nil {
		return fmt.Errorf("insert profile: %w", err)
	}
	return nil
}
