package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const userColumns = `id, name, email, password_hash, created_at, updated_at`

type userRepository struct {
	db *sql.DB
}

// NewUserRepository создаёт PostgreSQL-реализацию UserRepository.
func NewUserRepository(store *Store) domain.UserRepository {
	return &userRepository{db: store.DB()}
}

func (r *userRepository) Create(ctx context.Context, user domain.User) (domain.User, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO users (name, email, password_hash)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at
	`, user.Name, user.Email, user.PasswordHash).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.User{}, domain.ErrEmailTaken
		}
		return domain.User{}, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE LOWER(email) = $1`, strings.ToLower(strings.TrimSpace(email)))
}

func (r *userRepository) GetByID(ctx context.Context, id int64) (domain.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (r *userRepository) getOne(ctx context.Context, query string, arg any) (domain.User, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var user domain.User
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID, &user.Name, &user.Email, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.User{}, domain.ErrUserNotFound
		}
		return domain.User{}, fmt.Errorf("select user: %w", err)
	}
	return user, nil
}

type tokenRepository struct {
	db *sql.DB
}

// NewTokenRepository создаёт PostgreSQL-реализацию TokenRepository.
func NewTokenRepository(store *Store) domain.TokenRepository {
	return &tokenRepository{db: store.DB()}
}

func (r *tokenRepository) Create(ctx context.Context, token domain.AccessToken) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO access_tokens (token_hash, user_id, created_at)
		VALUES ($1, $2, $3)
	`, token.Hash, token.UserID, token.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.ErrUserNotFound
		}
		return fmt.Errorf("insert access token: %w", err)
	}
	return nil
}

func (r *tokenRepository) UserIDByHash(ctx context.Context, hash string) (int64, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var userID int64
	err := r.db.QueryRowContext(ctx, `SELECT user_id FROM access_tokens WHERE token_hash = $1`, hash).Scan(&userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, domain.ErrTokenNotFound
		}
		return 0, fmt.Errorf("select access token: %w", err)
	}
	return userID, nil
}

func (r *tokenRepository) Delete(ctx context.Context, hash string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `DELETE FROM access_tokens WHERE token_hash = $1`, hash)
	if err != nil {
		return fmt.Errorf("delete access token: %w", err)
	}
	return expectAffected(res, domain.ErrTokenNotFound)
}

func (r *tokenRepository) DeleteByUser(ctx context.Context, userID int64) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, `DELETE FROM access_tokens WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("delete user access tokens: %w", err)
	}
	return nil
}

var (
	_ domain.UserRepository  = (*userRepository)(nil)
	_ domain.TokenRepository = (*tokenRepository)(nil)
)
