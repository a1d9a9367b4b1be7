package memory

import (
	"context"
	"strings"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type userRepository struct {
	store *Store
}

// NewUserRepository возвращает in-memory репозиторий пользователей.
func NewUserRepository(store *Store) domain.UserRepository {
	return &userRepository{store: store}
}

func (r *userRepository) Create(_ context.Context, user domain.User) (domain.User, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	st := r.store.state
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	if _, taken := st.emails[user.Email]; taken {
		return domain.User{}, domain.ErrEmailTaken
	}

	st.nextUserID++
	now := r.store.now()
	user.ID = st.nextUserID
	user.CreatedAt, user.UpdatedAt = now, now
	user.PasswordHash = append([]byte(nil), user.PasswordHash...)
	st.users[user.ID] = user
	st.emails[user.Email] = user.ID
	return user, nil
}

func (r *userRepository) GetByEmail(_ context.Context, email string) (domain.User, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	id, ok := r.store.state.emails[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return r.store.state.users[id], nil
}

func (r *userRepository) GetByID(_ context.Context, id int64) (domain.User, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	user, ok := r.store.state.users[id]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return user, nil
}

type tokenRepository struct {
	store *Store
}

// NewTokenRepository возвращает in-memory репозиторий токенов.
func NewTokenRepository(store *Store) domain.TokenRepository {
	return &tokenRepository{store: store}
}

func (r *tokenRepository) Create(_ context.Context, token domain.AccessToken) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, ok := r.store.state.users[token.UserID]; !ok {
		return domain.ErrUserNotFound
	}
	r.store.state.tokens[token.Hash] = token
	return nil
}

func (r *tokenRepository) UserIDByHash(_ context.Context, hash string) (int64, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	token, ok := r.store.state.tokens[hash]
	if !ok {
		return 0, domain.ErrTokenNotFound
	}
	return token.UserID, nil
}

func (r *tokenRepository) Delete(_ context.Context, hash string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, ok := r.store.state.tokens[hash]; !ok {
		return domain.ErrTokenNotFound
	}
	delete(r.store.state.tokens, hash)
	return nil
}

func (r *tokenRepository) DeleteByUser(_ context.Context, userID int64) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	for hash, token := range r.store.state.tokens {
		if token.UserID == userID {
			delete(r.store.state.tokens, hash)
		}
	}
	return nil
}

var (
	_ domain.UserRepository  = (*userRepository)(nil)
	_ domain.TokenRepository = (*tokenRepository)(nil)
)
