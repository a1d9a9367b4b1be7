package auth

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

func newTestService() (*Service, domain.TokenRepository) {
	store := memory.NewStore()
	tokens := memory.NewTokenRepository(store)
	return NewService(memory.NewUserRepository(store), tokens, WithBcryptCost(bcrypt.MinCost)), tokens
}

func validInput() RegisterInput {
	return RegisterInput{
		Name:                 "Maria Silva",
		Email:                " Maria@Example.com ",
		Password:             "segredo123",
		PasswordConfirmation: "segredo123",
	}
}

func TestRegisterIssuesToken(t *testing.T) {
	svc, tokens := newTestService()
	ctx := context.Background()

	session, err := svc.Register(ctx, validInput())
	require.NoError(t, err)
	require.Equal(t, "maria@example.com", session.User.Email)
	require.Len(t, session.Token, tokenBytes*2)
	require.NotEqual(t, []byte("segredo123"), session.User.PasswordHash)

	// В хранилище лежит только хэш.
	_, err = tokens.UserIDByHash(ctx, session.Token)
	require.ErrorIs(t, err, domain.ErrTokenNotFound)
	userID, err := tokens.UserIDByHash(ctx, hashToken(session.Token))
	require.NoError(t, err)
	require.Equal(t, session.User.ID, userID)

	user, err := svc.Authenticate(ctx, session.Token)
	require.NoError(t, err)
	require.Equal(t, session.User.ID, user.ID)
}

func TestRegisterValidation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*RegisterInput)
		field  string
		want   error
	}{
		{"empty name", func(in *RegisterInput) { in.Name = " " }, "name", domain.ErrUserNameRequired},
		{"bad email", func(in *RegisterInput) { in.Email = "not-an-email" }, "email", domain.ErrEmailInvalid},
		{"display name email", func(in *RegisterInput) { in.Email = "Maria <maria@example.com>" }, "email", domain.ErrEmailInvalid},
		{"short password", func(in *RegisterInput) { in.Password, in.PasswordConfirmation = "abc", "abc" }, "password", domain.ErrPasswordTooShort},
		{"long password", func(in *RegisterInput) {
			in.Password = strings.Repeat("s", maxPasswordLen+8)
			in.PasswordConfirmation = in.Password
		}, "password", domain.ErrPasswordTooLong},
		{"mismatch", func(in *RegisterInput) { in.PasswordConfirmation = "outro-segredo" }, "password", domain.ErrPasswordMismatch},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, _ := newTestService()
			in := validInput()
			tc.mutate(&in)

			_, err := svc.Register(context.Background(), in)
			var vErr *domain.ValidationError
			require.ErrorAs(t, err, &vErr)
			require.Equal(t, tc.field, vErr.Field)
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	_, err := svc.Register(ctx, validInput())
	require.NoError(t, err)

	_, err = svc.Register(ctx, validInput())
	require.ErrorIs(t, err, domain.ErrEmailTaken)
	require.True(t, domain.IsValidation(err))
}

func TestEnsureUserCreatesOnce(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	first, created, err := svc.EnsureUser(ctx, validInput())
	require.NoError(t, err)
	require.True(t, created)

	again := validInput()
	again.Password, again.PasswordConfirmation = "outra-senha-1", "outra-senha-1"
	second, created, err := svc.EnsureUser(ctx, again)
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, first.ID, second.ID)

	// Пароль существующей учётки не перезаписывается.
	_, err = svc.Login(ctx, "maria@example.com", "segredo123")
	require.NoError(t, err)
}

func TestEnsureUserValidatesInput(t *testing.T) {
	svc, _ := newTestService()
	in := validInput()
	in.Email = "broken"

	_, _, err := svc.EnsureUser(context.Background(), in)
	require.ErrorIs(t, err, domain.ErrEmailInvalid)
}

func TestLoginRevokesPreviousTokens(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	registered, err := svc.Register(ctx, validInput())
	require.NoError(t, err)

	session, err := svc.Login(ctx, "MARIA@example.com", "segredo123")
	require.NoError(t, err)
	require.NotEqual(t, registered.Token, session.Token)

	_, err = svc.Authenticate(ctx, registered.Token)
	require.ErrorIs(t, err, domain.ErrUnauthenticated)
	_, err = svc.Authenticate(ctx, session.Token)
	require.NoError(t, err)
}

func TestLoginInvalidCredentials(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	_, err := svc.Register(ctx, validInput())
	require.NoError(t, err)

	_, err = svc.Login(ctx, "maria@example.com", "errado123")
	require.ErrorIs(t, err, domain.ErrInvalidCredentials)
	_, err = svc.Login(ctx, "ninguem@example.com", "segredo123")
	require.ErrorIs(t, err, domain.ErrInvalidCredentials)
}

func TestLogout(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	session, err := svc.Register(ctx, validInput())
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, session.Token))
	_, err = svc.Authenticate(ctx, session.Token)
	require.ErrorIs(t, err, domain.ErrUnauthenticated)
	require.ErrorIs(t, svc.Logout(ctx, session.Token), domain.ErrUnauthenticated)
}

func TestAuthenticateEmptyToken(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.Authenticate(context.Background(), "  ")
	require.ErrorIs(t, err, domain.ErrUnauthenticated)
}
