// Package auth: регистрация, вход и bearer-токены покупателей.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const (
	minPasswordLen = 8
	// bcrypt не принимает пароли длиннее 72 байт.
	maxPasswordLen = 72
	maxNameLen     = 255
	tokenBytes     = 32
)

// RegisterInput: данные регистрации.
type RegisterInput struct {
	Name                 string
	Email                string
	Password             string
	PasswordConfirmation string
}

// Session: пользователь и выданный ему токен в открытом виде.
type Session struct {
	User  domain.User
	Token string
}

// Service выдаёт и проверяет токены.
type Service struct {
	users  domain.UserRepository
	tokens domain.TokenRepository
	cost   int
	logger *log.Entry
	now    func() time.Time
}

// Option настраивает Service.
type Option func(*Service)

// WithBcryptCost меняет стоимость хэширования паролей.
func WithBcryptCost(cost int) Option {
	return func(s *Service) {
		if cost >= bcrypt.MinCost && cost <= bcrypt.MaxCost {
			s.cost = cost
		}
	}
}

// WithLogger задаёт логгер.
func WithLogger(logger *log.Entry) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService создаёт сервис аутентификации.
func NewService(users domain.UserRepository, tokens domain.TokenRepository, opts ...Option) *Service {
	s := &Service{
		users:  users,
		tokens: tokens,
		cost:   bcrypt.DefaultCost,
		logger: log.New().WithField("component", "auth-service"),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register создаёт пользователя и сразу выдаёт токен.
func (s *Service) Register(ctx context.Context, in RegisterInput) (Session, error) {
	if err := in.validate(); err != nil {
		return Session{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return Session{}, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.users.Create(ctx, domain.User{
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: hash,
	})
	if err != nil {
		if errors.Is(err, domain.ErrEmailTaken) {
			return Session{}, &domain.ValidationError{Field: "email", Err: domain.ErrEmailTaken}
		}
		return Session{}, err
	}

	token, err := s.issue(ctx, user.ID)
	if err != nil {
		return Session{}, err
	}

	s.logger.WithField("user_id", user.ID).Info("User registered")
	return Session{User: user, Token: token}, nil
}

// EnsureUser создаёт пользователя, если email ещё свободен, и не выдаёт токен.
// Второй результат сообщает, был ли пользователь создан.
func (s *Service) EnsureUser(ctx context.Context, in RegisterInput) (domain.User, bool, error) {
	if err := in.validate(); err != nil {
		return domain.User{}, false, err
	}

	existing, err := s.users.GetByEmail(ctx, in.Email)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, domain.ErrUserNotFound) {
		return domain.User{}, false, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return domain.User{}, false, fmt.Errorf("hash password: %w", err)
	}
	user, err := s.users.Create(ctx, domain.User{Name: in.Name, Email: in.Email, PasswordHash: hash})
	if errors.Is(err, domain.ErrEmailTaken) {
		existing, err = s.users.GetByEmail(ctx, in.Email)
		return existing, false, err
	}
	if err != nil {
		return domain.User{}, false, err
	}
	return user, true, nil
}

// Login проверяет пароль, отзывает прежние токены и выдаёт новый.
func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return Session{}, domain.ErrInvalidCredentials
		}
		return Session{}, err
	}
	if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(password)); err != nil {
		return Session{}, domain.ErrInvalidCredentials
	}

	if err := s.tokens.DeleteByUser(ctx, user.ID); err != nil {
		return Session{}, err
	}
	token, err := s.issue(ctx, user.ID)
	if err != nil {
		return Session{}, err
	}

	s.logger.WithField("user_id", user.ID).Info("User logged in")
	return Session{User: user, Token: token}, nil
}

// Logout отзывает предъявленный токен.
func (s *Service) Logout(ctx context.Context, token string) error {
	if err := s.tokens.Delete(ctx, hashToken(token)); err != nil {
		if errors.Is(err, domain.ErrTokenNotFound) {
			return domain.ErrUnauthenticated
		}
		return err
	}
	return nil
}

// Authenticate возвращает владельца токена.
func (s *Service) Authenticate(ctx context.Context, token string) (domain.User, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.User{}, domain.ErrUnauthenticated
	}

	userID, err := s.tokens.UserIDByHash(ctx, hashToken(token))
	if err != nil {
		if errors.Is(err, domain.ErrTokenNotFound) {
			return domain.User{}, domain.ErrUnauthenticated
		}
		return domain.User{}, err
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return domain.User{}, domain.ErrUnauthenticated
		}
		return domain.User{}, err
	}
	return user, nil
}

func (s *Service) issue(ctx context.Context, userID int64) (string, error) {
	raw := make([]byte, tokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	token := hex.EncodeToString(raw)

	if err := s.tokens.Create(ctx, domain.AccessToken{
		Hash:      hashToken(token),
		UserID:    userID,
		CreatedAt: s.now(),
	}); err != nil {
		return "", err
	}
	return token, nil
}

// hashToken: в хранилище попадает только sha256 от токена.
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func (in *RegisterInput) validate() error {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))

	switch {
	case in.Name == "":
		return &domain.ValidationError{Field: "name", Err: domain.ErrUserNameRequired}
	case len(in.Name) > maxNameLen:
		return &domain.ValidationError{Field: "name", Err: domain.ErrFieldTooLong}
	case !validEmail(in.Email):
		return &domain.ValidationError{Field: "email", Err: domain.ErrEmailInvalid}
	case in.Password == "":
		return &domain.ValidationError{Field: "password", Err: domain.ErrPasswordRequired}
	case len(in.Password) < minPasswordLen:
		return &domain.ValidationError{Field: "password", Err: domain.ErrPasswordTooShort}
	case len(in.Password) > maxPasswordLen:
		return &domain.ValidationError{Field: "password", Err: domain.ErrPasswordTooLong}
	case in.Password != in.PasswordConfirmation:
		return &domain.ValidationError{Field: "password", Err: domain.ErrPasswordMismatch}
	}
	return nil
}

func validEmail(email string) bool {
	if email == "" || len(email) > maxNameLen {
		return false
	}
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}
