package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"blogsphere/internal/domain"
	"blogsphere/internal/repository"
)

// UserService coordina reglas de negocio para cuentas locales.
type UserService struct {
	logger  *zap.Logger
	users   repository.UserRepository
	limiter LoginLimiter
}

func NewUserService(logger *zap.Logger, users repository.UserRepository, limiter LoginLimiter) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{
		logger:  logger,
		users:   users,
		limiter: limiter,
	}
}

var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrUserExists      = errors.New("user already exists")
	ErrUserNotFound    = errors.New("user not found")
	ErrInvalidPassword = errors.New("invalid password")
	ErrEmailInUse      = errors.New("email already in use by another user")
	ErrRateLimited     = errors.New("rate limited")
	errNotConfigured   = errors.New("user service not configured")
)

// SignUp registra una cuenta local con contraseña.
func (s *UserService) SignUp(ctx context.Context, username, emailAddr, password string) (domain.User, error) {
	if s.users == nil {
		return domain.User{}, errNotConfigured
	}

	username = strings.TrimSpace(username)
	emailAddr = normalizeEmail(emailAddr)
	if username == "" || emailAddr == "" || password == "" {
		return domain.User{}, ErrInvalidInput
	}

	_, err := s.users.GetByEmail(ctx, emailAddr)
	if err == nil {
		return domain.User{}, ErrUserExists
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, fmt.Errorf("lookup user by email: %w", err)
	}

	hash, err := HashPassword(password)
	if err != nil {
		if errors.Is(err, ErrPasswordTooLong) {
			return domain.User{}, ErrInvalidInput
		}
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}

	user := domain.User{
		Username:     username,
		Email:        emailAddr,
		PasswordHash: hash,
	}
	id, err := s.users.Create(ctx, user)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return domain.User{}, ErrUserExists
		}
		return domain.User{}, fmt.Errorf("create user: %w", err)
	}
	user.ID = id
	return user, nil
}

// Authenticate valida email y contraseña. Distingue usuario inexistente de
// contraseña incorrecta, igual que el endpoint /signin histórico.
func (s *UserService) Authenticate(ctx context.Context, emailAddr, password string) (domain.User, error) {
	if s.users == nil {
		return domain.User{}, errNotConfigured
	}

	emailAddr = normalizeEmail(emailAddr)
	if emailAddr == "" || password == "" {
		return domain.User{}, ErrInvalidInput
	}
	if s.limiter != nil && !s.limiter.Allow(emailAddr) {
		return domain.User{}, ErrRateLimited
	}

	user, err := s.users.GetByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, ErrUserNotFound
		}
		return domain.User{}, fmt.Errorf("lookup user by email: %w", err)
	}
	if !CheckPassword(password, user.PasswordHash) {
		return domain.User{}, ErrInvalidPassword
	}
	return user, nil
}

func (s *UserService) GetUser(ctx context.Context, id int64) (domain.User, error) {
	if s.users == nil {
		return domain.User{}, errNotConfigured
	}
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, ErrUserNotFound
		}
		return domain.User{}, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

type UpdateProfileInput struct {
	Username        string
	Email           string
	CurrentPassword string
	NewPassword     string
}

// UpdateProfile cambia username/email y, si se piden ambas contraseñas, la
// contraseña. Los tokens ya emitidos siguen siendo válidos.
func (s *UserService) UpdateProfile(ctx context.Context, id int64, input UpdateProfileInput) error {
	if s.users == nil {
		return errNotConfigured
	}

	username := strings.TrimSpace(input.Username)
	emailAddr := normalizeEmail(input.Email)
	if username == "" || emailAddr == "" {
		return ErrInvalidInput
	}

	taken, err := s.users.EmailTakenByOther(ctx, emailAddr, id)
	if err != nil {
		return fmt.Errorf("check email: %w", err)
	}
	if taken {
		return ErrEmailInUse
	}

	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrUserNotFound
		}
		return fmt.Errorf("get user: %w", err)
	}

	if input.CurrentPassword != "" && input.NewPassword != "" {
		if !CheckPassword(input.CurrentPassword, user.PasswordHash) {
			return ErrInvalidPassword
		}
		hash, err := HashPassword(input.NewPassword)
		if err != nil {
			if errors.Is(err, ErrPasswordTooLong) {
				return ErrInvalidInput
			}
			return fmt.Errorf("hash password: %w", err)
		}
		err = s.users.UpdateProfileAndPassword(ctx, id, username, emailAddr, hash)
		return s.mapUpdateError(err)
	}

	return s.mapUpdateError(s.users.UpdateProfile(ctx, id, username, emailAddr))
}

func (s *UserService) mapUpdateError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, pgx.ErrNoRows):
		return ErrUserNotFound
	case errors.Is(err, repository.ErrDuplicateEmail):
		return ErrEmailInUse
	default:
		return fmt.Errorf("update user: %w", err)
	}
}

// ResolveOAuthUser devuelve la cuenta asociada al email o crea una nueva sin
// contraseña local. Con email vacío siempre crea una cuenta nueva.
func (s *UserService) ResolveOAuthUser(ctx context.Context, login, emailAddr string) (domain.User, error) {
	if s.users == nil {
		return domain.User{}, errNotConfigured
	}

	login = strings.TrimSpace(login)
	emailAddr = normalizeEmail(emailAddr)

	if emailAddr != "" {
		existing, err := s.users.GetByEmail(ctx, emailAddr)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, fmt.Errorf("lookup user by email: %w", err)
		}
	}

	user := domain.User{
		Username:     login,
		Email:        emailAddr,
		PasswordHash: domain.OAuthPasswordSentinel,
	}
	id, err := s.users.Create(ctx, user)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			// Otra petición creó la cuenta entre la búsqueda y el insert.
			return s.users.GetByEmail(ctx, emailAddr)
		}
		return domain.User{}, fmt.Errorf("create oauth user: %w", err)
	}
	user.ID = id
	s.logger.Info("oauth account created", zap.Int64("user_id", id), zap.String("login", login))
	return user, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
