package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"blogsphere/internal/domain"
	"blogsphere/internal/github"
)

// GitHubProvider abstrae el cliente de GitHub para poder simularlo en tests.
type GitHubProvider interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	FetchProfile(ctx context.Context, token *oauth2.Token) (github.Profile, error)
	FetchEmails(ctx context.Context, token *oauth2.Token) ([]github.Email, error)
}

var ErrNoVerifiedEmail = errors.New("github account has no primary verified email")

// GitHubLoginResult es lo que necesita el redirect final al frontend.
type GitHubLoginResult struct {
	Token string
	User  domain.User
	Login string
}

// GitHubLoginService resuelve un code de GitHub en una cuenta local y un token.
type GitHubLoginService struct {
	logger               *zap.Logger
	provider             GitHubProvider
	users                *UserService
	jwt                  *JWTService
	requireVerifiedEmail bool
}

func NewGitHubLoginService(logger *zap.Logger, provider GitHubProvider, users *UserService, jwtSvc *JWTService, requireVerifiedEmail bool) *GitHubLoginService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GitHubLoginService{
		logger:               logger,
		provider:             provider,
		users:                users,
		jwt:                  jwtSvc,
		requireVerifiedEmail: requireVerifiedEmail,
	}
}

func (s *GitHubLoginService) AuthCodeURL(state string) string {
	return s.provider.AuthCodeURL(state)
}

// Complete ejecuta el callback: exchange, perfil, emails, cuenta local y
// token. La cuenta se crea en el último paso que muta estado.
func (s *GitHubLoginService) Complete(ctx context.Context, code string) (GitHubLoginResult, error) {
	if s.provider == nil || s.users == nil || s.jwt == nil {
		return GitHubLoginResult{}, errors.New("github login not configured")
	}

	providerToken, err := s.provider.Exchange(ctx, code)
	if err != nil {
		return GitHubLoginResult{}, err
	}

	profile, err := s.provider.FetchProfile(ctx, providerToken)
	if err != nil {
		return GitHubLoginResult{}, err
	}
	emails, err := s.provider.FetchEmails(ctx, providerToken)
	if err != nil {
		return GitHubLoginResult{}, err
	}

	emailAddr, ok := github.PrimaryVerifiedEmail(emails)
	if !ok {
		if s.requireVerifiedEmail {
			return GitHubLoginResult{}, ErrNoVerifiedEmail
		}
		s.logger.Warn("github login without primary verified email",
			zap.String("login", profile.Login),
		)
	}

	user, err := s.users.ResolveOAuthUser(ctx, profile.Login, emailAddr)
	if err != nil {
		return GitHubLoginResult{}, fmt.Errorf("resolve github user: %w", err)
	}

	// El token lleva el login de GitHub como username, aunque la cuenta
	// local tenga otro nombre.
	token, err := s.jwt.Issue(user.ID, profile.Login, user.Email)
	if err != nil {
		return GitHubLoginResult{}, fmt.Errorf("issue token: %w", err)
	}

	return GitHubLoginResult{
		Token: token,
		User:  user,
		Login: profile.Login,
	}, nil
}
