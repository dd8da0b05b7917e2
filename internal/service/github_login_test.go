package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"blogsphere/internal/domain"
	"blogsphere/internal/github"
)

type fakeGitHubProvider struct {
	exchangeErr error
	profileErr  error
	emailsErr   error
	profile     github.Profile
	emails      []github.Email
	calls       []string
}

func (f *fakeGitHubProvider) AuthCodeURL(state string) string {
	return "https://github.com/login/oauth/authorize?client_id=id&scope=user&state=" + state
}

func (f *fakeGitHubProvider) Exchange(_ context.Context, code string) (*oauth2.Token, error) {
	f.calls = append(f.calls, "exchange")
	if f.exchangeErr != nil {
		return nil, f.exchangeErr
	}
	return &oauth2.Token{AccessToken: "gho_" + code}, nil
}

func (f *fakeGitHubProvider) FetchProfile(_ context.Context, _ *oauth2.Token) (github.Profile, error) {
	f.calls = append(f.calls, "profile")
	return f.profile, f.profileErr
}

func (f *fakeGitHubProvider) FetchEmails(_ context.Context, _ *oauth2.Token) ([]github.Email, error) {
	f.calls = append(f.calls, "emails")
	return f.emails, f.emailsErr
}

func newGitHubLoginFixture(provider *fakeGitHubProvider, requireVerified bool) (*GitHubLoginService, *fakeUserRepo, *JWTService) {
	repo := newFakeUserRepo()
	users := NewUserService(zap.NewNop(), repo, nil)
	jwtSvc := NewJWTService("secret", time.Hour, "")
	return NewGitHubLoginService(zap.NewNop(), provider, users, jwtSvc, requireVerified), repo, jwtSvc
}

func TestGitHubLogin_CreatesAccount(t *testing.T) {
	provider := &fakeGitHubProvider{
		profile: github.Profile{Login: "octocat"},
		emails:  []github.Email{{Email: "octo@x.com", Primary: true, Verified: true}},
	}
	svc, repo, jwtSvc := newGitHubLoginFixture(provider, true)
	ctx := context.Background()

	res, err := svc.Complete(ctx, "code-1")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if res.Login != "octocat" || res.User.ID == 0 {
		t.Fatalf("unexpected result: %+v", res)
	}
	stored, err := repo.GetByEmail(ctx, "octo@x.com")
	if err != nil {
		t.Fatalf("expected account stored: %v", err)
	}
	if stored.PasswordHash != domain.OAuthPasswordSentinel || stored.Username != "octocat" {
		t.Fatalf("unexpected stored account: %+v", stored)
	}

	claims, err := jwtSvc.Verify(ctx, res.Token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.UserID != stored.ID || claims.Username != "octocat" || claims.Email != "octo@x.com" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestGitHubLogin_ReusesExistingAccount(t *testing.T) {
	provider := &fakeGitHubProvider{
		profile: github.Profile{Login: "alice-gh"},
		emails:  []github.Email{{Email: "a@x.com", Primary: true, Verified: true}},
	}
	svc, _, _ := newGitHubLoginFixture(provider, true)
	ctx := context.Background()

	local, err := svc.users.SignUp(ctx, "alice", "a@x.com", "pw1")
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	res, err := svc.Complete(ctx, "code-1")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if res.User.ID != local.ID {
		t.Fatalf("expected existing account %d, got %d", local.ID, res.User.ID)
	}
	if _, err := svc.users.Authenticate(ctx, "a@x.com", "pw1"); err != nil {
		t.Fatalf("expected local password untouched, got %v", err)
	}
}

func TestGitHubLogin_NoVerifiedEmailFailsClosed(t *testing.T) {
	provider := &fakeGitHubProvider{
		profile: github.Profile{Login: "octocat"},
		emails:  []github.Email{{Email: "octo@x.com", Primary: true, Verified: false}},
	}
	svc, repo, _ := newGitHubLoginFixture(provider, true)

	if _, err := svc.Complete(context.Background(), "code-1"); !errors.Is(err, ErrNoVerifiedEmail) {
		t.Fatalf("expected ErrNoVerifiedEmail, got %v", err)
	}
	if len(repo.byID) != 0 {
		t.Fatalf("expected no account created, got %d", len(repo.byID))
	}
}

func TestGitHubLogin_NoVerifiedEmailLegacyMode(t *testing.T) {
	provider := &fakeGitHubProvider{
		profile: github.Profile{Login: "octocat"},
		emails:  nil,
	}
	svc, repo, jwtSvc := newGitHubLoginFixture(provider, false)
	ctx := context.Background()

	res, err := svc.Complete(ctx, "code-1")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if res.User.Email != "" {
		t.Fatalf("expected account without email, got %q", res.User.Email)
	}
	claims, err := jwtSvc.Verify(ctx, res.Token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Email != "" {
		t.Fatalf("expected empty email claim, got %q", claims.Email)
	}

	// Sin email no hay con qué enlazar: cada login crea una cuenta nueva.
	if _, err := svc.Complete(ctx, "code-2"); err != nil {
		t.Fatalf("second complete: %v", err)
	}
	if len(repo.byID) != 2 {
		t.Fatalf("expected two accounts, got %d", len(repo.byID))
	}
}

func TestGitHubLogin_ProviderFailures(t *testing.T) {
	tests := []struct {
		name      string
		provider  *fakeGitHubProvider
		wantErr   error
		wantCalls int
	}{
		{
			name:      "exchange rejected",
			provider:  &fakeGitHubProvider{exchangeErr: github.ErrExchange},
			wantErr:   github.ErrExchange,
			wantCalls: 1,
		},
		{
			name:      "profile fails",
			provider:  &fakeGitHubProvider{profileErr: github.ErrUpstream},
			wantErr:   github.ErrUpstream,
			wantCalls: 2,
		},
		{
			name: "emails fail",
			provider: &fakeGitHubProvider{
				profile:   github.Profile{Login: "octocat"},
				emailsErr: github.ErrUpstream,
			},
			wantErr:   github.ErrUpstream,
			wantCalls: 3,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo, _ := newGitHubLoginFixture(tt.provider, true)
			if _, err := svc.Complete(context.Background(), "code"); !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if len(tt.provider.calls) != tt.wantCalls {
				t.Fatalf("expected %d provider calls without retries, got %v", tt.wantCalls, tt.provider.calls)
			}
			if len(repo.byID) != 0 {
				t.Fatalf("expected no account created")
			}
		})
	}
}

func TestGitHubLogin_TokenEmailMatchesStoredAccount(t *testing.T) {
	provider := &fakeGitHubProvider{
		profile: github.Profile{Login: "octocat"},
		emails:  []github.Email{{Email: "Octo@X.com", Primary: true, Verified: true}},
	}
	svc, repo, jwtSvc := newGitHubLoginFixture(provider, true)
	ctx := context.Background()

	res, err := svc.Complete(ctx, "code-1")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	stored, err := repo.GetByEmail(ctx, "octo@x.com")
	if err != nil {
		t.Fatalf("expected normalized account stored: %v", err)
	}
	claims, err := jwtSvc.Verify(ctx, res.Token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Email != stored.Email {
		t.Fatalf("expected email claim %q, got %q", stored.Email, claims.Email)
	}
}
