package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"blogsphere/internal/github"
	"blogsphere/internal/service"
)

type mockGitHubProvider struct {
	exchangeErr error
	profile     github.Profile
	emails      []github.Email
	calls       int
}

func (m *mockGitHubProvider) AuthCodeURL(state string) string {
	return "https://github.example/login/oauth/authorize?state=" + url.QueryEscape(state)
}

func (m *mockGitHubProvider) Exchange(_ context.Context, code string) (*oauth2.Token, error) {
	m.calls++
	if m.exchangeErr != nil {
		return nil, m.exchangeErr
	}
	return &oauth2.Token{AccessToken: "gh-" + code}, nil
}

func (m *mockGitHubProvider) FetchProfile(context.Context, *oauth2.Token) (github.Profile, error) {
	return m.profile, nil
}

func (m *mockGitHubProvider) FetchEmails(context.Context, *oauth2.Token) ([]github.Email, error) {
	return m.emails, nil
}

func newGitHubTestRouter(provider *mockGitHubProvider, verifyState bool) (*gin.Engine, *service.JWTService) {
	gin.SetMode(gin.TestMode)
	repo := newMockUserRepo()
	jwtSvc := service.NewJWTService("secret", time.Hour, "")
	userSvc := service.NewUserService(zap.NewNop(), repo, nil)
	loginSvc := service.NewGitHubLoginService(zap.NewNop(), provider, userSvc, jwtSvc, true)
	gh := NewGitHubHandler(zap.NewNop(), loginSvc, "http://localhost:5173", verifyState)
	userH := NewUserHandler(zap.NewNop(), userSvc, jwtSvc)
	return mustRouter(NewRouter(zap.NewNop(), jwtSvc, userH, gh, RouterOptions{RateLimitRPM: 1000})), jwtSvc
}

func githubLogin(t *testing.T, r http.Handler) (string, *http.Cookie) {
	t.Helper()
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/github/login", nil))
	if rec.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d", rec.Code)
	}
	loc, err := url.Parse(rec.Header().Get("Location"))
	if err != nil {
		t.Fatalf("parse location: %v", err)
	}
	state := loc.Query().Get("state")
	if state == "" {
		t.Fatalf("expected state in redirect %q", loc)
	}
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == oauthStateCookie {
			if !ck.HttpOnly {
				t.Fatalf("state cookie must be HttpOnly")
			}
			return state, ck
		}
	}
	t.Fatalf("state cookie not set")
	return "", nil
}

func TestGitHubCallback_Success(t *testing.T) {
	provider := &mockGitHubProvider{
		profile: github.Profile{ID: 1, Login: "octo"},
		emails:  []github.Email{{Email: "octo@x.com", Primary: true, Verified: true}},
	}
	r, jwtSvc := newGitHubTestRouter(provider, true)
	state, cookie := githubLogin(t, r)

	req := httptest.NewRequest(http.MethodGet, "/github/callback?code=abc&state="+url.QueryEscape(state), nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d: %s", rec.Code, rec.Body.String())
	}
	loc, err := url.Parse(rec.Header().Get("Location"))
	if err != nil {
		t.Fatalf("parse location: %v", err)
	}
	if !strings.HasPrefix(loc.String(), "http://localhost:5173/github/callback?") {
		t.Fatalf("unexpected redirect %q", loc)
	}
	q := loc.Query()
	if q.Get("id") != "1" || q.Get("name") != "octo" {
		t.Fatalf("unexpected redirect params %v", q)
	}
	claims, err := jwtSvc.Verify(context.Background(), q.Get("token"))
	if err != nil {
		t.Fatalf("verify token: %v", err)
	}
	if claims.UserID != 1 || claims.Username != "octo" || claims.Email != "octo@x.com" {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestGitHubCallback_StateMismatch(t *testing.T) {
	provider := &mockGitHubProvider{profile: github.Profile{Login: "octo"}}
	r, _ := newGitHubTestRouter(provider, true)
	_, cookie := githubLogin(t, r)

	req := httptest.NewRequest(http.MethodGet, "/github/callback?code=abc&state=forged", nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError || rec.Body.String() != "GitHub Login Failed" {
		t.Fatalf("expected failure page, got %d %q", rec.Code, rec.Body.String())
	}
	if provider.calls != 0 {
		t.Fatalf("exchange must not run on state mismatch")
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/github/callback?code=abc&state=x", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected failure without cookie, got %d", rec.Code)
	}
}

func TestGitHubCallback_Failures(t *testing.T) {
	cases := map[string]*mockGitHubProvider{
		"exchange": {exchangeErr: github.ErrExchange},
		"no verified email": {
			profile: github.Profile{Login: "octo"},
			emails:  []github.Email{{Email: "octo@x.com", Primary: true, Verified: false}},
		},
	}
	for name, provider := range cases {
		t.Run(name, func(t *testing.T) {
			r, _ := newGitHubTestRouter(provider, false)
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/github/callback?code=abc", nil))
			if rec.Code != http.StatusInternalServerError {
				t.Fatalf("expected 500, got %d", rec.Code)
			}
			if rec.Body.String() != "GitHub Login Failed" {
				t.Fatalf("unexpected body %q", rec.Body.String())
			}
			if loc := rec.Header().Get("Location"); loc != "" {
				t.Fatalf("unexpected redirect %q", loc)
			}
		})
	}
}

func TestGitHubFailureStage(t *testing.T) {
	if got := githubFailureStage(errOAuthState); got != "state" {
		t.Fatalf("expected state, got %s", got)
	}
	if got := githubFailureStage(github.ErrUpstream); got != "profile" {
		t.Fatalf("expected profile, got %s", got)
	}
	if got := githubFailureStage(service.ErrNoVerifiedEmail); got != "email" {
		t.Fatalf("expected email, got %s", got)
	}
}

func TestGitHubRoutesAbsentWhenNotConfigured(t *testing.T) {
	api := newTestAPI(nil)
	rec := httptest.NewRecorder()
	api.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/github/login", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
