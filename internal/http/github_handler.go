package http

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"blogsphere/internal/github"
	"blogsphere/internal/service"
)

const (
	oauthStateCookie = "oauth_state"
	oauthStateMaxAge = 600
)

var errOAuthState = errors.New("oauth state mismatch")

// GitHubHandler expone el login con GitHub.
type GitHubHandler struct {
	logger       *zap.Logger
	loginServ    *service.GitHubLoginService
	frontendURL  string
	verifyState  bool
	secureCookie bool
}

func NewGitHubHandler(logger *zap.Logger, loginServ *service.GitHubLoginService, frontendURL string, verifyState bool) *GitHubHandler {
	u, err := url.Parse(frontendURL)
	secure := err == nil && u.Scheme == "https"
	return &GitHubHandler{
		logger:       logger,
		loginServ:    loginServ,
		frontendURL:  frontendURL,
		verifyState:  verifyState,
		secureCookie: secure,
	}
}

// Login maneja GET /github/login: redirige a la página de autorización.
func (h *GitHubHandler) Login(c *gin.Context) {
	state := uuid.NewString()
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(oauthStateCookie, state, oauthStateMaxAge, "/github", "", h.secureCookie, true)
	c.Redirect(http.StatusFound, h.loginServ.AuthCodeURL(state))
}

// Callback maneja GET /github/callback?code=&state=.
func (h *GitHubHandler) Callback(c *gin.Context) {
	if h.verifyState {
		cookieState, _ := c.Cookie(oauthStateCookie)
		c.SetCookie(oauthStateCookie, "", -1, "/github", "", h.secureCookie, true)
		if !sameState(cookieState, c.Query("state")) {
			h.fail(c, errOAuthState)
			return
		}
	}

	res, err := h.loginServ.Complete(c.Request.Context(), c.Query("code"))
	if err != nil {
		h.fail(c, err)
		return
	}

	q := url.Values{}
	q.Set("token", res.Token)
	q.Set("id", strconv.FormatInt(res.User.ID, 10))
	q.Set("name", res.Login)
	c.Redirect(http.StatusFound, h.frontendURL+"/github/callback?"+q.Encode())
}

func (h *GitHubHandler) fail(c *gin.Context, err error) {
	h.logger.Error("github login failed",
		zap.String("stage", githubFailureStage(err)),
		zap.Error(err),
	)
	c.String(http.StatusInternalServerError, "GitHub Login Failed")
}

func sameState(cookie, query string) bool {
	if cookie == "" || query == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(cookie), []byte(query)) == 1
}

func githubFailureStage(err error) string {
	switch {
	case errors.Is(err, errOAuthState):
		return "state"
	case errors.Is(err, github.ErrExchange):
		return "exchange"
	case errors.Is(err, github.ErrUpstream):
		return "profile"
	case errors.Is(err, service.ErrNoVerifiedEmail):
		return "email"
	default:
		return "account"
	}
}
