package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SessionTokenTTL es la vida fija de un token de sesión: exp = iat + 3600s.
const SessionTokenTTL = time.Hour

const defaultIssuer = "blogsphere"

// JWTService emite y valida tokens de sesión HS256.
type JWTService struct {
	secret  []byte
	ttl     time.Duration
	issuer  string
	revoked RevocationStore
	now     func() time.Time
}

// Claims es la forma decodificada del token: {id, username, email, exp}.
type Claims struct {
	UserID   int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	jwt.RegisteredClaims
}

var (
	ErrJWTInvalid     = errors.New("jwt invalid")
	ErrTokenMalformed = errors.New("token malformed")
	ErrTokenSignature = errors.New("token signature invalid")
	ErrTokenExpired   = errors.New("token expired")
	ErrTokenRevoked   = errors.New("token revoked")
)

func NewJWTService(secret string, ttl time.Duration, issuer string) *JWTService {
	if ttl <= 0 {
		ttl = SessionTokenTTL
	}
	if strings.TrimSpace(issuer) == "" {
		issuer = defaultIssuer
	}
	return &JWTService{
		secret: []byte(secret),
		ttl:    ttl,
		issuer: issuer,
		now:    time.Now,
	}
}

// NewJWTServiceWithStore habilita la revocación explícita de tokens.
func NewJWTServiceWithStore(secret string, ttl time.Duration, issuer string, store RevocationStore) *JWTService {
	svc := NewJWTService(secret, ttl, issuer)
	svc.revoked = store
	return svc
}

// WithClock reemplaza el reloj usado para emitir y validar.
func (s *JWTService) WithClock(now func() time.Time) *JWTService {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *JWTService) TTL() time.Duration {
	return s.ttl
}

// Issue firma un token para la identidad dada con expiración now+ttl.
func (s *JWTService) Issue(userID int64, username, email string) (string, error) {
	if len(s.secret) == 0 {
		return "", ErrJWTInvalid
	}
	now := s.now().UTC()
	claims := Claims{
		UserID:   userID,
		Username: username,
		Email:    email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.issuer,
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Verify valida firma, emisor y expiración, y consulta la lista de
// revocación si está configurada.
func (s *JWTService) Verify(ctx context.Context, tokenString string) (Claims, error) {
	if len(s.secret) == 0 {
		return Claims{}, ErrJWTInvalid
	}
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return Claims{}, ErrTokenMalformed
	}
	claims, err := s.parseToken(tokenString)
	if err != nil {
		return Claims{}, err
	}
	if !s.isValidClaims(claims) {
		return Claims{}, ErrTokenMalformed
	}
	if s.revoked != nil && claims.ID != "" {
		revoked, err := s.revoked.IsRevoked(ctx, claims.ID)
		if err != nil {
			return Claims{}, err
		}
		if revoked {
			return Claims{}, ErrTokenRevoked
		}
	}
	return claims, nil
}

// Revoke invalida el token hasta su expiración natural. Sin store es un no-op.
func (s *JWTService) Revoke(ctx context.Context, claims Claims) error {
	if s.revoked == nil || claims.ID == "" {
		return nil
	}
	ttl := s.ttl
	if claims.ExpiresAt != nil {
		ttl = claims.ExpiresAt.Time.Sub(s.now())
	}
	if ttl <= 0 {
		return nil
	}
	return s.revoked.Revoke(ctx, claims.ID, ttl)
}

func (s *JWTService) parseToken(tokenString string) (Claims, error) {
	var claims Claims
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	_, err := parser.ParseWithClaims(tokenString, &claims, func(_ *jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return Claims{}, ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return Claims{}, ErrTokenSignature
		default:
			return Claims{}, ErrTokenMalformed
		}
	}
	return claims, nil
}

func (s *JWTService) isValidClaims(claims Claims) bool {
	if claims.UserID <= 0 {
		return false
	}
	return claims.Subject == strconv.FormatInt(claims.UserID, 10)
}
