package service

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// LoginLimiter limita la frecuencia de intentos de login por clave (email).
type LoginLimiter interface {
	Allow(key string) bool
}

// loginWindow cuenta intentos dentro de una ventana fija que vence en resetAt.
type loginWindow struct {
	count   int
	resetAt time.Time
}

type loginLimiter struct {
	mu        sync.Mutex
	window    time.Duration
	max       int
	now       func() time.Time
	attempts  map[string]*loginWindow
	nextSweep time.Time
}

// NewLoginLimiter crea un limiter en memoria de ventana fija por email.
func NewLoginLimiter(window time.Duration, max int) LoginLimiter {
	return newLoginLimiter(window, max, time.Now)
}

func newLoginLimiter(window time.Duration, max int, now func() time.Time) *loginLimiter {
	if max <= 0 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &loginLimiter{
		window:   window,
		max:      max,
		now:      now,
		attempts: make(map[string]*loginWindow),
	}
}

func (l *loginLimiter) Allow(key string) bool {
	key = normalizeEmail(key)
	if key == "" {
		return false
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()
	l.sweep(now)

	w, ok := l.attempts[key]
	if !ok || !now.Before(w.resetAt) {
		l.attempts[key] = &loginWindow{count: 1, resetAt: now.Add(l.window)}
		return true
	}
	if w.count >= l.max {
		return false
	}
	w.count++
	return true
}

// sweep borra las ventanas vencidas como mucho una vez por ventana, así el
// mapa solo retiene emails con intentos recientes.
func (l *loginLimiter) sweep(now time.Time) {
	if now.Before(l.nextSweep) {
		return
	}
	for key, w := range l.attempts {
		if !now.Before(w.resetAt) {
			delete(l.attempts, key)
		}
	}
	l.nextSweep = now.Add(l.window)
}

// El contador deja de crecer al llegar al máximo y la ventana se reinicia
// si la clave quedó sin TTL.
const redisLoginAllowScript = `
local n = tonumber(redis.call("GET", KEYS[1]) or "0")
if n >= tonumber(ARGV[2]) then
  return 0
end
redis.call("INCR", KEYS[1])
if redis.call("PTTL", KEYS[1]) < 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return 1
`

type redisEvaler interface {
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

type redisLoginLimiter struct {
	logger *zap.Logger
	client redisEvaler
	window time.Duration
	max    int
}

const redisLoginKeyPrefix = "auth:login:rl:"

// NewRedisLoginLimiter comparte el conteo entre instancias. Si Redis falla
// deja pasar el intento y lo registra.
func NewRedisLoginLimiter(logger *zap.Logger, client *redis.Client, window time.Duration, max int) LoginLimiter {
	if client == nil {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if window <= 0 {
		window = time.Minute
	}
	if max <= 0 {
		max = 1
	}
	return &redisLoginLimiter{
		logger: logger,
		client: client,
		window: window,
		max:    max,
	}
}

func (l *redisLoginLimiter) Allow(key string) bool {
	if l == nil || l.client == nil {
		return true
	}
	key = normalizeEmail(key)
	if key == "" {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	allowed, err := l.client.Eval(ctx, redisLoginAllowScript,
		[]string{redisLoginKeyPrefix + key},
		l.window.Milliseconds(), l.max,
	).Int()
	if err != nil {
		if l.logger != nil {
			l.logger.Warn("login limiter unavailable, allowing attempt", zap.Error(err))
		}
		return true
	}
	return allowed == 1
}
