package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"blogsphere/internal/config"
	"blogsphere/internal/db"
	"blogsphere/internal/github"
	apihttp "blogsphere/internal/http"
	"blogsphere/internal/repository"
	"blogsphere/internal/service"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := cfg.NewLogger()
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer pool.Close()

	if cfg.MigrateOnStart {
		if err := db.Migrate(pool); err != nil {
			logger.Fatal("db migrate", zap.Error(err))
		}
	}

	var (
		loginLimiter service.LoginLimiter
		revocations  service.RevocationStore
		redisClient  *redis.Client
	)
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer redisClient.Close()
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := redisClient.Ping(ctxPing).Err(); err != nil {
			logger.Warn("redis ping failed, using in-memory stores", zap.Error(err))
		} else {
			loginLimiter = service.NewRedisLoginLimiter(logger, redisClient, cfg.LoginRateWindow, cfg.LoginRateMax)
			revocations = service.NewRedisRevocationStore(redisClient)
		}
		cancel()
	}
	if loginLimiter == nil {
		loginLimiter = service.NewLoginLimiter(cfg.LoginRateWindow, cfg.LoginRateMax)
	}
	if revocations == nil {
		revocations = service.NewMemoryRevocationStore()
	}

	jwtSvc := service.NewJWTServiceWithStore(cfg.JWTSecret, service.SessionTokenTTL, cfg.JWTIssuer, revocations)

	userRepo := repository.NewPgUserRepository(pool)
	userSvc := service.NewUserService(logger, userRepo, loginLimiter)
	userHandler := apihttp.NewUserHandler(logger, userSvc, jwtSvc)

	var githubHandler *apihttp.GitHubHandler
	if cfg.GitHubEnabled() {
		ghClient := github.NewClient(github.Options{
			ClientID:     cfg.GitHubClientID,
			ClientSecret: cfg.GitHubClientSecret,
			CallbackURL:  cfg.GitHubCallbackURL,
			Timeout:      cfg.GitHubHTTPTimeout,
		})
		githubLogin := service.NewGitHubLoginService(logger, ghClient, userSvc, jwtSvc, cfg.GitHubRequireVerifiedEmail)
		githubHandler = apihttp.NewGitHubHandler(logger, githubLogin, cfg.FrontendURL, cfg.GitHubVerifyState)
		if !cfg.GitHubVerifyState {
			logger.Warn("github oauth state verification disabled")
		}
	} else {
		logger.Warn("github oauth not configured")
	}

	router, err := apihttp.NewRouter(logger, jwtSvc, userHandler, githubHandler, apihttp.RouterOptions{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		TrustedProxies: cfg.TrustedProxies,
		RateLimitRPM:   cfg.RateLimitRPM,
		HealthCheck: func(ctx context.Context) error {
			return db.Ping(ctx, pool)
		},
	})
	if err != nil {
		logger.Fatal("router", zap.Error(err))
	}

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("server shutdown", zap.Error(err))
		}
	}()

	logger.Info("starting server", zap.String("port", cfg.HTTPPort))

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server error", zap.Error(err))
	}
}
