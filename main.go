package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/paperdesk/paperdesk/handlers"
	"github.com/paperdesk/paperdesk/internal/config"
	"github.com/paperdesk/paperdesk/internal/database"
	"github.com/paperdesk/paperdesk/internal/locks"
	"github.com/paperdesk/paperdesk/internal/paper/handler"
	"github.com/paperdesk/paperdesk/internal/paper/ledger"
	"github.com/paperdesk/paperdesk/internal/paper/repository"
	"github.com/paperdesk/paperdesk/internal/paper/service"
	"github.com/paperdesk/paperdesk/internal/reviews"
	"github.com/paperdesk/paperdesk/internal/sessions"
	"github.com/paperdesk/paperdesk/internal/storage"
	"github.com/paperdesk/paperdesk/internal/tokens"
	"github.com/paperdesk/paperdesk/internal/users"
	"github.com/paperdesk/paperdesk/pkg/logger"
	"github.com/paperdesk/paperdesk/pkg/metrics"
	"github.com/paperdesk/paperdesk/pkg/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
)

var startTime = time.Now()

// app holds the wired dependencies of the server.
type app struct {
	cfg     *config.Config
	router  *gin.Engine
	redis   *redis.Client
	mongo   *mongo.Client
	blobs   *storage.MinIOStorage
	users   *users.Service
	papers  *service.Service
	cleanup []func()
}

func main() {
	// LOG_LEVEL: debug|info|warn|error|fatal
	logger.Init(os.Getenv("LOG_LEVEL"))
	logger.Debugf("startup: LOG_LEVEL=%s", logger.LevelString())

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	logger.Infof("config loaded: mongo=%v redis=%v minio=%v", cfg.MongoDB.URI != "", cfg.Redis.Host != "", cfg.MinIO.Endpoint != "")

	ctx := context.Background()
	a, err := newApp(ctx, cfg)
	if err != nil {
		logger.Fatalf("startup failed: %v", err)
	}
	defer a.close()

	metrics.RegisterCollectors(prometheus.DefaultRegisterer)
	a.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      a.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		logger.Infof("Starting paperdesk on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Infof("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("shutdown: %v", err)
	}
}

// newApp connects the optional backends and builds the router. Redis,
// MongoDB and MinIO are each optional; missing ones fall back to
// in-process implementations.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg}

	if addr := cfg.Redis.Addr(); addr != "" {
		client := redis.NewClient(&redis.Options{Addr: addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Warnf("failed to connect to Redis (%s): %v", addr, err)
			_ = client.Close()
		} else {
			logger.Infof("Connected to Redis: %s", addr)
			a.redis = client
			a.cleanup = append(a.cleanup, func() { _ = client.Close() })
		}
	}

	var (
		paperRepo  repository.Repository = repository.NewMemoryRepo()
		userRepo   users.UserRepository  = users.NewMemoryUserRepository()
		reviewRepo reviews.Repository    = reviews.NewMemoryRepository()
	)
	if cfg.MongoDB.URI != "" {
		client, err := database.ConnectMongoWithRetry(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout, cfg.MongoDB.ConnectAttempts)
		if err != nil {
			return nil, err
		}
		a.mongo = client
		a.cleanup = append(a.cleanup, func() { _ = client.Disconnect(context.Background()) })

		db := client.Database(cfg.MongoDB.Database)
		if paperRepo, err = repository.NewMongoRepo(ctx, db.Collection("papers"), db.Collection("counters")); err != nil {
			return nil, err
		}
		if userRepo, err = users.NewMongoUserRepository(ctx, db.Collection("users")); err != nil {
			return nil, err
		}
		if reviewRepo, err = reviews.NewMongoRepository(ctx, db.Collection("reviews")); err != nil {
			return nil, err
		}
		logger.Infof("Using MongoDB database %s", cfg.MongoDB.Database)
	} else {
		logger.Warnf("MONGODB_URI not set; papers are kept in memory")
	}

	a.users = users.NewService(userRepo)
	accounts := users.BootstrapAccounts(cfg.Users.AdminUsername, cfg.Users.AdminPassword)
	if cfg.Users.SeedFile != "" {
		seeded, err := users.LoadSeedFile(cfg.Users.SeedFile)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, seeded...)
	}
	if len(accounts) == 0 {
		logger.Warnf("no ADMIN_PASSWORD or USERS_SEED_FILE set; only existing accounts can log in")
	}
	if err := a.users.Seed(ctx, accounts); err != nil {
		return nil, err
	}

	opts := service.Options{
		Ledger:     ledger.New(),
		Statuses:   cfg.Papers.Statuses,
		LockWait:   cfg.Papers.LockWait,
		PresignTTL: cfg.MinIO.PresignTTL,

		MaxAttachmentBytes: cfg.Papers.MaxAttachmentBytes,
	}
	if a.redis != nil {
		opts.Locker = locks.NewRedis(a.redis, cfg.Papers.LockTTL)
	}
	if cfg.MinIO.Endpoint != "" {
		blobs, err := storage.NewMinIOStorage(ctx, cfg.MinIO)
		if err != nil {
			logger.Warnf("MinIO unavailable, images are served inline: %v", err)
		} else {
			a.blobs = blobs
			opts.Blobs = blobs
		}
	}
	a.papers = service.New(paperRepo, a.users, reviewRepo, opts)

	var revocations sessions.Revocations = sessions.NewMemoryRevocations()
	if a.redis != nil {
		revocations = sessions.NewRedisRevocations(a.redis, "")
	}

	a.router = a.routes(revocations)
	return a, nil
}

func (a *app) routes(revocations sessions.Revocations) *gin.Engine {
	cfg := a.cfg
	r := gin.New()
	r.Use(middleware.RequestLogger(), gin.Recovery())
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Request-ID")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Content-Length, X-Request-ID")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusOK)
			return
		}
		c.Next()
	})

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "healthy")
	})
	r.GET("/ready", a.ready)
	handlers.RegisterSwagger(r)

	authMW := middleware.AuthMiddleware(tokens.NewHMACVerifier(cfg.JWT.Secret), revocations)
	handlers.NewAuthHandler(cfg, a.users, revocations, a.papers).Register(r, authMW)

	api := r.Group("/", authMW)
	if cfg.RateLimit.Enabled {
		// after auth so the limiter keys on the subject
		if cfg.RateLimit.UseRedis && a.redis != nil {
			win := time.Duration(cfg.RateLimit.WindowSeconds) * time.Second
			api.Use(middleware.RedisRateLimitMiddleware(a.redis, cfg.RateLimit.RPS, cfg.RateLimit.Burst, win))
		} else {
			api.Use(middleware.RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
		}
	}
	handler.RegisterPaperRoutes(api, a.papers, cfg.Server.MaxUploadBytes)
	return r
}

// ready returns 200 only when every configured backend answers.
func (a *app) ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	ready := true
	deps := map[string]bool{}
	if a.cfg.MongoDB.URI != "" {
		deps["mongodb"] = a.mongo != nil && a.mongo.Ping(ctx, nil) == nil
		ready = ready && deps["mongodb"]
	}
	if a.cfg.Redis.Addr() != "" {
		deps["redis"] = a.redis != nil && a.redis.Ping(ctx).Err() == nil
		ready = ready && deps["redis"]
	}
	if a.blobs != nil {
		// blob mirroring is optional; report but do not fail readiness
		deps["minio"] = a.blobs.Ping(ctx) == nil
	}

	status, code := "ready", http.StatusOK
	if !ready {
		status, code = "not_ready", http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{"status": status, "deps": deps, "uptime": time.Since(startTime).String()})
}

func (a *app) close() {
	for i := len(a.cleanup) - 1; i >= 0; i-- {
		a.cleanup[i]()
	}
}
