package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/client-portal-api/api/swagger"
	"github.com/noah-isme/client-portal-api/internal/handler"
	"github.com/noah-isme/client-portal-api/internal/identity"
	"github.com/noah-isme/client-portal-api/internal/middleware"
	"github.com/noah-isme/client-portal-api/internal/realtime"
	"github.com/noah-isme/client-portal-api/internal/repository"
	"github.com/noah-isme/client-portal-api/internal/service"
	"github.com/noah-isme/client-portal-api/pkg/cache"
	"github.com/noah-isme/client-portal-api/pkg/config"
	"github.com/noah-isme/client-portal-api/pkg/database"
	"github.com/noah-isme/client-portal-api/pkg/errlog"
	"github.com/noah-isme/client-portal-api/pkg/jobs"
	"github.com/noah-isme/client-portal-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/client-portal-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/client-portal-api/pkg/middleware/requestid"
	"github.com/noah-isme/client-portal-api/pkg/ratelimit"
	"github.com/noah-isme/client-portal-api/pkg/storage"
)

// @title Client Portal API
// @version 1.0.0
// @description File sharing, messaging and news for clients and their users
// @BasePath /api/v1
// @schemes http https

const cacheTTL = 5 * time.Minute

func main() {
	migrateOnly := flag.Bool("migrate-only", false, "apply database migrations and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	if cfg.Database.AutoMigrate || *migrateOnly {
		if err := database.Migrate(db, logr); err != nil {
			logr.Fatal("failed to apply migrations", zap.Error(err))
		}
	}
	if *migrateOnly {
		return
	}

	var redisClient redis.UniversalClient
	if rc, err := cache.NewRedis(ctx, cfg.Redis); err != nil {
		logr.Warn("redis unavailable; caching, shared rate limits and the redis change feed are disabled", zap.Error(err))
	} else if rc != nil {
		redisClient = rc
		defer rc.Close()
	}

	metrics := service.NewMetricsService()
	ring := errlog.NewRing(cfg.ErrorLog.Capacity)
	validate := validator.New()

	profileRepo := repository.NewProfileRepository(db)
	tokenRepo := repository.NewTokenRepository(db)
	clientRepo := repository.NewClientRepository(db)
	fileRepo := repository.NewFileRepository(db)
	accessRepo := repository.NewAccessLogRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	newsRepo := repository.NewNewsRepository(db)
	statsRepo := repository.NewStatsRepository(db)

	cacheSvc := service.NewCacheService(repository.NewCacheRepository(redisClient, logr), metrics, cacheTTL, logr, redisClient != nil)

	mux := jobs.NewMux()
	queue := jobs.NewQueue("side-effects", mux.Dispatch, jobs.QueueConfig{
		Workers:    cfg.Queue.Workers,
		BufferSize: cfg.Queue.BufferSize,
		MaxRetries: cfg.Queue.MaxRetries,
		RetryDelay: cfg.Queue.RetryDelay,
		Logger:     logr,
	})
	recorder := service.NewAccessRecorder(queue, accessRepo, logr)
	mux.Handle(service.JobTypeFileAccess, recorder.Handle)
	queue.Start(ctx)
	defer queue.Stop()

	var limiter ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		if redisClient != nil {
			limiter = ratelimit.NewRedisLimiter(redisClient, "portal:ratelimit")
		} else {
			limiter = ratelimit.NewMemoryLimiter(nil)
		}
	}
	guard := service.NewRateGuard(limiter, service.RateLimits{
		Uploads:   cfg.RateLimit.Uploads,
		Downloads: cfg.RateLimit.Downloads,
		Deletes:   cfg.RateLimit.Deletes,
		Window:    cfg.RateLimit.Window,
	}, metrics, logr)

	store, blobs, err := newObjectStore(ctx, cfg)
	if err != nil {
		logr.Fatal("failed to init object storage", zap.Error(err))
	}

	var hub realtime.Hub
	var publisher service.ChangePublisher
	if cfg.Realtime.Enabled {
		if redisClient != nil {
			hub = realtime.NewRedisHub(redisClient, metrics, logr)
		} else {
			hub = realtime.NewLocalHub(metrics)
		}
		publisher = hub
	}

	authSvc := service.NewAuthService(profileRepo, tokenRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
	})
	profileSvc := service.NewProfileService(profileRepo, tokenRepo, validate, logr).WithCache(cacheSvc)
	clientSvc := service.NewClientService(clientRepo, profileRepo, validate, logr)
	fileSvc := service.NewFileService(
		fileRepo, profileRepo, accessRepo, store,
		service.NewFileValidator(cfg.Files.MaxFileSizeBytes, cfg.Files.AllowedMIMEs),
		service.NewURLCache(service.URLCacheConfig{
			Size: cfg.Files.URLCacheSize,
			TTL:  cfg.Files.SignedURLTTL,
			Skew: cfg.Files.URLCacheSkew,
		}, nil),
		recorder, guard, publisher, metrics, logr,
		service.FileServiceConfig{URLTTL: cfg.Files.SignedURLTTL},
	)
	messageSvc := service.NewMessageService(messageRepo, profileRepo, publisher, validate, logr)
	newsSvc := service.NewNewsService(newsRepo, publisher, validate, logr)
	statsSvc := service.NewStatsService(statsRepo, cacheSvc, ring, time.Minute, logr)
	reportSvc := service.NewReportService(accessRepo, logr)

	chain := identity.Chain{identity.NewTokenProvider(authSvc)}
	platform, err := newPlatformProvider(ctx, cfg, profileRepo, logr)
	if err != nil {
		logr.Fatal("failed to init platform session verification", zap.Error(err))
	}
	if platform != nil {
		chain = append(chain, platform)
	}
	resolver := identity.NewResolver(chain, authSvc, cacheSvc, metrics, logr)
	cookies := middleware.CookieConfig{Domain: cfg.JWT.CookieDomain, Secure: cfg.JWT.CookieSecure}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(reqidmiddleware.Middleware())
	r.Use(middleware.Recovery(ring, logr))
	r.Use(middleware.ErrorCapture(ring, logr))
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))
	r.Use(middleware.WithResponseMeta())

	ops := handler.NewMetricsHandler(metrics, db)
	r.GET("/health", ops.Health)
	r.GET("/ready", ops.Ready)
	r.GET("/metrics", ops.Prometheus)
	r.GET("/metrics/snapshot", ops.Snapshot)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	h := handler.Handlers{
		Auth:     handler.NewAuthHandler(authSvc, resolver, cookies),
		Profiles: handler.NewProfileHandler(profileSvc),
		Clients:  handler.NewClientHandler(clientSvc),
		Files:    handler.NewFileHandler(fileSvc, nil, cfg.Files.MaxFileSizeBytes),
		Messages: handler.NewMessageHandler(messageSvc),
		News:     handler.NewNewsHandler(newsSvc),
		Admin:    handler.NewAdminHandler(statsSvc, reportSvc),
	}
	if blobs != nil {
		h.Files = handler.NewFileHandler(fileSvc, blobs, cfg.Files.MaxFileSizeBytes)
	}
	if hub != nil {
		h.Stream = handler.NewStreamHandler(hub, cfg.Realtime.Debounce, logr)
	}
	handler.Register(r.Group(cfg.APIPrefix), h, middleware.Identity(resolver, cookies))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logr.Info("server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("server shutdown error", zap.Error(err))
	}
	stop()
}

// newObjectStore returns the configured backend. blobs is non-nil only for the local
// backend, whose signed URLs point back at this server.
func newObjectStore(ctx context.Context, cfg *config.Config) (storage.ObjectStore, *storage.LocalObjectStore, error) {
	switch cfg.Files.StorageBackend {
	case config.StorageBackendS3:
		store, err := storage.NewS3Store(ctx, storage.S3Options{
			Bucket:          cfg.Files.S3Bucket,
			Region:          cfg.Files.S3Region,
			Endpoint:        cfg.Files.S3Endpoint,
			AccessKeyID:     cfg.Files.S3AccessKeyID,
			SecretAccessKey: cfg.Files.S3SecretKey,
			MaxAttempts:     cfg.Files.S3MaxAttempts,
			DefaultTTL:      cfg.Files.SignedURLTTL,
		})
		if err != nil {
			return nil, nil, err
		}
		return store, nil, nil
	case config.StorageBackendLocal, "":
		files, err := storage.NewLocalStorage(cfg.Files.StorageDir)
		if err != nil {
			return nil, nil, err
		}
		signer := storage.NewSignedURLSigner(cfg.Files.SignedURLSecret, cfg.Files.SignedURLTTL)
		local := storage.NewLocalObjectStore(files, signer, cfg.APIPrefix+"/files/blob")
		return local, local, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Files.StorageBackend)
	}
}

// newPlatformProvider returns nil when no platform verification material is configured.
func newPlatformProvider(ctx context.Context, cfg *config.Config, profiles *repository.ProfileRepository, logr *zap.Logger) (*identity.PlatformProvider, error) {
	if cfg.Platform.JWKSURL == "" && cfg.Platform.Secret == "" {
		logr.Info("platform sessions disabled; only app tokens are accepted")
		return nil, nil
	}
	var kf keyfunc.Keyfunc
	if cfg.Platform.JWKSURL != "" {
		var err error
		kf, err = identity.NewJWKSKeyfunc(ctx, cfg.Platform.JWKSURL, cfg.Platform.RefreshInterval, logr)
		if err != nil {
			return nil, err
		}
	}
	return identity.NewPlatformProvider(profiles, identity.PlatformConfig{
		Keyfunc:        kf,
		Secret:         cfg.Platform.Secret,
		Issuer:         cfg.Platform.Issuer,
		Audience:       cfg.Platform.Audience,
		ProfileRetries: cfg.Identity.ProfileRetries,
		RetryBackoff:   cfg.Identity.ProfileRetryBackoff,
		LoadTimeout:    cfg.Identity.ProfileLoadTimeout,
	}, logr)
}
