// internal/app/server.go
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"vowlist-service/internal/billing/stripe"
	"vowlist-service/internal/config"
	"vowlist-service/internal/db"
	claimHandler "vowlist-service/internal/handlers/claim"
	providerHandler "vowlist-service/internal/handlers/provider"
	subscriptionHandler "vowlist-service/internal/handlers/subscription"
	webhookHandler "vowlist-service/internal/handlers/webhook"
	wsHandler "vowlist-service/internal/handlers/websocket"
	"vowlist-service/internal/middleware"
	"vowlist-service/internal/pkg/jwt"
	"vowlist-service/internal/pkg/lock"
	"vowlist-service/internal/pkg/session"
	"vowlist-service/internal/repository/postgres"
	authUsecase "vowlist-service/internal/service/auth"
	boostUsecase "vowlist-service/internal/service/boost"
	claimUsecase "vowlist-service/internal/service/claim"
	"vowlist-service/internal/service/email"
	subscriptionUsecase "vowlist-service/internal/service/subscription"
	"vowlist-service/internal/websocket"
	wsHandlers "vowlist-service/internal/websocket/handler"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Server struct {
	cfg    config.AppConfig
	engine *gin.Engine
	logger *zap.Logger
}

func NewServer(cfg config.AppConfig, logger *zap.Logger) *Server {
	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	return &Server{cfg: cfg, engine: gin.New(), logger: logger}
}

// NewLogger builds the process logger; development config when APP_ENV=development.
func NewLogger(cfg config.AppConfig) (*zap.Logger, error) {
	if cfg.IsDevelopment() {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// Start wires dependencies and serves HTTP until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	logger := s.logger

	// ----- PostgreSQL -----
	pool, err := db.ConnectDB(ctx, db.PostgresConfig{
		URL:             s.cfg.DatabaseURL,
		MaxConns:        s.cfg.DBMaxConns,
		MaxConnLifetime: time.Hour,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	defer pool.Close()
	logger.Info("connected to postgres")

	// ----- Redis -----
	redisClient, err := db.NewRedisClient(ctx, db.RedisConfig{
		Addr:     s.cfg.RedisAddr,
		Password: s.cfg.RedisPass,
		DB:       s.cfg.RedisDB,
		PoolSize: 10,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	defer redisClient.Close()
	logger.Info("connected to redis", zap.String("addr", s.cfg.RedisAddr))

	// ----- JWT -----
	jwtManager, err := jwt.LoadAndBuild(s.cfg.JWT)
	if err != nil {
		return fmt.Errorf("failed to load JWT keys: %w", err)
	}

	// ----- Redis helpers -----
	blacklist := session.NewBlacklist(redisClient)
	rateLimiter := session.NewRateLimiter(redisClient)
	locker := lock.NewLocker(redisClient, s.cfg.ReconcileLockTTL, s.cfg.ReconcileLockWait)

	// ----- Email -----
	emailSender := email.NewEmailSender(
		s.cfg.SMTPHost,
		s.cfg.SMTPPort,
		s.cfg.SMTPUser,
		s.cfg.SMTPPass,
		s.cfg.SMTPFromName,
		s.cfg.SMTPSecure,
	)
	emailHelper := email.NewHelper(emailSender, logger, s.cfg.AppBaseURL)

	// ----- Billing -----
	if s.cfg.StripeSecretKey == "" {
		logger.Warn("STRIPE_SECRET_KEY not set, billing calls will fail")
	}
	billingClient := stripe.NewClient(s.cfg.StripeSecretKey, s.cfg.StripeWebhookSecret, nil, logger)

	// ----- Repositories -----
	subscriptionRepo := postgres.NewSubscriptionRepository(pool)
	providerRepo := postgres.NewProviderRepository(pool)
	claimRepo := postgres.NewClaimRepository(pool)
	userRepo := postgres.NewUserRepository(pool)

	// ----- Services (Usecases) -----
	authService := authUsecase.NewAuthService(jwtManager.Verifier, blacklist, logger)

	hub := websocket.NewHub(authService, logger)

	reconciler := subscriptionUsecase.NewReconciler(subscriptionRepo, userRepo, billingClient, locker, logger)
	subscriptionService := subscriptionUsecase.NewSubscriptionService(
		reconciler,
		subscriptionRepo,
		userRepo,
		providerRepo,
		billingClient,
		rateLimiter,
		locker,
		hub,
		emailHelper,
		subscriptionUsecase.Config{
			Plans:      s.cfg.BoostPlans,
			SuccessURL: s.cfg.CheckoutSuccessURL,
			CancelURL:  s.cfg.CheckoutCancelURL,
			SyncLimit:  s.cfg.SyncRateLimit,
			SyncWindow: s.cfg.SyncRateWindow,
		},
		logger,
	)
	boostService := boostUsecase.NewBoostService(providerRepo, subscriptionRepo, hub, logger)
	claimService := claimUsecase.NewClaimService(claimRepo, providerRepo, userRepo, hub, emailHelper, logger)

	// ----- WebSocket Hub -----
	hub.RegisterHandler(wsHandlers.NewEntitlementHandler(subscriptionService))
	go hub.Run(ctx)

	// ----- Handlers -----
	handlers := &Handlers{
		SubscriptionHandler: subscriptionHandler.NewSubscriptionHandler(subscriptionService),
		ProviderHandler:     providerHandler.NewProviderHandler(boostService),
		ClaimHandler:        claimHandler.NewClaimHandler(claimService),
		WebhookHandler:      webhookHandler.NewStripeWebhookHandler(billingClient, subscriptionService, logger),
		WSHandler:           wsHandler.NewWebSocketHandler(hub, s.cfg.AllowedOrigins, logger),
		AuthMiddleware:      middleware.NewAuthMiddleware(authService),
	}

	// ----- Middlewares -----
	s.engine.Use(
		middleware.RequestLogger(logger),
		middleware.RecoveryMiddleware(logger),
		middleware.CORS(s.cfg.AllowedOrigins),
	)

	// ----- Router -----
	SetupRouter(s.engine, handlers)

	// ----- Start HTTP -----
	srv := &http.Server{
		Addr:              s.cfg.HTTPAddr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server running", zap.String("addr", s.cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}
