package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/AnshRaj112/somnia-backend/internal/config"
	"github.com/AnshRaj112/somnia-backend/internal/database"
	"github.com/AnshRaj112/somnia-backend/internal/handlers"
	"github.com/AnshRaj112/somnia-backend/internal/logging"
	"github.com/AnshRaj112/somnia-backend/internal/middleware"
	"github.com/AnshRaj112/somnia-backend/internal/otp"
	"github.com/AnshRaj112/somnia-backend/internal/repository"
	"github.com/AnshRaj112/somnia-backend/internal/routes"
	"github.com/AnshRaj112/somnia-backend/internal/services"
	"github.com/AnshRaj112/somnia-backend/internal/tokens"
)

const guestLockLease = 30 * time.Second

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}
	cfg := config.Load()

	logger, err := logging.New(logging.Options{
		Level:      cfg.LogLevel,
		Production: cfg.IsProduction(),
		FilePath:   cfg.LogFile,
	})
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	mongoClient, db, err := database.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase, logger)
	if err != nil {
		return err
	}
	defer func() { _ = database.Disconnect(mongoClient) }()

	redisClient, err := database.ConnectRedis(ctx, cfg.RedisURI, logger)
	if err != nil {
		return err
	}
	defer func() { _ = redisClient.Close() }()

	otps := repository.NewMongoOTPRepository(db)
	users := repository.NewMongoUserRepository(db)
	dreams := repository.NewMongoDreamRepository(db)
	tags := repository.NewMongoTagRepository(db)
	for name, ensure := range map[string]func(context.Context) error{
		"otps":   otps.EnsureIndexes,
		"users":  users.EnsureIndexes,
		"dreams": dreams.EnsureIndexes,
		"tags":   tags.EnsureIndexes,
	} {
		if err := ensure(ctx); err != nil {
			return fmt.Errorf("ensure %s indexes: %w", name, err)
		}
	}

	ledger := otp.NewLedger(otps, users, otp.NewBcryptHasher(cfg.OTPHashCost), otp.WithLogger(logger.Named("otp")))
	bridge, err := tokens.NewBridgeIssuer(cfg.ResetTokenSecret, cfg.ResetTokenTTL)
	if err != nil {
		return err
	}
	sessions, err := tokens.NewSessionManager(cfg.SessionSecret, cfg.SessionTTL, cfg.GuestSessionTTL, users)
	if err != nil {
		return err
	}

	mailer, err := newMailer(cfg, logger)
	if err != nil {
		return err
	}
	recovery, err := services.NewRecoveryService(ledger, bridge, sessions, users, mailer, cfg.MailFrom, logger.Named("recovery"))
	if err != nil {
		return err
	}

	cache := services.NewRedisCache(redisClient, services.DefaultCacheTTL)
	locker := services.NewRedisLocker(redisClient, guestLockLease, logger.Named("lock"))
	guest := services.NewGuestService(users, dreams, tags, sessions, locker, cfg.GuestEmail, logger.Named("guest")).WithCache(cache)
	if _, err := guest.EnsureAccount(ctx); err != nil {
		return err
	}
	auth := services.NewAuthService(users, sessions, guest, logger.Named("auth"))
	dreamService := services.NewDreamService(dreams, tags, newGenerator(cfg, logger), cache, logger.Named("dreams"))

	h := handlers.New(auth, recovery, dreamService, logger.Named("http")).
		WithHealthCheck("mongodb", database.Ping(mongoClient)).
		WithHealthCheck("redis", database.PingRedis(redisClient))

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(middleware.RequestLogger(logger.Named("access")))
	r.Use(chimw.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	if cfg.IsProduction() {
		mws, stopSweeper := middleware.ProductionSecurity(cfg.AllowedHost)
		defer stopSweeper()
		for _, mw := range mws {
			r.Use(mw)
		}
		logger.Info("production security enabled", zap.String("allowed_host", cfg.AllowedHost))
	}

	otpLimit := middleware.NewOTPRateLimit(redisClient, middleware.OTPRateLimitMaxRequests, middleware.OTPRateLimitWindow, logger.Named("ratelimit"))
	routes.SetupRoutes(r, h, otpLimit.Handler)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("somnia backend listening", zap.String("addr", srv.Addr), zap.String("env", cfg.Environment))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newMailer sends through SMTP when configured. Outside production a missing
// relay falls back to logging messages.
func newMailer(cfg *config.Config, logger *zap.Logger) (services.Mailer, error) {
	smtp, err := services.NewSMTPMailer(services.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
	})
	if err == nil {
		return smtp, nil
	}
	if cfg.IsProduction() {
		return nil, err
	}
	logger.Warn("smtp not configured, mail will be logged only")
	return services.NewLogMailer(logger.Named("mail")), nil
}

func newGenerator(cfg *config.Config, logger *zap.Logger) services.TextGenerator {
	if cfg.AIAPIKey == "" {
		logger.Info("AI_API_KEY not set, using keyword annotations")
		return services.MockGenerator{}
	}
	gen, err := services.NewOpenAIGenerator(cfg.AIBaseURL, cfg.AIAPIKey, cfg.AIModel)
	if err != nil {
		logger.Warn("AI generator unavailable, using keyword annotations", zap.Error(err))
		return services.MockGenerator{}
	}
	return gen
}
