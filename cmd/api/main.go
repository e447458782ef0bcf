package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/kdlacuna/kainan/internal/auth"
	"github.com/kdlacuna/kainan/internal/background"
	"github.com/kdlacuna/kainan/internal/config"
	"github.com/kdlacuna/kainan/internal/database"
	"github.com/kdlacuna/kainan/internal/handlers"
	middlewareCustom "github.com/kdlacuna/kainan/internal/middleware"
	"github.com/kdlacuna/kainan/internal/models"
	"github.com/kdlacuna/kainan/internal/repositories"
	"github.com/kdlacuna/kainan/internal/routes"
	"github.com/kdlacuna/kainan/internal/services"
	pkgauth "github.com/kdlacuna/kainan/pkg/auth"
	pkghttp "github.com/kdlacuna/kainan/pkg/http"
	pkglogger "github.com/kdlacuna/kainan/pkg/logger"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	// Initialize database
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	// Initialize repositories
	accountRepo := repositories.NewAccountRepository(db)
	attemptRepo := repositories.NewAttemptRepository(db)
	challengeRepo := repositories.NewChallengeRepository(db)
	sessionRepo := repositories.NewSessionRepository(db)

	// Initialize cleanup manager. Attempt records older than the widest
	// lockout window plus the longest timed lock are dead weight.
	attemptRetention := cfg.Auth.StaffLockout.Window + cfg.Auth.StaffLockout.LockoutDuration
	cleanupManager := background.NewCleanupManager(attemptRepo, challengeRepo, sessionRepo, attemptRetention, logger, cfg.Auth.CleanupInterval)

	// Initialize security services
	auditLogger := pkglogger.NewAuditLogger(logger)

	// Timing delay for auth security
	timingConfig := auth.TimingConfig{
		BaseDelayMs:    cfg.Auth.TimingDelayBaseMs,
		RandomDelayMs:  cfg.Auth.TimingDelayRandomMs,
		DelayOnSuccess: cfg.Auth.TimingDelayOnSuccess,
	}
	timingDelay := auth.NewTimingDelay(timingConfig)

	// AWS SES challenge delivery
	var notifier services.Notifier
	sesNotifier, err := services.NewSESNotifier(cfg.Email.AWSRegion, cfg.Email.FromAddress, logger)
	if err != nil {
		logger.Error("failed to initialize email notifier", slog.Any("error", err))
		os.Exit(1)
	}
	notifier = sesNotifier

	if cfg.Email.FallbackRegion != "" {
		fallback, err := services.NewSESNotifier(cfg.Email.FallbackRegion, cfg.Email.FromAddress, logger)
		if err != nil {
			logger.Error("failed to initialize fallback email notifier", slog.Any("error", err))
			os.Exit(1)
		}
		notifier = services.NewFallbackNotifier(sesNotifier, fallback, logger)
	}

	// Initialize services
	credentialService := services.NewCredentialService(accountRepo, logger)
	challengeService := services.NewChallengeService(
		challengeRepo,
		notifier,
		cfg.Auth.ChallengeTTL,
		cfg.Auth.ResendCooldown,
		cfg.Auth.NotifyTimeout,
		logger,
	)
	sessionService := services.NewSessionService(sessionRepo, cfg.Auth.ChallengeTTL, cfg.Auth.SessionTTL, logger)

	staffLockout := services.NewLockoutService(attemptRepo, cfg.Auth.StaffLockout, logger)
	studentLockout := services.NewLockoutService(attemptRepo, cfg.Auth.StudentLockout, logger)
	studentIPLockout := services.NewLockoutService(attemptRepo, cfg.Auth.StudentIPLockout, logger)

	staffFlow := services.FlowConfig{
		Name:                 "staff",
		AllowedRoles:         []string{models.RoleStaff, models.RoleAdmin, models.RoleSuperAdmin},
		RequireVerifiedEmail: false,
	}
	studentFlow := services.FlowConfig{
		Name:                 "student",
		AllowedRoles:         []string{models.RoleStudent},
		RequireVerifiedEmail: true,
	}

	staffLoginService := services.NewLoginService(staffFlow, credentialService, staffLockout, nil, challengeService, sessionService, timingDelay, logger, auditLogger)
	studentLoginService := services.NewLoginService(studentFlow, credentialService, studentLockout, studentIPLockout, challengeService, sessionService, timingDelay, logger, auditLogger)

	// Initialize handlers
	ipConfig := &pkghttp.IPConfig{TrustedProxies: []string{"10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16"}}
	cookieConfig := auth.CookieConfig{
		Secure:   cfg.Server.Env == "production",
		SameSite: "strict",
	}
	staffLoginHandler := handlers.NewLoginHandler(staffLoginService, ipConfig, cookieConfig)
	studentLoginHandler := handlers.NewLoginHandler(studentLoginService, ipConfig, cookieConfig)

	// Bootstrap first admin account if configured
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := ensureAdminAccount(ctx, accountRepo, auditLogger, logger); err != nil {
		logger.Error("failed to ensure admin account", slog.Any("error", err))
	}
	cancel()

	// Setup CORS middleware
	corsConfig := middlewareCustom.DefaultCORSConfig()
	corsConfig.AllowedOrigins = cfg.Server.AllowedOrigins

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(corsConfig))
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	// Register routes
	routes.RegisterRoutes(router, staffLoginHandler, studentLoginHandler)

	// Health check with database
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.HealthCheck(ctx); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy","database":"down"}`))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","database":"up"}`))
	})

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start cleanup task
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()

	go cleanupManager.Start(cleanupCtx)

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	cleanupCancel()
	cleanupManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}

// ensureAdminAccount creates the first superadmin account if ADMIN_EMAIL and
// ADMIN_PASSWORD are set
func ensureAdminAccount(ctx context.Context, accountRepo *repositories.AccountRepository, auditLogger *pkglogger.AuditLogger, logger *slog.Logger) error {
	adminEmail := os.Getenv("ADMIN_EMAIL")
	adminPassword := os.Getenv("ADMIN_PASSWORD")

	if adminEmail == "" || adminPassword == "" {
		logger.Info("no ADMIN_EMAIL or ADMIN_PASSWORD set, skipping admin account creation")
		return nil
	}

	if err := pkgauth.ValidatePassword(adminPassword); err != nil {
		return fmt.Errorf("ADMIN_PASSWORD rejected: %w", err)
	}

	// Check if admin already exists
	_, err := accountRepo.GetByEmail(ctx, adminEmail)
	if err == nil {
		logger.Info("admin account already exists")
		return nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("failed to check if admin exists: %w", err)
	}

	// Hash password
	hashedPassword, err := pkgauth.HashPassword(adminPassword)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}

	admin := &models.Account{
		Email:         adminEmail,
		PasswordHash:  hashedPassword,
		Name:          "Administrator",
		Role:          models.RoleSuperAdmin,
		EmailVerified: true,
		Status:        "active",
	}

	created, err := accountRepo.Create(ctx, admin)
	if err != nil {
		return fmt.Errorf("failed to create admin account: %w", err)
	}

	auditLogger.LogAccountAction("admin_account_bootstrapped", created.ID, "", nil)
	logger.Info("admin account created successfully")
	return nil
}
