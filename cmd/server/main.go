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

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/kisanai/backend/internal/config"
	"github.com/kisanai/backend/internal/handlers"
	"github.com/kisanai/backend/internal/logger"
	"github.com/kisanai/backend/internal/services"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.UsesDefaultJWTSecret() {
		log.Warn("JWT_SECRET is the built-in default, set it before exposing the server")
	}

	profiles, accounts, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := profiles.Close(closeCtx); err != nil {
			log.Warn("close profile store", "error", err)
		}
	}()

	var revoked services.RevocationStore = services.NewMemoryRevocationStore()
	if cfg.RedisURL != "" {
		rs, err := services.NewRedisRevocationStore(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer rs.Close()
		revoked = rs
		log.Info("session revocation backed by redis")
	}

	tokens := services.NewJWTSessionService(cfg.JWTSecret, cfg.JWTExpiration, revoked)
	sessions := services.NewSessionChain().Add(services.ProviderJWT, tokens)

	// Firebase ID tokens are accepted alongside our own when configured.
	if cfg.FirebaseProjectID != "" || cfg.FirebaseCredentialsJSON != "" {
		fb, err := services.NewFirebaseSessions(ctx, services.FirebaseAuthConfig{
			ProjectID:       cfg.FirebaseProjectID,
			CredentialsJSON: cfg.FirebaseCredentialsJSON,
		})
		if err != nil {
			log.Warn("firebase auth disabled", "error", err)
		} else {
			sessions.Add(services.ProviderFirebase, fb)
		}
	}

	mailer := services.NewSendGridMailer(cfg.SendGridAPIKey, cfg.SupportFromEmail, cfg.SupportToEmail)
	if !mailer.Configured() {
		log.Warn("support email not configured, /api/support will answer 503")
	}

	router := handlers.NewRouter(handlers.RouterDeps{
		Auth:     handlers.NewAuthHandler(services.NewUserService(accounts), tokens, sessions, log, cfg.RequestTimeout),
		Profiles: handlers.NewProfileHandler(profiles, log, cfg.RequestTimeout),
		Support:  handlers.NewSupportHandler(mailer, profiles, log),
		Sessions: sessions,
		Log:      log,
	})

	srv := &http.Server{
		Addr:              cfg.ServerAddress,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("KisanAI API server starting", "addr", cfg.ServerAddress, "profile_store", cfg.ProfileStore)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// openStores opens the profile store and the account store next to it, so
// the user ids profiles are keyed on survive a restart.
func openStores(ctx context.Context, cfg *config.Config, log *logger.Logger) (services.ProfileStore, services.AccountStore, error) {
	switch cfg.ProfileStore {
	case "mongo", "mongodb":
		s, err := services.NewMongoProfileService(ctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return nil, nil, fmt.Errorf("connect mongo: %w", err)
		}
		accounts, err := services.NewMongoAccountStore(ctx, s.Database())
		if err != nil {
			_ = s.Close(ctx)
			return nil, nil, fmt.Errorf("index accounts: %w", err)
		}
		log.Info("profile store: mongo", "db", cfg.MongoDB)
		return s, accounts, nil
	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, nil, errors.New("PROFILE_STORE=postgres needs DATABASE_URL")
		}
		db, err := services.OpenPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		log.Info("profile store: postgres")
		return newSQLStores(ctx, db)
	case "sqlite", "":
		db, err := services.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite: %w", err)
		}
		log.Info("profile store: sqlite", "path", cfg.SQLitePath)
		return newSQLStores(ctx, db)
	default:
		return nil, nil, fmt.Errorf("unknown PROFILE_STORE %q", cfg.ProfileStore)
	}
}

func newSQLStores(ctx context.Context, db *gorm.DB) (services.ProfileStore, services.AccountStore, error) {
	s, err := services.NewSQLProfileService(ctx, db)
	if err != nil {
		return nil, nil, fmt.Errorf("migrate profiles: %w", err)
	}
	accounts, err := services.NewSQLAccountStore(ctx, db)
	if err != nil {
		_ = s.Close(ctx)
		return nil, nil, fmt.Errorf("migrate accounts: %w", err)
	}
	return s, accounts, nil
}
