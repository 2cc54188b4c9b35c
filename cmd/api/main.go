package main

import (
	"context"
	"database/sql"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"nashra.news/internal/auth"
	"nashra.news/internal/config"
	"nashra.news/internal/httpapi"
	"nashra.news/internal/obs"
)

var (
	version = "1.3.0"
	commit  = "none"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config (optional)")
	flag.Parse()

	cfg := config.MustLoad(*configPath)

	obs.Init()
	obs.InitBuildInfo(version, commit)
	log := obs.Logger()

	var (
		db    *sql.DB
		store auth.Store
	)
	if cfg.DB.DSN != "" {
		var err error
		db, err = sql.Open("pgx", cfg.DB.DSN)
		if err != nil {
			log.Error("open db", slog.Any("err", err))
			os.Exit(1)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
		defer db.Close()
		store = auth.NewPGStore(db)
	} else {
		log.Warn("no database configured, sessions will not survive a restart")
		store = auth.NewMemoryStore()
	}
	signer := auth.NewTokenSigner([]byte(cfg.Auth.SigningSecret), cfg.Auth.Issuer, cfg.Auth.AccessTTL)
	svc := auth.NewService(store, signer,
		auth.WithRefreshTTL(cfg.Auth.RefreshTTL),
		auth.WithResetTTL(cfg.Auth.ResetTTL),
		auth.WithVerificationTTL(cfg.Auth.VerificationTTL),
		auth.WithStoreTimeout(cfg.DB.StoreTimeout),
		auth.WithLoginLimiter(auth.NewLoginLimiter(cfg.RateLimit.LoginAttempts, cfg.RateLimit.LoginWindow)),
	)

	bootCtx, bootCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := svc.EnsureDefaultAdmin(bootCtx, cfg.Bootstrap.AdminEmail, cfg.Bootstrap.AdminPassword); err != nil {
		bootCancel()
		log.Error("ensure default admin", slog.Any("err", err))
		os.Exit(1)
	}
	bootCancel()

	api := httpapi.New(svc, httpapi.ReadyProbe{DB: db}, httpapi.Options{
		Version:       version,
		SecureCookies: cfg.Auth.SecureCookies,
	})

	handler := httpapi.RequestID(
		httpapi.LoggingJSON(
			httpapi.SecurityHeaders(
				httpapi.CORS(
					httpapi.MaxBodyBytes(
						httpapi.RateLimit(api.Handler(), 40, 20),
						1<<20),
					cfg.HTTP.CORSOrigins))))

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr(),
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// periodic cleanup of expired refresh/reset/verification tokens
	janitorCtx, janitorStop := context.WithCancel(context.Background())
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-janitorCtx.Done():
				return
			case <-ticker.C:
				if err := svc.PurgeExpiredTokens(janitorCtx); err != nil {
					log.Warn("token cleanup", slog.Any("err", err))
				}
			}
		}
	}()

	log.Info("starting nashra-auth",
		slog.String("version", version),
		slog.String("addr", srv.Addr),
		slog.String("env", cfg.Env),
	)
	obs.SetReady(true)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("listen", slog.Any("err", err))
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Info("shutting down")
	obs.SetReady(false)
	janitorStop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	log.Info("stopped")
}
