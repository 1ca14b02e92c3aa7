package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"gatekey.org/internal/auth"
	"gatekey.org/internal/config"
	"gatekey.org/internal/httpapi"
	"gatekey.org/internal/mail"
	"gatekey.org/internal/obs"
)

var (
	version = "0.3.0"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// Postgres when a DSN is configured; in-memory stores otherwise, which
	// keeps local development free of infrastructure.
	var (
		db     *sql.DB
		users  auth.UserStore
		tokens auth.TokenStore
	)
	if cfg.DatabaseDSN != "" {
		db, err = sql.Open("pgx", cfg.DatabaseDSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
		users = auth.NewPGUserStore(db)
		tokens = auth.NewPGTokenStore(db)
	} else {
		log.Print("GATEKEY_PG_DSN not set, using in-memory stores")
		users = auth.NewMemoryUserStore()
		tokens = auth.NewMemoryTokenStore()
	}

	notifier := mail.NewSender(mail.Options{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUser,
		Password: cfg.SMTPPassword,
		From:     cfg.MailFrom,
		FromName: cfg.MailFromName,
	})

	policy := cfg.PasswordPolicy()
	tokenSvc := auth.NewTokenService(cfg.JWTKey, cfg.LifetimeMinutes, users, tokens)
	authSvc := auth.NewService(users, tokenSvc, notifier, auth.GoogleIDVerifier{}, cfg.GoogleClientID, policy)
	recovery := auth.NewRecovery(users, notifier, policy)

	api := httpapi.New(httpapi.ReadyProbe{DB: db}, version, authSvc, recovery, tokenSvc)
	api.SetRateLimit(cfg.RateBurst, cfg.RatePerSec)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting gatekey-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	api.Close()
	if db != nil {
		_ = db.Close()
	}
	log.Println("Stopped")
}
