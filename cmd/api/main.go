package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"geometa.org/internal/auth"
	"geometa.org/internal/config"
	"geometa.org/internal/httpapi"
	"geometa.org/internal/metadata"
	"geometa.org/internal/obs"
	"geometa.org/internal/rate"
	"geometa.org/internal/revoke"
)

var version = "0.3.1"

func main() {
	configPath := flag.String("config", "", "path to YAML config (env overrides apply)")
	flag.Parse()

	obs.Init()
	obs.InitBuildInfo(version, os.Getenv("GEOMETA_COMMIT"))

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	var db *sql.DB
	if cfg.DB.DSN != "" {
		db, err = sql.Open("pgx", cfg.DB.DSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
	}
	if db == nil {
		log.Fatalf("GEOMETA_PG_DSN is required")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	accessCodec, err := auth.NewCodec(auth.KindAccess, cfg.Auth.AccessSecret, cfg.Auth.AccessTTL, cfg.Auth.Issuer)
	if err != nil {
		log.Fatalf("access codec: %v", err)
	}
	refreshCodec, err := auth.NewCodec(auth.KindRefresh, cfg.Auth.RefreshSecret, cfg.Auth.RefreshTTL, cfg.Auth.Issuer)
	if err != nil {
		log.Fatalf("refresh codec: %v", err)
	}

	revoker := revoke.New(rdb, "revoked:")
	limiter := rate.New(rdb, "rl:")
	tokenCache := auth.NewTokenCache()

	authStore := auth.NewPGStore(db)
	authSvc, err := auth.NewService(authStore, accessCodec, refreshCodec, revoker,
		auth.WithRequireVerifiedEmail(cfg.Auth.RequireVerifiedEmail),
		auth.WithResetTokenTTL(cfg.Auth.ResetTokenTTL),
	)
	if err != nil {
		log.Fatalf("auth service: %v", err)
	}

	metaSvc, err := metadata.NewService(metadata.NewPGStore(db))
	if err != nil {
		log.Fatalf("metadata service: %v", err)
	}

	api := httpapi.New(httpapi.Config{
		Version:     version,
		ReadyProbe:  httpapi.ReadyProbe{DB: db},
		Auth:        authSvc,
		Metadata:    metaSvc,
		TokenCache:  tokenCache,
		AccessCodec: accessCodec,
		Revoker:     revoker,
		Limiter:     limiter,
		Limits: httpapi.LimitClasses{
			Standard: rate.Class{Name: "standard", Max: cfg.Limits.StandardMax, Window: cfg.Limits.StandardWindow},
			Login:    rate.Class{Name: "login", Max: cfg.Limits.LoginMax, Window: cfg.Limits.LoginWindow},
			Register: rate.Class{Name: "register", Max: cfg.Limits.RegisterMax, Window: cfg.Limits.RegisterWindow},
			Reset:    rate.Class{Name: "password_reset", Max: cfg.Limits.ResetMax, Window: cfg.Limits.ResetWindow},
		},
		Cookies: httpapi.CookieSettings{
			Domain: cfg.Cookies.Domain,
			Secure: cfg.Cookies.Secure,
		},
		TransportBurst:  cfg.Limits.TransportBurst,
		TransportPerSec: cfg.Limits.TransportPerSec,
	})

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr(),
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting geometa-api %s on %s", version, srv.Addr)

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
	tokenCache.Close()
	_ = rdb.Close()
	_ = db.Close()
	log.Println("Stopped")
}
