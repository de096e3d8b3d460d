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
	"github.com/joho/godotenv"

	"campusgate.org/internal/auth"
	"campusgate.org/internal/httpapi"
	"campusgate.org/internal/obs"
	"campusgate.org/internal/roleconfig"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	_ = godotenv.Load()

	obs.Init()
	obs.InitBuildInfo(version, commit)

	secret := os.Getenv("CAMPUSGATE_JWT_SECRET")
	if secret == "" {
		log.Fatal("CAMPUSGATE_JWT_SECRET is required")
	}

	dsn := os.Getenv("CAMPUSGATE_PG_DSN")
	if dsn == "" {
		log.Fatal("CAMPUSGATE_PG_DSN is required")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	roleConfigPath := os.Getenv("CAMPUSGATE_ROLE_CONFIG")
	if roleConfigPath == "" {
		roleConfigPath = "config/role_config.json"
	}
	roles := roleconfig.Load(roleConfigPath)

	tokens, err := auth.NewTokenService(secret, "campusgate-api")
	if err != nil {
		log.Fatalf("token service: %v", err)
	}
	engine, err := auth.NewService(auth.NewPGStore(db), tokens, roles)
	if err != nil {
		log.Fatalf("auth service: %v", err)
	}

	// Session hygiene: flip expired rows to inactive every few minutes.
	cleanupCtx, cleanupStop := context.WithCancel(context.Background())
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-cleanupCtx.Done():
				return
			case <-ticker.C:
				if _, err := engine.CleanupExpiredSessions(cleanupCtx); err != nil {
					log.Printf("session cleanup: %v", err)
				}
			}
		}
	}()

	api := httpapi.New(httpapi.ReadyProbe{DB: db}, version, engine)

	addr := os.Getenv("CAMPUSGATE_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting campusgate-api %s on %s", version, srv.Addr)

	// graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	cleanupStop()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	_ = db.Close()
	log.Println("Stopped")
}
