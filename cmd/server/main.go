package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"ventapos/backend/internal/config"
	"ventapos/backend/internal/httpapi"
	"ventapos/backend/internal/notify"
	"ventapos/backend/internal/service"
	"ventapos/backend/internal/store"
	"ventapos/backend/internal/store/memory"
	pgstore "ventapos/backend/internal/store/postgres"
)

func main() {
	cfg := config.Load()
	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatalf("invalid security configuration: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("postgres unavailable (%v) and DATABASE_URL is set; refusing to start with in-memory fallback", err)
		}
		repo = pg
		closers = append(closers, pg.Close)
		log.Println("repository: postgres")
	} else {
		repo = memory.NewSeeded()
		log.Println("repository: in-memory")
	}

	broadcaster := notify.Broadcaster(notify.NoopBroadcaster{})
	if cfg.RedisAddr != "" {
		redisBroadcaster := notify.NewRedisBroadcaster(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisBroadcaster.Ping(ctx); err != nil {
			log.Printf("redis unavailable (%v), using noop broadcaster", err)
		} else {
			broadcaster = redisBroadcaster
			closers = append(closers, redisBroadcaster.Close)
			log.Println("broadcaster: redis")
		}
	} else {
		log.Println("broadcaster: noop")
	}

	svc := service.New(repo, broadcaster, time.Duration(cfg.LockTTLMinutes)*time.Minute)
	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, cfg.AdminPassphrase, repo)
	api := httpapi.New(svc, auth, cfg.AllowedOrigin)

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go sweepLocks(sweepCtx, svc)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("POS backend listening on %s", cfg.Address())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	stopSweep()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Printf("close error: %v", err)
		}
	}

	log.Println("server stopped")
}

// sweepLocks clears expired order locks once a minute so abandoned terminals
// do not hold orders hostage until the next acquire attempt.
func sweepLocks(ctx context.Context, svc *service.Service) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := svc.SweepExpiredLocks(ctx)
			if err != nil {
				log.Printf("lock sweep failed: %v", err)
				continue
			}
			if removed > 0 {
				log.Printf("lock sweep removed %d expired locks", removed)
			}
		}
	}
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if cfg.AdminPassphrase != "" {
		if err := validatePassphraseStrength(cfg.AdminPassphrase); err != nil {
			return fmt.Errorf("ADMIN_PASSPHRASE is too weak: %w", err)
		}
	}
	return nil
}

// validatePassphraseStrength rejects passphrases that are too short, from a
// known-weak list, or a single repeated character.
func validatePassphraseStrength(passphrase string) error {
	if len(passphrase) < 8 {
		return fmt.Errorf("must be at least 8 characters")
	}

	known := map[string]bool{
		"password": true, "password1": true, "12345678": true, "123456789": true,
		"qwertyui": true, "admin123": true, "11111111": true, "contrasena": true,
	}
	if known[strings.ToLower(passphrase)] {
		return fmt.Errorf("common passphrase not allowed")
	}

	allSame := true
	for i := 1; i < len(passphrase); i++ {
		if passphrase[i] != passphrase[0] {
			allSame = false
			break
		}
	}
	if allSame {
		return fmt.Errorf("repeated-character passphrase not allowed")
	}

	return nil
}
