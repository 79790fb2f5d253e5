package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/donsiko12-rgb/mechanic-workshop/internal/booking"
	"github.com/donsiko12-rgb/mechanic-workshop/internal/config"
	"github.com/donsiko12-rgb/mechanic-workshop/internal/db"
	redisclient "github.com/donsiko12-rgb/mechanic-workshop/internal/redis"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("janitor starting up")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	log.Printf("running janitor in env=%s interval=%s retention=%s", cfg.Env, cfg.WorkerInterval, cfg.BlockRetention)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatalf("postgres connection error: %v", err)
	}
	defer pgPool.Close()
	log.Println("connected to Postgres")

	// Pruning never touches availability, so the janitor does not need
	// the shared Redis day lock.
	repo := booking.NewPgRepository(pgPool)
	svc := booking.NewService(repo, redisclient.NewLocalLocker(), cfg)

	// Run once at startup
	runOnce(rootCtx, svc, cfg.BlockRetention)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			log.Println("shutdown signal received, stopping janitor")
			return
		case <-ticker.C:
			runOnce(rootCtx, svc, cfg.BlockRetention)
		}
	}
}

func runOnce(ctx context.Context, svc *booking.Service, retention time.Duration) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	pruned, err := svc.PruneOldBlocks(runCtx, retention)
	if err != nil {
		log.Printf("janitor run error: %v", err)
		return
	}
	log.Printf("janitor run complete pruned=%d in %s", pruned, time.Since(start))
}
