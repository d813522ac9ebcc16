package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Clark-Hu/trueque/internal/auth"
	"github.com/Clark-Hu/trueque/internal/config"
	httpserver "github.com/Clark-Hu/trueque/internal/http"
	"github.com/Clark-Hu/trueque/internal/metrics"
	"github.com/Clark-Hu/trueque/internal/posts"
	"github.com/Clark-Hu/trueque/internal/repository"
	"github.com/Clark-Hu/trueque/internal/store"
	"github.com/Clark-Hu/trueque/internal/trade"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger := log.New(os.Stdout, "[trueque] ", log.LstdFlags|log.Lshortfile)

	dbCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	storeOpts := store.Options{
		MaxConns:               int32(cfg.DBMaxConns),
		MinConns:               int32(cfg.DBMinConns),
		MaxConnIdleTime:        time.Duration(cfg.DBMaxIdleSecs) * time.Second,
		MaxConnLifetime:        time.Duration(cfg.DBMaxLifeSecs) * time.Second,
		ConnTimeout:            time.Duration(cfg.DBConnTimeoutSecs) * time.Second,
		StatementCacheCapacity: cfg.DBStatementCache,
		MigrationsDir:          cfg.MigrationsDir,
		Logger:                 logger,
	}

	st, err := store.New(dbCtx, cfg.DBURL, storeOpts)
	if err != nil {
		log.Fatalf("connect database: %v", err)
	}
	defer st.Close()

	repo := repository.New(st)

	var resolver posts.Resolver = repo.Posts
	if cfg.PostsURL != "" {
		client, err := posts.NewHTTPClient(cfg.PostsURL, cfg.PostsAPIKey, time.Duration(cfg.PostsTimeoutSecs)*time.Second, logger)
		if err != nil {
			log.Fatalf("init posts client: %v", err)
		}
		resolver = client
		logger.Printf("resolving posts via %s", cfg.PostsURL)
	}

	m := metrics.New()
	m.RegisterPool(st)

	svc := trade.NewService(trade.Deps{
		Trades:            repo.Trades,
		Posts:             resolver,
		Chats:             repo.Chats,
		Notifications:     repo.Notifications,
		Users:             repo.Users,
		Logger:            logger,
		Metrics:           m,
		SideEffectTimeout: time.Duration(cfg.SideEffectTimeoutSecs) * time.Second,
	})
	server := httpserver.New(cfg, st, svc, m, auth.NewVerifier(cfg.JWTSecret), logger)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			serverErrCh <- err
			return
		}
		serverErrCh <- nil
	}()

	select {
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) && !errors.Is(err, context.Canceled) {
			log.Printf("server error: %v", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Printf("graceful shutdown error: %v", err)
	}
}
