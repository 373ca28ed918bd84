package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/cardparty-sync/internal/cdc"
	"github.com/DoyleJ11/cardparty-sync/internal/config"
	"github.com/DoyleJ11/cardparty-sync/internal/gateway"
	"github.com/DoyleJ11/cardparty-sync/internal/httpapi"
	"github.com/DoyleJ11/cardparty-sync/internal/identity"
	"github.com/DoyleJ11/cardparty-sync/internal/logging"
	"github.com/DoyleJ11/cardparty-sync/internal/nav"
	"github.com/DoyleJ11/cardparty-sync/internal/reconciler"
	"github.com/DoyleJ11/cardparty-sync/internal/session"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pg, err := gateway.NewPostgres(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return err
	}
	defer pg.Close()

	var texts gateway.TextCache = gateway.NewMemoryTextCache()
	if cfg.RedisAddr != "" {
		rc := gateway.NewRedisTextCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.CardTextTTL)
		defer rc.Close()
		texts = rc
	}
	gw := gateway.NewCardTextCache(pg, texts, logger)

	store, err := identity.OpenGormStore(cfg.IdentityDSN)
	if err != nil {
		return fmt.Errorf("identity store: %w", err)
	}
	defer store.Close()
	resolver := identity.NewResolver(cfg.DeviceID, store, gw, logger)

	var transport cdc.Transport
	switch cfg.CDCTransport {
	case config.TransportPGNotify:
		transport = cdc.NewPGNotify(cfg.DatabaseURL, cfg.PGNotifyChannel, logger)
	default:
		transport = cdc.NewRealtime(cfg.RealtimeURL, cfg.RealtimeAPIKey, logger)
	}

	sess := session.NewSession(ctx, reconciler.Deps{
		Gateway:   gw,
		Transport: transport,
		Identity:  resolver,
		Logger:    logger,
	})

	router := nav.NewRouter("/", func(_ context.Context, path string) error {
		logger.Info("screen mounted", zap.String("path", path))
		return nil
	})
	indicator := &nav.Indicator{}
	orch := nav.NewOrchestrator(router, indicator, nav.Options{
		Debounce: cfg.NavDebounce,
		Settle:   cfg.NavSettle,
		Logger:   logger,
	})
	defer orch.Close()

	srv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: httpapi.SetupRoutes(httpapi.Deps{
			Session:   sess,
			Navigator: router,
			Loading:   orch.Loading,
			OnOpen:    follower(ctx, orch),
			Logger:    logger,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", cfg.HTTPAddr), zap.String("device_id", cfg.DeviceID))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		sess.Inbox() <- session.ShutdownSession{}
		<-sess.Done()
		logger.Info("shut down")
		return err
	})
	return g.Wait()
}

// follower points the orchestrator at each newly opened game. Reopening
// the game that is already followed is a no-op; the watch renews its own
// subscription if the game drops it.
func follower(ctx context.Context, orch *nav.Orchestrator) func(*reconciler.Reconciler) {
	var mu sync.Mutex
	var following *reconciler.Reconciler
	return func(rc *reconciler.Reconciler) {
		mu.Lock()
		defer mu.Unlock()
		if rc == following {
			return
		}
		following = rc
		go func() {
			orch.Watch(ctx, rc)
			mu.Lock()
			if following == rc {
				following = nil
			}
			mu.Unlock()
		}()
	}
}
