package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"cardcore/config"
	"cardcore/internal/bankcore/shadow"
	"cardcore/internal/ledger"
	"cardcore/internal/storage"
	"cardcore/pkg/cache"
	"cardcore/pkg/logger"
	streams "cardcore/pkg/queue"

	"github.com/jinzhu/copier"
	"go.uber.org/zap"
)

var Cfg config.ApiConfig

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// ========================================================================
// RELEASE RECONCILIATION
// ========================================================================
//
// The settlement pipeline's Release treats a CBS ReleaseHold failure as
// best-effort: the authorization is marked RELEASED locally and the
// mismatch is left to this worker, rather than blocking the caller on a
// CBS retry loop. This worker closes that gap two ways:
//
//   1. Poll loop: every pollInterval, list shadow holds still ACTIVE after
//      holdStaleAfter and re-check each one's local authorization. If the
//      authorization is RELEASED but the hold is still ACTIVE, retry
//      ReleaseHold against the CBS.
//   2. Reconcile-now stream: the settlement pipeline publishes the
//      authorization id to the "reconcile-now" stream immediately after a
//      Release whose CBS call failed, so the common case is fixed within
//      seconds and the poll loop only catches what that trigger misses
//      (a worker crash between the publish and the consume, for instance).
// ========================================================================

const (
	pollInterval   = 30 * time.Second
	holdStaleAfter = 2 * time.Minute
)

func run() error {
	if err := logger.Init(logger.GetEnv()); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()

	_, filename, _, _ := runtime.Caller(0)
	root := filepath.Dir(filepath.Dir(filepath.Dir(filepath.Dir(filename))))
	configPath := config.Path(root).Join("config.toml")

	if err := config.Load(configPath, &Cfg); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger.Info("starting reconcile worker")

	var redisCfg cache.Config
	if err := copier.Copy(&redisCfg, &Cfg.Redis); err != nil {
		return fmt.Errorf("failed to copy cache config: %w", err)
	}
	if err := cache.Init(redisCfg); err != nil {
		return fmt.Errorf("failed to initialize cache: %w", err)
	}
	defer cache.Close()

	var dbCfg storage.Config
	if err := copier.Copy(&dbCfg, &Cfg.Database); err != nil {
		return fmt.Errorf("failed to copy database config: %w", err)
	}
	db, err := storage.NewDB(dbCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize database connection: %w", err)
	}
	defer db.Close()

	if Cfg.Bank.Adapter != "shadow" && Cfg.Bank.Adapter != "" {
		logger.Warn("reconcile worker only reconciles the shadow adapter's hold bookkeeping; bank.adapter is not shadow, nothing to do",
			zap.String("bank_adapter", Cfg.Bank.Adapter))
	}

	poster := shadow.NewHTTPLedgerPoster(shadow.HTTPLedgerPosterConfig{
		BaseURL: Cfg.Bank.BaseURL,
		APIKey:  Cfg.Bank.APIKey,
		Timeout: time.Duration(Cfg.Bank.TimeoutMS) * time.Millisecond,
	})
	holdStore := shadow.NewHoldStore()
	adapter := shadow.NewAdapter(shadow.Config{HoldsGLAccount: Cfg.Bank.HoldsGLAccount}, poster, shadow.BindHoldStore(holdStore, db.Pool()))

	handler := &reconciler{
		db:        db,
		holdStore: holdStore,
		authStore: ledger.NewAuthorizationStore(),
		adapter:   adapter,
	}

	queue := streams.NewStreamQueue(cache.Client)
	streamName := "reconcile-now"
	groupName := "reconcile_workers"
	consumerName := fmt.Sprintf("reconcile-worker-%d", os.Getpid())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := queue.DeclareStream(ctx, streamName, groupName); err != nil {
		return fmt.Errorf("failed to declare consumer group: %w", err)
	}

	go func() {
		err := queue.Consume(ctx, streamName, groupName, consumerName, func(messageID string, data []byte) error {
			authorizationID := string(data)
			logger.Info("reconcile-now triggered", zap.String("authorization_id", authorizationID))
			return handler.reconcileOne(ctx, authorizationID)
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("reconcile-now consumer error", zap.Error(err))
		}
	}()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := handler.reconcilePoll(ctx); err != nil {
					logger.Error("reconcile poll failed", zap.Error(err))
				}
			}
		}
	}()

	logger.Info("reconcile worker running",
		zap.Duration("poll_interval", pollInterval),
		zap.Duration("hold_stale_after", holdStaleAfter),
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("received shutdown signal", zap.String("signal", sig.String()))

	cancel()
	time.Sleep(2 * time.Second)
	logger.Info("reconcile worker shut down gracefully")
	return nil
}

// reconciler holds the dependencies the poll loop and the reconcile-now
// consumer both need.
type reconciler struct {
	db        *storage.DB
	holdStore *shadow.HoldStore
	authStore *ledger.AuthorizationStore
	adapter   *shadow.Adapter
}

// reconcilePoll lists every shadow hold still ACTIVE past holdStaleAfter
// and retries the release for any whose authorization is locally RELEASED.
func (r *reconciler) reconcilePoll(ctx context.Context) error {
	before := time.Now().UTC().Add(-holdStaleAfter)
	holds, err := r.holdStore.ListActiveOlderThan(ctx, r.db.Pool(), before)
	if err != nil {
		return fmt.Errorf("list stale active holds: %w", err)
	}
	if len(holds) == 0 {
		return nil
	}

	logger.Info("reconcile poll found stale active holds", zap.Int("count", len(holds)))

	for _, hold := range holds {
		if err := r.reconcileOne(ctx, hold.AuthorizationID); err != nil {
			logger.Error("failed to reconcile hold",
				zap.String("authorization_id", hold.AuthorizationID), zap.Error(err))
		}
	}
	return nil
}

// reconcileOne re-checks a single authorization and retries ReleaseHold if
// it is RELEASED locally but its shadow hold is still ACTIVE at the CBS.
func (r *reconciler) reconcileOne(ctx context.Context, authorizationID string) error {
	auth, err := r.authStore.GetByID(ctx, r.db.Pool(), authorizationID)
	if err != nil {
		if errors.Is(err, ledger.ErrAuthorizationNotFound) {
			logger.Warn("reconcile: no authorization for hold", zap.String("authorization_id", authorizationID))
			return nil
		}
		return fmt.Errorf("get authorization %s: %w", authorizationID, err)
	}

	if auth.Status != ledger.Released {
		return nil
	}

	hold, err := r.holdStore.GetByAuthorizationID(ctx, r.db.Pool(), authorizationID)
	if err != nil {
		if errors.Is(err, shadow.ErrHoldNotFound) {
			return nil
		}
		return fmt.Errorf("get hold for authorization %s: %w", authorizationID, err)
	}
	if hold.Status != shadow.HoldActive {
		return nil
	}

	if err := r.adapter.ReleaseHold(ctx, auth.AccountRef, hold.Amount, authorizationID); err != nil {
		return fmt.Errorf("retry release hold for authorization %s: %w", authorizationID, err)
	}

	logger.Info("reconciled stuck active hold", zap.String("authorization_id", authorizationID))
	return nil
}
