package main

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"cardcore/config"
	"cardcore/internal/authorization"
	"cardcore/internal/bankcore"
	"cardcore/internal/bankcore/grpccore"
	"cardcore/internal/bankcore/shadow"
	"cardcore/internal/card"
	"cardcore/internal/ledger"
	"cardcore/internal/money"
	"cardcore/internal/processor"
	"cardcore/internal/processor/generic"
	"cardcore/internal/rules"
	"cardcore/internal/settlement"
	"cardcore/internal/storage"
	"cardcore/pkg/cache"
	"cardcore/pkg/logger"
	queue "cardcore/pkg/queue"

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

func run() error {
	if err := logger.Init(logger.GetEnv()); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()

	_, filename, _, _ := runtime.Caller(0)
	root := filepath.Dir(filepath.Dir(filepath.Dir(filename)))
	configPath := config.Path(root).Join("config.toml")

	if err := config.Load(configPath, &Cfg); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

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

	if err := db.RunMigrations(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	adapter, err := buildBankAdapter(Cfg.Bank, db)
	if err != nil {
		return fmt.Errorf("failed to build bank core adapter: %w", err)
	}

	engine, err := buildRulesEngine(Cfg.Rules, db)
	if err != nil {
		return fmt.Errorf("failed to build rules engine: %w", err)
	}

	cardRepo := card.NewRepository()
	mappingRepo := card.NewMappingRepository()
	authStore := ledger.NewAuthorizationStore()
	ledgerStore := ledger.NewLedgerStore()
	mappingStore := processor.NewMappingStore()

	authSvc := authorization.NewService(db, cardRepo, mappingRepo, authStore, ledgerStore, engine, adapter)
	settleSvc := settlement.NewService(db, authStore, ledgerStore, adapter)
	settleSvc.SetReconcileNotifier(queue.NewStreamQueue(cache.Client))

	processors := map[string]processor.Adapter{
		Cfg.Processor.Active: generic.NewAdapter(Cfg.Processor.Active, db, authSvc, settleSvc, mappingStore, nil),
	}

	deps := &apiDeps{
		db:          db,
		cardRepo:    cardRepo,
		mappingRepo: mappingRepo,
		authStore:   authStore,
		authSvc:     authSvc,
		settleSvc:   settleSvc,
		processors:  processors,
	}

	router := newRouter(deps)

	srv := &http.Server{
		Addr:         ":8080",
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	logger.Info("cardcore api listening", zap.String("addr", srv.Addr), zap.String("bank_adapter", adapter.GetAdapterName()))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// buildBankAdapter selects the BankAccountAdapter implementation named by
// bank.adapter. "shadow" emulates holds over a journal-posting-only core;
// "grpc" speaks to a core with a native hold API.
func buildBankAdapter(cfg config.BankConfig, db *storage.DB) (bankcore.BankAccountAdapter, error) {
	switch cfg.Adapter {
	case "grpc":
		client, err := grpccore.NewClient(grpccore.Config{
			Host:           cfg.GRPCHost,
			Port:           cfg.GRPCPort,
			TLSCertPath:    cfg.GRPCTLSCertPath,
			APIKey:         cfg.APIKey,
			RequestTimeout: time.Duration(cfg.TimeoutMS) * time.Millisecond,
			AdapterName:    cfg.TenantID,
		})
		if err != nil {
			return nil, fmt.Errorf("connect to core banking system over grpc: %w", err)
		}
		return client, nil
	case "shadow", "":
		poster := shadow.NewHTTPLedgerPoster(shadow.HTTPLedgerPosterConfig{
			BaseURL: cfg.BaseURL,
			APIKey:  cfg.APIKey,
			Timeout: time.Duration(cfg.TimeoutMS) * time.Millisecond,
		})
		holdStore := shadow.NewHoldStore()
		return shadow.NewAdapter(
			shadow.Config{HoldsGLAccount: cfg.HoldsGLAccount},
			poster,
			shadow.BindHoldStore(holdStore, db.Pool()),
		), nil
	default:
		return nil, fmt.Errorf("unknown bank.adapter %q", cfg.Adapter)
	}
}

func buildRulesEngine(cfg config.RulesConfig, db *storage.DB) (*rules.Engine, error) {
	txLimit, err := money.NewFromString(cfg.TransactionLimitDefault, money.USD)
	if err != nil {
		return nil, fmt.Errorf("parse rules.transaction_limit_default: %w", err)
	}
	dailyLimit, err := money.NewFromString(cfg.DailyLimitDefault, money.USD)
	if err != nil {
		return nil, fmt.Errorf("parse rules.daily_limit_default: %w", err)
	}

	authStore := ledger.NewAuthorizationStore()

	return rules.NewEngine(
		rules.NewTransactionLimit(txLimit),
		rules.NewDailySpendLimit(&poolAuthorizationHistory{store: authStore, db: db}, dailyLimit),
		rules.NewVelocity(&redisVelocityCounter{window: time.Minute}, time.Minute, cfg.VelocityMaxPerMinute),
		rules.NewMCCBlocking(splitMCCs(cfg.BlockedMCCs)),
	), nil
}

func splitMCCs(csv string) []string {
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
