// Package app wires the costing services on top of a Postgres pool. The API
// server and the recalc CLI share it.
package app

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"costledger/internal/config"
	"costledger/internal/domain/allocation"
	"costledger/internal/domain/documents"
	"costledger/internal/domain/posting"
	"costledger/internal/domain/refdata"
	"costledger/internal/domain/registers/stock"
	"costledger/internal/infrastructure/cache"
	"costledger/internal/infrastructure/lock"
	"costledger/internal/infrastructure/metrics"
	"costledger/internal/infrastructure/numerator"
	"costledger/internal/infrastructure/storage/postgres"
	"costledger/internal/infrastructure/storage/postgres/document_repo"
	"costledger/internal/infrastructure/storage/postgres/invoice_repo"
	"costledger/internal/infrastructure/storage/postgres/journal_repo"
	"costledger/internal/infrastructure/storage/postgres/refdata_repo"
	"costledger/internal/infrastructure/storage/postgres/register_repo"
	"costledger/pkg/logger"
)

// App holds the wired services.
type App struct {
	Pool      *postgres.Pool
	TxManager *postgres.TxManager
	Redis     redis.UniversalClient
	Refdata   *cache.RefdataCache
	Metrics   *metrics.Collector

	Documents    *document_repo.DocumentRepo
	Drafts       *documents.Drafts
	Transitioner *documents.Transitioner
	Stock        *stock.Service
	Recalculator *stock.Recalculator
	Posting      *posting.Engine
	Allocations  *allocation.Engine
	Audit        *postgres.AuditRecorder
	Idempotency  *postgres.IdempotencyStore
}

// New connects to Postgres (and Redis when configured) and builds every
// service. The refdata cache starts listening for invalidations before New
// returns. Close releases everything New opened.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	poolCfg := postgres.DefaultPoolConfig(cfg.Database.DSN)
	poolCfg.MaxConns = cfg.Database.MaxConns
	poolCfg.MinConns = cfg.Database.MinConns
	poolCfg.MaxConnLifetime = cfg.Database.MaxConnLifetime
	poolCfg.MaxConnIdleTime = cfg.Database.MaxConnIdleTime
	poolCfg.ApplicationName = cfg.App.Name

	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	a := &App{Pool: pool}

	txOpts := postgres.DefaultTxOptions()
	txOpts.StatementTimeout = cfg.Database.StatementTimeout
	txOpts.LockTimeout = cfg.Database.LockTimeout
	a.TxManager = postgres.NewTxManager(pool).WithOptions(txOpts)

	a.Refdata = cache.NewRefdataCache(refdata_repo.NewRepo(a.TxManager), pool.Pool)
	a.Refdata.Start(ctx)

	locker, err := a.scopeLocker(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	policy, err := stock.NewCELPolicy(cfg.Stock.NegativeRule)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("negative stock rule: %w", err)
	}

	a.Audit, err = postgres.NewAuditRecorder(a.TxManager, 0)
	if err != nil {
		a.Close()
		return nil, err
	}

	numbers := numerator.New(func(ctx context.Context) numerator.Querier {
		return a.TxManager.GetQuerier(ctx)
	})

	a.Metrics = metrics.NewCollector()
	a.Documents = document_repo.NewDocumentRepo(a.TxManager)
	a.Drafts = documents.NewDrafts(a.TxManager, a.Documents, numbers)
	a.Stock = stock.NewService(register_repo.NewStockRepo(a.TxManager), a.Refdata, policy)
	a.Allocations = allocation.NewEngine(
		invoice_repo.NewInvoiceRepo(a.TxManager),
		invoice_repo.NewAllocationRepo(a.TxManager),
	)
	a.Posting = posting.NewEngine(journal_repo.NewJournalRepo(a.TxManager), a.Refdata, a.Allocations, numbers)

	readers := documents.NewReaders(refdata.NewLocationResolver(a.Refdata))
	a.Transitioner = documents.NewTransitioner(documents.Deps{
		TxManager:   a.TxManager,
		Documents:   a.Documents,
		Readers:     readers,
		Stock:       a.Stock,
		Locker:      locker,
		Posting:     a.Posting,
		Allocations: a.Allocations,
		Audit:       a.Audit,
		Observer:    a.Metrics,
	})
	a.Recalculator = stock.NewRecalculator(
		register_repo.NewStockRepo(a.TxManager),
		documents.NewHistory(a.Documents, readers),
		a.Refdata,
		a.Refdata,
		a.TxManager,
		locker,
		cfg.Recalc.Parallelism,
	)
	a.Idempotency = postgres.NewIdempotencyStore(a.TxManager, cfg.HTTP.IdempotencyTTL)

	log.Infow("services wired",
		"lock_backend", cfg.Lock.Backend,
		"negative_rule", cfg.Stock.NegativeRule,
		"recalc_parallelism", cfg.Recalc.Parallelism,
	)
	return a, nil
}

func (a *App) scopeLocker(ctx context.Context, cfg *config.Config) (stock.ScopeLocker, error) {
	if cfg.Lock.Backend != config.LockBackendRedis {
		return postgres.NewAdvisoryLocker(a.TxManager), nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	a.Redis = rdb
	return lock.NewRedisLocker(rdb, lock.Options{
		TTL:     cfg.Lock.TTL,
		Retries: cfg.Lock.Retries,
		Backoff: cfg.Lock.Backoff,
	}), nil
}

// Close stops the cache listener and closes connections.
func (a *App) Close() {
	if a.Refdata != nil {
		a.Refdata.Stop()
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	a.Pool.Close()
}
