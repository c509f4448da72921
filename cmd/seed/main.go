// Package main seeds reference data: warehouses with locations, items and the
// GL account-role mapping. Safe to run repeatedly; existing codes are kept.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/shopspring/decimal"

	"costledger/internal/config"
	"costledger/internal/core/entity"
	"costledger/internal/core/id"
	"costledger/internal/infrastructure/storage/postgres"
	"costledger/pkg/logger"
)

type warehouseSeed struct {
	code, name string
	locations  []string
}

type itemSeed struct {
	code, name   string
	standardCost string
}

var warehouses = []warehouseSeed{
	{"WH-MAIN", "Main warehouse", []string{"A-01", "A-02", "B-01"}},
	{"WH-EAST", "East warehouse", []string{"E-01", "E-02"}},
}

var items = []itemSeed{
	{"RAW-STEEL", "Steel sheet", "12.50"},
	{"RAW-BOLT", "Bolt M8", "0.15"},
	{"FG-FRAME", "Frame assembly", "48.00"},
	{"FG-PANEL", "Panel", "21.75"},
}

// accountRoles maps every role the posting engine resolves to a chart code.
var accountRoles = []entity.AccountRole{
	entity.RoleInventory,
	entity.RoleAPTemp,
	entity.RoleCOGS,
	entity.RoleInventoryAdjustment,
	entity.RoleAccountsPayable,
	entity.RoleAccountsReceivable,
	entity.RoleSales,
	entity.RoleCash,
	entity.RoleAPAdjustment,
	entity.RoleARAdjustment,
}

func main() {
	log, err := logger.New(logger.Config{Level: "info", Development: true, Service: "seed"})
	if err != nil {
		fmt.Printf("failed to create logger: %v\n", err)
		os.Exit(1)
	}
	logger.SetDefault(log)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalw("failed to load configuration", "error", err)
	}

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(cfg.Database.DSN))
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	txm := postgres.NewTxManager(pool)
	err = txm.RunInTransaction(ctx, func(ctx context.Context) error {
		q := txm.GetQuerier(ctx)
		if err := seedWarehouses(ctx, q, log); err != nil {
			return err
		}
		if err := seedItems(ctx, q, log); err != nil {
			return err
		}
		return seedAccountRoles(ctx, q, log)
	})
	if err != nil {
		log.Fatalw("seeding failed", "error", err)
	}

	log.Info("seeding completed successfully")
}

func seedWarehouses(ctx context.Context, q postgres.Querier, log *logger.Logger) error {
	for _, w := range warehouses {
		var whID id.ID
		// The no-op update makes RETURNING yield the existing row on conflict.
		err := q.QueryRow(ctx, `
			INSERT INTO warehouses (id, code, name) VALUES ($1, $2, $3)
			ON CONFLICT (code) DO UPDATE SET code = EXCLUDED.code
			RETURNING id
		`, id.New(), w.code, w.name).Scan(&whID)
		if err != nil {
			return fmt.Errorf("seed warehouse %s: %w", w.code, err)
		}

		for _, code := range w.locations {
			_, err := q.Exec(ctx, `
				INSERT INTO locations (id, warehouse_id, code, name) VALUES ($1, $2, $3, $3)
				ON CONFLICT (warehouse_id, code) DO NOTHING
			`, id.New(), whID, code)
			if err != nil {
				return fmt.Errorf("seed location %s/%s: %w", w.code, code, err)
			}
		}
		log.Infow("warehouse seeded", "code", w.code, "id", whID, "locations", len(w.locations))
	}
	return nil
}

func seedItems(ctx context.Context, q postgres.Querier, log *logger.Logger) error {
	for _, it := range items {
		cost, err := decimal.NewFromString(it.standardCost)
		if err != nil {
			return fmt.Errorf("item %s standard cost: %w", it.code, err)
		}
		tag, err := q.Exec(ctx, `
			INSERT INTO items (id, code, name, standard_cost) VALUES ($1, $2, $3, $4)
			ON CONFLICT (code) DO NOTHING
		`, id.New(), it.code, it.name, cost)
		if err != nil {
			return fmt.Errorf("seed item %s: %w", it.code, err)
		}
		if tag.RowsAffected() > 0 {
			log.Infow("item seeded", "code", it.code)
		}
	}
	return nil
}

func seedAccountRoles(ctx context.Context, q postgres.Querier, log *logger.Logger) error {
	for _, role := range accountRoles {
		tag, err := q.Exec(ctx, `
			INSERT INTO gl_settings (role, coa_id) VALUES ($1, $2)
			ON CONFLICT (role) DO NOTHING
		`, string(role), id.New())
		if err != nil {
			return fmt.Errorf("seed account role %s: %w", role, err)
		}
		if tag.RowsAffected() > 0 {
			log.Infow("account role mapped", "role", role)
		}
	}
	return nil
}
