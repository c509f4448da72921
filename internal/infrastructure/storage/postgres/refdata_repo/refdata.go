// Package refdata_repo reads items, warehouses, locations and GL settings.
// The costing core never writes reference data.
package refdata_repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"costledger/internal/core/entity"
	"costledger/internal/core/id"
	"costledger/internal/domain/refdata"
	"costledger/internal/infrastructure/storage/postgres"
)

const (
	itemsTable      = "items"
	warehousesTable = "warehouses"
	locationsTable  = "locations"
	glSettingsTable = "gl_settings"
)

// Repo implements refdata.Provider.
type Repo struct {
	txManager *postgres.TxManager
	builder   squirrel.StatementBuilderType
}

var _ refdata.Provider = (*Repo)(nil)

// NewRepo creates the reference data repository.
func NewRepo(txManager *postgres.TxManager) *Repo {
	return &Repo{txManager: txManager, builder: postgres.Builder()}
}

// GetItem returns an item.
func (r *Repo) GetItem(ctx context.Context, itemID id.ID) (*entity.Item, error) {
	var item entity.Item
	err := r.get(ctx, &item, r.builder.
		Select("id", "code", "name", "standard_cost").
		From(itemsTable).
		Where(squirrel.Eq{"id": itemID}))
	if err != nil {
		return nil, postgres.TranslateError(err, "item", itemID)
	}
	return &item, nil
}

// GetLocation returns a location with its warehouse.
func (r *Repo) GetLocation(ctx context.Context, locationID id.ID) (*entity.Location, error) {
	var loc entity.Location
	err := r.get(ctx, &loc, r.builder.
		Select("id", "warehouse_id", "code", "name").
		From(locationsTable).
		Where(squirrel.Eq{"id": locationID}))
	if err != nil {
		return nil, postgres.TranslateError(err, "location", locationID)
	}
	return &loc, nil
}

// ListWarehouses returns every warehouse ordered by id.
func (r *Repo) ListWarehouses(ctx context.Context) ([]entity.Warehouse, error) {
	sql, args, err := r.builder.Select("id", "code", "name").
		From(warehousesTable).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var out []entity.Warehouse
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &out, sql, args...); err != nil {
		return nil, fmt.Errorf("list warehouses: %w", err)
	}
	return out, nil
}

// AccountFor resolves an account role to a chart-of-accounts id.
func (r *Repo) AccountFor(ctx context.Context, role entity.AccountRole) (id.ID, bool, error) {
	var setting entity.GLSetting
	err := r.get(ctx, &setting, r.builder.
		Select("role", "coa_id").
		From(glSettingsTable).
		Where(squirrel.Eq{"role": role}))
	if errors.Is(err, pgx.ErrNoRows) {
		return id.Nil(), false, nil
	}
	if err != nil {
		return id.Nil(), false, fmt.Errorf("get gl setting %s: %w", role, err)
	}
	return setting.COAID, true, nil
}

// GLSettings returns every role mapping, used to warm the cache.
func (r *Repo) GLSettings(ctx context.Context) ([]entity.GLSetting, error) {
	sql, args, err := r.builder.Select("role", "coa_id").From(glSettingsTable).OrderBy("role").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var out []entity.GLSetting
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &out, sql, args...); err != nil {
		return nil, fmt.Errorf("list gl settings: %w", err)
	}
	return out, nil
}

func (r *Repo) get(ctx context.Context, dst any, q squirrel.SelectBuilder) error {
	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	return pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), dst, sql, args...)
}
