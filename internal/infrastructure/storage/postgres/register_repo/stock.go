// Package register_repo provides PostgreSQL implementations for register repositories.
package register_repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"costledger/internal/core/entity"
	"costledger/internal/core/id"
	"costledger/internal/domain/registers/stock"
	"costledger/internal/infrastructure/storage/postgres"
)

const (
	stockLedgerTable    = "stock_ledger"
	stockAnomaliesTable = "stock_anomalies"
)

var ledgerColumns = []string{
	"item_id", "warehouse_id", "location_id",
	"quantity", "average_cost", "last_doc_date", "updated_at",
}

var anomalyColumns = []string{
	"id", "item_id", "warehouse_id", "location_id",
	"document_type", "document_id", "line_id",
	"resulting_qty", "backdated", "source", "detected_at",
}

// StockRepo implements stock.Repository over stock_ledger and stock_anomalies.
type StockRepo struct {
	txManager *postgres.TxManager
	inserter  *postgres.BatchInserter
	builder   squirrel.StatementBuilderType
}

var _ stock.Repository = (*StockRepo)(nil)

// NewStockRepo creates a new stock register repository.
func NewStockRepo(txManager *postgres.TxManager) *StockRepo {
	return &StockRepo{
		txManager: txManager,
		inserter:  postgres.NewBatchInserter(txManager),
		builder:   postgres.Builder(),
	}
}

// GetForUpdate locks the row until the transaction ends.
// A missing row is not locked; the scope advisory lock covers its creation.
func (r *StockRepo) GetForUpdate(ctx context.Context, key entity.LedgerKey) (entity.StockLedgerEntry, bool, error) {
	q := r.builder.Select(ledgerColumns...).
		From(stockLedgerTable).
		Where(squirrel.Eq{
			"item_id":      key.ItemID,
			"warehouse_id": key.WarehouseID,
			"location_id":  key.LocationID,
		}).
		Suffix("FOR UPDATE")

	sql, args, err := q.ToSql()
	if err != nil {
		return entity.StockLedgerEntry{}, false, fmt.Errorf("build query: %w", err)
	}

	var entry entity.StockLedgerEntry
	err = pgxscan.Get(ctx, r.txManager.MustGetTx(ctx), &entry, sql, args...)
	if errors.Is(err, pgx.ErrNoRows) {
		return entity.StockLedgerEntry{}, false, nil
	}
	if err != nil {
		return entity.StockLedgerEntry{}, false, postgres.TranslateError(
			fmt.Errorf("get ledger row: %w", err), "stock ledger row", key)
	}
	return entry, true, nil
}

// Upsert creates or replaces one row.
func (r *StockRepo) Upsert(ctx context.Context, entry entity.StockLedgerEntry) error {
	q := r.builder.Insert(stockLedgerTable).
		Columns(ledgerColumns...).
		Values(entry.ItemID, entry.WarehouseID, entry.LocationID,
			entry.Quantity, entry.AverageCost, entry.LastDocDate, entry.UpdatedAt).
		Suffix(`ON CONFLICT (item_id, warehouse_id, location_id) DO UPDATE SET
			quantity = EXCLUDED.quantity,
			average_cost = EXCLUDED.average_cost,
			last_doc_date = EXCLUDED.last_doc_date,
			updated_at = EXCLUDED.updated_at`)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build upsert: %w", err)
	}

	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return postgres.TranslateError(fmt.Errorf("upsert ledger row: %w", err), "stock ledger row", entry.Key())
	}
	return nil
}

// List returns rows matching the filter, ordered by item, warehouse, location.
func (r *StockRepo) List(ctx context.Context, filter stock.LedgerFilter) ([]entity.StockLedgerEntry, error) {
	q := r.builder.Select(ledgerColumns...).
		From(stockLedgerTable).
		OrderBy("item_id", "warehouse_id", "location_id")

	if len(filter.ItemIDs) > 0 {
		q = q.Where(squirrel.Eq{"item_id": filter.ItemIDs})
	}
	if len(filter.WarehouseIDs) > 0 {
		q = q.Where(squirrel.Eq{"warehouse_id": filter.WarehouseIDs})
	}
	if len(filter.LocationIDs) > 0 {
		q = q.Where(squirrel.Eq{"location_id": filter.LocationIDs})
	}
	if filter.ExcludeZero {
		q = q.Where(squirrel.NotEq{"quantity": 0})
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var entries []entity.StockLedgerEntry
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &entries, sql, args...); err != nil {
		return nil, fmt.Errorf("list ledger: %w", err)
	}
	return entries, nil
}

// ReplaceScope deletes the scope's rows and copies the new ones in.
func (r *StockRepo) ReplaceScope(ctx context.Context, scope stock.ScopeFilter, entries []entity.StockLedgerEntry) error {
	if len(scope.ItemIDs) == 0 {
		return nil
	}

	del := r.builder.Delete(stockLedgerTable).Where(squirrel.Eq{"item_id": scope.ItemIDs})
	if len(scope.WarehouseIDs) > 0 {
		del = del.Where(squirrel.Eq{"warehouse_id": scope.WarehouseIDs})
	}
	sql, args, err := del.ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}
	if _, err := r.txManager.MustGetTx(ctx).Exec(ctx, sql, args...); err != nil {
		return postgres.TranslateError(fmt.Errorf("clear scope: %w", err), "stock ledger", scope.ItemIDs)
	}

	rows := make([][]any, 0, len(entries))
	for _, e := range entries {
		if !scope.Contains(e.Key()) {
			continue
		}
		rows = append(rows, []any{
			e.ItemID, e.WarehouseID, e.LocationID,
			e.Quantity, e.AverageCost, e.LastDocDate, e.UpdatedAt,
		})
	}
	if _, err := r.inserter.CopyFromSlice(ctx, stockLedgerTable, ledgerColumns, rows); err != nil {
		return fmt.Errorf("copy ledger rows: %w", err)
	}
	return nil
}

// RecordAnomalies appends anomalies.
func (r *StockRepo) RecordAnomalies(ctx context.Context, anomalies []entity.StockAnomaly) error {
	if len(anomalies) == 0 {
		return nil
	}

	q := r.builder.Insert(stockAnomaliesTable).Columns(anomalyColumns...)
	for _, a := range anomalies {
		if id.IsNil(a.ID) {
			a.ID = id.New()
		}
		q = q.Values(a.ID, a.ItemID, a.WarehouseID, a.LocationID,
			a.DocumentType, a.DocumentID, a.LineID,
			a.ResultingQty, a.Backdated, a.Source, a.DetectedAt)
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return postgres.TranslateError(fmt.Errorf("insert anomalies: %w", err), "stock anomaly", nil)
	}
	return nil
}

// ListAnomalies returns recorded anomalies, newest first.
func (r *StockRepo) ListAnomalies(ctx context.Context, filter stock.AnomalyFilter) ([]entity.StockAnomaly, error) {
	q := r.builder.Select(anomalyColumns...).
		From(stockAnomaliesTable).
		OrderBy("detected_at DESC", "id DESC")

	if filter.ItemID != nil {
		q = q.Where(squirrel.Eq{"item_id": *filter.ItemID})
	}
	if filter.WarehouseID != nil {
		q = q.Where(squirrel.Eq{"warehouse_id": *filter.WarehouseID})
	}
	if filter.DocumentID != nil {
		q = q.Where(squirrel.Eq{"document_id": *filter.DocumentID})
	}
	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var anomalies []entity.StockAnomaly
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &anomalies, sql, args...); err != nil {
		return nil, fmt.Errorf("list anomalies: %w", err)
	}
	return anomalies, nil
}
