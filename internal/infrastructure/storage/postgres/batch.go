package postgres

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
)

// psql is the squirrel builder shared by every repository.
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Builder returns the dollar-placeholder statement builder.
func Builder() sq.StatementBuilderType {
	return psql
}

// BatchInserter bulk-inserts rows with the COPY protocol inside the active
// transaction. The recalculator rewrites whole scopes through it.
type BatchInserter struct {
	txManager *TxManager
}

// NewBatchInserter creates a new batch inserter.
func NewBatchInserter(txManager *TxManager) *BatchInserter {
	return &BatchInserter{txManager: txManager}
}

// CopyFromSlice inserts rows; each row holds values in columns order.
func (b *BatchInserter) CopyFromSlice(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	t := b.txManager.GetTx(ctx)
	if t == nil {
		return 0, fmt.Errorf("CopyFromSlice requires transaction context")
	}

	n, err := t.CopyFrom(ctx, pgx.Identifier{table}, columns, pgx.CopyFromRows(rows))
	if err != nil {
		return n, TranslateError(fmt.Errorf("copy into %s: %w", table, err), table, nil)
	}
	return n, nil
}

// BatchExecutor sends several statements in one round-trip.
type BatchExecutor struct {
	txManager *TxManager
}

// NewBatchExecutor creates a new batch executor.
func NewBatchExecutor(txManager *TxManager) *BatchExecutor {
	return &BatchExecutor{txManager: txManager}
}

// BatchQuery represents a query in a batch.
type BatchQuery struct {
	SQL  string
	Args []any
}

// QueueBuilt adds a squirrel statement to the batch.
func QueueBuilt(queries []BatchQuery, b sq.Sqlizer) ([]BatchQuery, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return queries, err
	}
	return append(queries, BatchQuery{SQL: query, Args: args}), nil
}

// ExecuteBatch executes queries in order and fails on the first error.
func (e *BatchExecutor) ExecuteBatch(ctx context.Context, queries []BatchQuery) error {
	if len(queries) == 0 {
		return nil
	}
	t := e.txManager.GetTx(ctx)
	if t == nil {
		return fmt.Errorf("ExecuteBatch requires transaction context")
	}

	batch := &pgx.Batch{}
	for _, q := range queries {
		batch.Queue(q.SQL, q.Args...)
	}

	results := t.SendBatch(ctx, batch)
	defer results.Close()

	for i := range queries {
		if _, err := results.Exec(); err != nil {
			return TranslateError(fmt.Errorf("batch query %d failed: %w", i, err), "batch", nil)
		}
	}
	return nil
}
