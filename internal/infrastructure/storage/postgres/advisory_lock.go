package postgres

import (
	"context"
	"fmt"

	"costledger/internal/core/entity"
	"costledger/internal/domain/registers/stock"
)

// AdvisoryLocker serializes work on (item, warehouse) scopes with
// transaction-scoped advisory locks. Locks are released by commit or
// rollback, so the returned release func does nothing.
type AdvisoryLocker struct {
	txManager *TxManager
}

var _ stock.ScopeLocker = (*AdvisoryLocker)(nil)

// NewAdvisoryLocker creates a locker bound to the transaction manager.
func NewAdvisoryLocker(txManager *TxManager) *AdvisoryLocker {
	return &AdvisoryLocker{txManager: txManager}
}

// Acquire implements stock.ScopeLocker. It must run inside a transaction.
func (l *AdvisoryLocker) Acquire(ctx context.Context, scopes []entity.Scope) (func(context.Context), error) {
	t := l.txManager.GetTx(ctx)
	if t == nil {
		return nil, fmt.Errorf("advisory lock requires transaction context")
	}

	for _, scope := range stock.NormalizeScopes(scopes) {
		// hashtextextended keeps the key space 64-bit.
		_, err := t.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtextextended($1, 0))", "stock:"+scope.String())
		if err != nil {
			return nil, TranslateError(fmt.Errorf("lock scope %s: %w", scope, err), "stock scope", scope.String())
		}
	}
	return func(context.Context) {}, nil
}
