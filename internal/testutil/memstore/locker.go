package memstore

import (
	"context"
	"slices"
	"sync"

	"costledger/internal/core/entity"
	"costledger/internal/domain/registers/stock"
)

// ScopeLocker is an in-process stock.ScopeLocker. Acquire takes all requested
// scopes at once or waits; it never holds a partial set. Every successful
// acquisition is recorded.
type ScopeLocker struct {
	mu       sync.Mutex
	held     map[entity.Scope]chan struct{}
	acquired [][]entity.Scope
}

var _ stock.ScopeLocker = (*ScopeLocker)(nil)

// NewScopeLocker creates a locker with nothing held.
func NewScopeLocker() *ScopeLocker {
	return &ScopeLocker{held: make(map[entity.Scope]chan struct{})}
}

// Acquire implements stock.ScopeLocker. It waits until none of scopes is
// held or ctx is done.
func (l *ScopeLocker) Acquire(ctx context.Context, scopes []entity.Scope) (func(context.Context), error) {
	scopes = stock.NormalizeScopes(scopes)
	for {
		l.mu.Lock()
		busy := l.busy(scopes)
		if busy == nil {
			for _, sc := range scopes {
				l.held[sc] = make(chan struct{})
			}
			l.acquired = append(l.acquired, scopes)
			l.mu.Unlock()
			return l.releaser(scopes), nil
		}
		l.mu.Unlock()

		select {
		case <-busy:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (l *ScopeLocker) busy(scopes []entity.Scope) chan struct{} {
	for _, sc := range scopes {
		if ch, ok := l.held[sc]; ok {
			return ch
		}
	}
	return nil
}

func (l *ScopeLocker) releaser(scopes []entity.Scope) func(context.Context) {
	var once sync.Once
	return func(context.Context) {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			for _, sc := range scopes {
				close(l.held[sc])
				delete(l.held, sc)
			}
		})
	}
}

// Held reports whether scope is currently locked.
func (l *ScopeLocker) Held(scope entity.Scope) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.held[scope]
	return ok
}

// Acquired returns the scope sets of every successful Acquire, in order.
func (l *ScopeLocker) Acquired() [][]entity.Scope {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([][]entity.Scope, len(l.acquired))
	for i, s := range l.acquired {
		out[i] = slices.Clone(s)
	}
	return out
}

// Reset forgets recorded acquisitions.
func (l *ScopeLocker) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.acquired = nil
}
