// Package cache provides caching infrastructure with PostgreSQL LISTEN/NOTIFY support.
package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"costledger/internal/core/entity"
	"costledger/internal/core/id"
	"costledger/internal/domain/refdata"
	"costledger/pkg/logger"
)

// NotifyChannel is the channel the reference data triggers notify on.
// The payload is the changed table name.
const NotifyChannel = "refdata_changed"

// RefdataCache is a read-through cache over a refdata.Provider. Entries are
// dropped when a NOTIFY on NotifyChannel names their table, so there is no TTL.
type RefdataCache struct {
	source refdata.Provider
	pool   *pgxpool.Pool

	mu         sync.RWMutex
	items      map[id.ID]*entity.Item
	locations  map[id.ID]*entity.Location
	accounts   map[entity.AccountRole]id.ID
	warehouses []entity.Warehouse

	lifecycleMu sync.Mutex
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	started     bool
}

var _ refdata.Provider = (*RefdataCache)(nil)

// NewRefdataCache wraps source. pool may be nil, in which case Start is a
// no-op and the cache only empties through Invalidate.
func NewRefdataCache(source refdata.Provider, pool *pgxpool.Pool) *RefdataCache {
	c := &RefdataCache{source: source, pool: pool}
	c.reset("")
	return c
}

// GetItem implements refdata.ItemCatalog.
func (c *RefdataCache) GetItem(ctx context.Context, itemID id.ID) (*entity.Item, error) {
	c.mu.RLock()
	item, ok := c.items[itemID]
	c.mu.RUnlock()
	if ok {
		return item, nil
	}

	item, err := c.source.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.items[itemID] = item
	c.mu.Unlock()
	return item, nil
}

// GetLocation implements refdata.LocationDirectory.
func (c *RefdataCache) GetLocation(ctx context.Context, locationID id.ID) (*entity.Location, error) {
	c.mu.RLock()
	loc, ok := c.locations[locationID]
	c.mu.RUnlock()
	if ok {
		return loc, nil
	}

	loc, err := c.source.GetLocation(ctx, locationID)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.locations[locationID] = loc
	c.mu.Unlock()
	return loc, nil
}

// ListWarehouses implements refdata.LocationDirectory.
func (c *RefdataCache) ListWarehouses(ctx context.Context) ([]entity.Warehouse, error) {
	c.mu.RLock()
	cached := c.warehouses
	c.mu.RUnlock()
	if cached != nil {
		return append([]entity.Warehouse(nil), cached...), nil
	}

	list, err := c.source.ListWarehouses(ctx)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []entity.Warehouse{}
	}
	c.mu.Lock()
	c.warehouses = list
	c.mu.Unlock()
	return append([]entity.Warehouse(nil), list...), nil
}

// AccountFor implements refdata.GLSettings. Missing mappings are not cached
// so a configuration fix takes effect on the next transition.
func (c *RefdataCache) AccountFor(ctx context.Context, role entity.AccountRole) (id.ID, bool, error) {
	c.mu.RLock()
	coaID, ok := c.accounts[role]
	c.mu.RUnlock()
	if ok {
		return coaID, true, nil
	}

	coaID, ok, err := c.source.AccountFor(ctx, role)
	if err != nil || !ok {
		return coaID, ok, err
	}
	c.mu.Lock()
	c.accounts[role] = coaID
	c.mu.Unlock()
	return coaID, true, nil
}

// Invalidate drops the entries of one table; an unknown or empty name drops everything.
func (c *RefdataCache) Invalidate(table string) {
	c.reset(strings.TrimSpace(table))
}

func (c *RefdataCache) reset(table string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch table {
	case "items":
		c.items = make(map[id.ID]*entity.Item)
	case "locations":
		c.locations = make(map[id.ID]*entity.Location)
	case "warehouses":
		c.warehouses = nil
		c.locations = make(map[id.ID]*entity.Location)
	case "gl_settings":
		c.accounts = make(map[entity.AccountRole]id.ID)
	default:
		c.items = make(map[id.ID]*entity.Item)
		c.locations = make(map[id.ID]*entity.Location)
		c.accounts = make(map[entity.AccountRole]id.ID)
		c.warehouses = nil
	}
}

// Start begins listening for NOTIFY events.
func (c *RefdataCache) Start(ctx context.Context) {
	if c.pool == nil {
		return
	}

	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()
	if c.started {
		return
	}
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.started = true

	c.wg.Add(1)
	go c.listenLoop()
	logger.Info(ctx, "refdata cache started")
}

// Stop stops the listener and waits for it to exit.
func (c *RefdataCache) Stop() {
	c.lifecycleMu.Lock()
	if !c.started {
		c.lifecycleMu.Unlock()
		return
	}
	cancel := c.cancel
	c.started = false
	c.cancel = nil
	c.lifecycleMu.Unlock()

	cancel()
	c.wg.Wait()
	logger.Info(context.Background(), "refdata cache stopped")
}

func (c *RefdataCache) listenLoop() {
	defer c.wg.Done()

	for c.ctx.Err() == nil {
		conn, err := c.pool.Acquire(c.ctx)
		if err != nil {
			logger.Error(c.ctx, "failed to acquire connection for LISTEN", "error", err)
			sleep(c.ctx, time.Second)
			continue
		}

		if _, err = conn.Exec(c.ctx, "LISTEN "+NotifyChannel); err != nil {
			logger.Error(c.ctx, "failed to LISTEN", "error", err)
			conn.Release()
			sleep(c.ctx, time.Second)
			continue
		}

		// Anything may have changed while no connection was listening.
		c.reset("")
		c.waitForNotifications(conn)
		conn.Release()
	}
}

func (c *RefdataCache) waitForNotifications(conn *pgxpool.Conn) {
	for {
		notification, err := conn.Conn().WaitForNotification(c.ctx)
		if err != nil {
			if c.ctx.Err() == nil {
				logger.Warn(c.ctx, "refdata listener lost its connection", "error", err)
			}
			return
		}

		logger.Debug(c.ctx, "refdata changed", "table", notification.Payload)
		c.Invalidate(notification.Payload)
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
