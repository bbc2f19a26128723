// Package notifications keeps a bounded, deduplicated local cache of
// notification events for offline display. Persistence is best-effort; the
// in-memory state is authoritative for the current client lifetime.
package notifications

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/buildflow/site-client/internal/domain"
	"github.com/buildflow/site-client/internal/observability"
	"github.com/buildflow/site-client/internal/store"
)

// DefaultRetention caps how many events the cache keeps.
const DefaultRetention = 50

// Cache deduplicates and persists notification events.
type Cache struct {
	backend   store.Store
	logger    *zap.Logger
	metrics   *observability.Metrics
	alerter   Alerter
	retention int

	mu      sync.Mutex
	entries []domain.NotificationEvent
}

// Option customizes a Cache.
type Option func(*Cache)

// WithRetention overrides the retention cap.
func WithRetention(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.retention = n
		}
	}
}

// WithAlerter sets the best-effort alert hook fired for newly added events.
func WithAlerter(a Alerter) Option {
	return func(c *Cache) { c.alerter = a }
}

// NewCache loads any persisted events and returns the cache. A load failure
// is logged and yields an empty cache. Methods are safe for concurrent use;
// channel callbacks and UI reads may land on different goroutines.
func NewCache(ctx context.Context, backend store.Store, logger *zap.Logger, metrics *observability.Metrics, opts ...Option) *Cache {
	c := &Cache{
		backend:   backend,
		logger:    logger,
		metrics:   metrics,
		retention: DefaultRetention,
	}
	for _, opt := range opts {
		opt(c)
	}

	raw, ok, err := backend.Get(ctx, store.KeyNotifications)
	if err != nil {
		metrics.RecordStorageError()
		logger.Warn("failed to load notification cache", zap.Error(err))
		return c
	}
	if ok {
		if err := json.Unmarshal(raw, &c.entries); err != nil {
			logger.Warn("discarding corrupt notification cache", zap.Error(err))
			c.entries = nil
		}
	}
	return c
}

// Add inserts the event unless an entry with the same dedupe key already
// exists, evicts the oldest entries beyond the retention cap, and persists.
// Returns true when the event was newly inserted.
func (c *Cache) Add(ctx context.Context, event domain.NotificationEvent) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.addLocked(ctx, event)
}

func (c *Cache) addLocked(ctx context.Context, event domain.NotificationEvent) bool {
	key := event.DedupeKey()
	for _, existing := range c.entries {
		if existing.DedupeKey() == key {
			return false
		}
	}

	c.entries = append(c.entries, event)
	sort.SliceStable(c.entries, func(i, j int) bool {
		return c.entries[i].CreatedAt.Before(c.entries[j].CreatedAt)
	})
	if over := len(c.entries) - c.retention; over > 0 {
		c.entries = append([]domain.NotificationEvent(nil), c.entries[over:]...)
	}
	c.persist(ctx)

	if c.alerter != nil {
		if err := c.alerter.Alert(event); err != nil {
			c.logger.Debug("alert failed", zap.Error(err))
		}
	}
	return true
}

// AddAll merges a batch (for example REST-polled history) through the dedupe
// key and returns how many events were new. Arrival order does not matter.
func (c *Cache) AddAll(ctx context.Context, events []domain.NotificationEvent) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	added := 0
	for _, event := range events {
		if c.addLocked(ctx, event) {
			added++
		}
	}
	return added
}

// MarkAsRead flips the read flag for one event and persists.
func (c *Cache) MarkAsRead(ctx context.Context, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.entries {
		if c.entries[i].ID == id && !c.entries[i].IsRead {
			c.entries[i].IsRead = true
			c.persist(ctx)
			return
		}
	}
}

// MarkAllAsRead flips the read flag on every event and persists.
func (c *Cache) MarkAllAsRead(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	changed := false
	for i := range c.entries {
		if !c.entries[i].IsRead {
			c.entries[i].IsRead = true
			changed = true
		}
	}
	if changed {
		c.persist(ctx)
	}
}

// UnreadCount scans the bounded cache for unread entries.
func (c *Cache) UnreadCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	count := 0
	for _, entry := range c.entries {
		if !entry.IsRead {
			count++
		}
	}
	return count
}

// List returns the cached events, newest first.
func (c *Cache) List() []domain.NotificationEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.NotificationEvent, len(c.entries))
	for i, entry := range c.entries {
		out[len(c.entries)-1-i] = entry
	}
	return out
}

// Len returns the number of cached events.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Clear drops all entries, in memory and persisted.
func (c *Cache) Clear(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = nil
	if err := c.backend.Delete(ctx, store.KeyNotifications); err != nil {
		c.metrics.RecordStorageError()
		c.logger.Warn("failed to clear notification cache", zap.Error(err))
	}
}

func (c *Cache) persist(ctx context.Context) {
	raw, err := json.Marshal(c.entries)
	if err != nil {
		c.logger.Warn("failed to encode notification cache", zap.Error(err))
		return
	}
	if err := c.backend.Set(ctx, store.KeyNotifications, raw); err != nil {
		c.metrics.RecordStorageError()
		c.logger.Warn("failed to persist notification cache", zap.Error(err))
	}
}
