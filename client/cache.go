package client

import (
	"context"
	"sync"
	"time"

	"github.com/lawnetwork/lawnet/core"
	"github.com/lawnetwork/lawnet/core/access"
)

type (
	accessChecker interface {
		CheckAccess(ctx context.Context, key access.Key) (GrantInfo, error)
	}

	featureKey struct {
		Feature   string
		FeatureID string
	}

	cachedGrant struct {
		Expiry  time.Time
		Message string
	}

	// ChangeFunc is called whenever the cached access state of a
	// tracked item flips. It must not block.
	ChangeFunc func(feature, featureID string, allowed bool)

	// AccessCache keeps the viewer's active grants locally so content
	// modules can gate rendering without a network round-trip per
	// check. Only positive grants are stored; absence means locked.
	// A single timer armed at the nearest cached expiry triggers a
	// reconciliation pass against the store.
	AccessCache struct {
		api      accessChecker
		subject  string
		onChange ChangeFunc
		logger   core.Logger

		mu      sync.Mutex
		tracked map[featureKey]struct{}
		grants  map[featureKey]cachedGrant
		timer   *time.Timer
		closed  bool

		now func() time.Time
	}
)

func NewAccessCache(api accessChecker, subject string, onChange ChangeFunc, logger core.Logger) *AccessCache {
	if onChange == nil {
		onChange = func(string, string, bool) {}
	}
	if logger == nil {
		logger = core.NopLogger{}
	}
	return &AccessCache{
		api:      api,
		subject:  subject,
		onChange: onChange,
		logger:   logger,
		tracked:  make(map[featureKey]struct{}),
		grants:   make(map[featureKey]cachedGrant),
		now:      time.Now,
	}
}

// Track registers an item for cache maintenance and reconciles it
// immediately so the first Allowed call answers from fresh state.
func (c *AccessCache) Track(ctx context.Context, feature, featureID string) error {
	fk := featureKey{Feature: feature, FeatureID: featureID}

	c.mu.Lock()
	c.tracked[fk] = struct{}{}
	c.mu.Unlock()

	return c.reconcileKey(ctx, fk)
}

// Allowed answers from the local cache only. A cached grant whose
// expiry has passed counts as locked even before the timer fires.
func (c *AccessCache) Allowed(feature, featureID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	g, ok := c.grants[featureKey{Feature: feature, FeatureID: featureID}]
	return ok && c.now().Before(g.Expiry)
}

// Grant returns the cached grant details for an item, if any.
func (c *AccessCache) Grant(feature, featureID string) (expiry time.Time, message string, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	g, found := c.grants[featureKey{Feature: feature, FeatureID: featureID}]
	if !found || !c.now().Before(g.Expiry) {
		return time.Time{}, "", false
	}
	return g.Expiry, g.Message, true
}

// Reconcile re-checks every tracked item against the store and updates
// the cache to match. The store's answer always wins.
func (c *AccessCache) Reconcile(ctx context.Context) error {
	c.mu.Lock()
	keys := make([]featureKey, 0, len(c.tracked))
	for fk := range c.tracked {
		keys = append(keys, fk)
	}
	c.mu.Unlock()

	var firstErr error
	for _, fk := range keys {
		if err := c.reconcileKey(ctx, fk); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Refocus runs a full reconciliation; call it when the application
// regains focus or connectivity, since revoke events may have been
// missed while away.
func (c *AccessCache) Refocus(ctx context.Context) error {
	return c.Reconcile(ctx)
}

// HandleEvent applies a pushed grant/revoke event. Grants are applied
// optimistically and then confirmed with a store read, so a spoofed or
// stale event cannot durably unlock content.
func (c *AccessCache) HandleEvent(ctx context.Context, ev access.Event) {
	fk := featureKey{Feature: ev.Feature, FeatureID: ev.FeatureID}

	switch ev.Type {
	case access.EventRevoke:
		c.clear(fk)
	case access.EventGrant:
		if ev.Expiry != nil {
			c.set(fk, cachedGrant{Expiry: *ev.Expiry, Message: ev.Message})
		}
		if err := c.reconcileKey(ctx, fk); err != nil {
			c.logger.Warn("access cache: confirming grant event", "key", fk, "err", err)
		}
	}
}

// Poll reconciles on a fixed interval until the context is done. Used
// as a fallback when the event stream is unavailable.
func (c *AccessCache) Poll(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Reconcile(ctx); err != nil {
				c.logger.Warn("access cache: polling reconciliation", "err", err)
			}
		}
	}
}

// Close stops the expiry timer. The cache remains readable.
func (c *AccessCache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *AccessCache) reconcileKey(ctx context.Context, fk featureKey) error {
	info, err := c.api.CheckAccess(ctx, access.Key{Subject: c.subject, Feature: fk.Feature, FeatureID: fk.FeatureID})
	if err != nil {
		return err
	}
	if info.Allowed && info.Expiry != nil {
		c.set(fk, cachedGrant{Expiry: *info.Expiry, Message: info.Message})
	} else {
		c.clear(fk)
	}
	return nil
}

func (c *AccessCache) set(fk featureKey, g cachedGrant) {
	c.mu.Lock()
	c.tracked[fk] = struct{}{}
	prev, had := c.grants[fk]
	c.grants[fk] = g
	wasAllowed := had && c.now().Before(prev.Expiry)
	isAllowed := c.now().Before(g.Expiry)
	c.rescheduleLocked()
	c.mu.Unlock()

	if wasAllowed != isAllowed {
		c.onChange(fk.Feature, fk.FeatureID, isAllowed)
	}
}

func (c *AccessCache) clear(fk featureKey) {
	c.mu.Lock()
	prev, had := c.grants[fk]
	delete(c.grants, fk)
	wasAllowed := had && c.now().Before(prev.Expiry)
	c.rescheduleLocked()
	c.mu.Unlock()

	if wasAllowed {
		c.onChange(fk.Feature, fk.FeatureID, false)
	}
}

// rescheduleLocked re-arms the single expiry timer at the nearest
// cached expiry. Expiries landing between now and the timer firing are
// covered by Allowed's own clock check; the timer only drives the
// follow-up reconciliation.
func (c *AccessCache) rescheduleLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.closed || len(c.grants) == 0 {
		return
	}

	var nearest time.Time
	for _, g := range c.grants {
		if nearest.IsZero() || g.Expiry.Before(nearest) {
			nearest = g.Expiry
		}
	}
	d := nearest.Sub(c.now())
	if d < 0 {
		d = 0
	}
	c.timer = time.AfterFunc(d, c.onExpiryTimer)
}

func (c *AccessCache) onExpiryTimer() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	now := c.now()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	expired := make([]featureKey, 0, 1)
	for fk, g := range c.grants {
		if !now.Before(g.Expiry) {
			expired = append(expired, fk)
		}
	}
	c.mu.Unlock()

	for _, fk := range expired {
		if err := c.reconcileKey(ctx, fk); err != nil {
			c.logger.Warn("access cache: expiry reconciliation", "key", fk, "err", err)
			// Keep the lockout: drop the stale entry even if the
			// confirming read failed.
			c.clear(fk)
		}
	}

	c.mu.Lock()
	c.rescheduleLocked()
	c.mu.Unlock()
}
