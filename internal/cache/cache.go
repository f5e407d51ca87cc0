// Package cache shares parsed file handles between scan tasks.
//
// Handles are keyed by handle.Identity. At most one load per identity is in
// flight at a time; concurrent callers wait for it and share the result. A
// loaded handle is retained until the eviction Policy drops it or it is
// invalidated. Load failures are handed to the waiting callers and then
// forgotten, so the next Get loads again.
//
// Callers hold a Ref while they use a handle. A referenced handle is never
// torn down: eviction waits for the last Release.
package cache

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/TigerSong/OAP/internal/callgroup"
	"github.com/TigerSong/OAP/internal/handle"
	"github.com/TigerSong/OAP/internal/logging"
)

// LoadError is returned by Get when the loader fails.
type LoadError struct {
	ID  handle.Identity
	Err error
}

func (e *LoadError) Error() string { return fmt.Sprintf("load %s: %v", e.ID, e.Err) }
func (e *LoadError) Unwrap() error { return e.Err }

// Options tunes a Cache. The zero value is usable.
type Options struct {
	// LoadTimeout bounds a single load. Zero means no bound beyond the
	// loader's own.
	LoadTimeout time.Duration
	// OnTeardown is called once for every handle the cache lets go of,
	// after its last Release. State derived from the handle's contents
	// belongs here: a reload of the same identity may see a changed file.
	OnTeardown func(handle.Handle)
}

// Stats is a point-in-time view of cache activity.
type Stats struct {
	Entries       int
	Hits          int64
	Misses        int64
	Loads         int64
	LoadFailures  int64
	Evictions     int64
	Invalidations int64
}

type entry struct {
	id   handle.Identity
	h    handle.Handle
	refs int
	// detached entries are no longer reachable through the cache. They are
	// torn down when refs reaches zero.
	detached bool
	closed   bool
}

// build tracks a load in flight so Invalidate can mark its result stale.
type build struct {
	stale bool
}

// Cache is safe for concurrent use.
type Cache struct {
	loader handle.Loader
	policy Policy
	opts   Options
	logger *slog.Logger
	now    func() time.Time

	group callgroup.Group[handle.Identity, *entry]

	mu       sync.Mutex
	entries  map[handle.Identity]*entry
	building map[handle.Identity]*build
	byPath   map[string]map[handle.Identity]struct{}

	hits, misses, loads, loadFailures, evictions, invalidations atomic.Int64
}

// New creates a cache loading through loader. A nil policy retains
// everything.
func New(loader handle.Loader, policy Policy, logger *slog.Logger) *Cache {
	return NewWithOptions(loader, policy, Options{}, logger)
}

// NewWithOptions is New with explicit options.
func NewWithOptions(loader handle.Loader, policy Policy, opts Options, logger *slog.Logger) *Cache {
	if policy == nil {
		policy = Unbounded()
	}
	return &Cache{
		loader:   loader,
		policy:   policy,
		opts:     opts,
		logger:   logging.Component(logger, "handle-cache"),
		now:      time.Now,
		entries:  make(map[handle.Identity]*entry),
		building: make(map[handle.Identity]*build),
		byPath:   make(map[string]map[handle.Identity]struct{}),
	}
}

// Ref is a caller's reference to a cached handle. Release it when done;
// Release is idempotent.
type Ref struct {
	c        *Cache
	e        *entry
	released atomic.Bool
}

func (r *Ref) Handle() handle.Handle { return r.e.h }

func (r *Ref) Release() {
	if r.released.Swap(true) {
		return
	}
	r.c.release(r.e)
}

// Get returns a reference to the handle for f, loading it if needed. If
// ctx is cancelled while waiting for a load, Get returns ctx.Err() and the
// load carries on for any other waiters.
func (c *Cache) Get(ctx context.Context, f handle.File) (*Ref, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	id := f.Identity()

	for {
		c.mu.Lock()
		ref, teardown := c.lookupLocked(id)
		c.mu.Unlock()
		c.teardown(teardown)
		if ref != nil {
			c.hits.Add(1)
			return ref, nil
		}
		c.misses.Add(1)

		ch := c.group.DoChan(id, func() (*entry, error) {
			// Detach from the initiator's context so that cancelling one
			// caller does not abort the shared load.
			return c.load(context.WithoutCancel(ctx), f)
		})

		select {
		case res := <-ch:
			if res.Err != nil {
				return nil, res.Err
			}
			c.mu.Lock()
			ref := c.acquireLocked(res.Val)
			c.mu.Unlock()
			if ref != nil {
				return ref, nil
			}
			// Torn down between load and acquire. Look again.
		case <-ctx.Done():
			go c.abandon(ch)
			return nil, ctx.Err()
		}
	}
}

// lookupLocked returns a reference to a live retained entry. An expired
// entry is dropped and reported as a miss.
func (c *Cache) lookupLocked(id handle.Identity) (*Ref, []*entry) {
	e, ok := c.entries[id]
	if !ok {
		return nil, nil
	}
	now := c.now()
	if c.policy.Expired(id, now) {
		c.evictions.Add(1)
		return nil, c.dropLocked(e)
	}
	c.policy.Touch(id, now)
	return c.acquireLocked(e), nil
}

func (c *Cache) acquireLocked(e *entry) *Ref {
	if e.closed {
		return nil
	}
	e.refs++
	return &Ref{c: c, e: e}
}

// abandon consumes a load result nobody is waiting for, so an unretained
// handle still gets torn down.
func (c *Cache) abandon(ch <-chan callgroup.Result[*entry]) {
	res := <-ch
	if res.Err != nil {
		return
	}
	c.mu.Lock()
	var teardown []*entry
	if e := res.Val; e.detached && e.refs == 0 && !e.closed {
		e.closed = true
		teardown = append(teardown, e)
	}
	c.mu.Unlock()
	c.teardown(teardown)
}

func (c *Cache) load(ctx context.Context, f handle.File) (*entry, error) {
	id := f.Identity()
	b := &build{}
	c.mu.Lock()
	c.building[id] = b
	c.mu.Unlock()

	if c.opts.LoadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.LoadTimeout)
		defer cancel()
	}
	start := time.Now()
	h, err := c.loader.Load(ctx, f)

	c.mu.Lock()
	delete(c.building, id)
	if err != nil {
		c.mu.Unlock()
		c.loadFailures.Add(1)
		c.logger.Warn("handle load failed", "path", f.Path, "format", f.Format, "error", err)
		return nil, &LoadError{ID: id, Err: err}
	}
	c.loads.Add(1)
	e := &entry{id: id, h: h}
	var teardown []*entry
	if b.stale {
		e.detached = true
	} else {
		teardown = c.insertLocked(e)
	}
	c.mu.Unlock()
	c.teardown(teardown)

	c.logger.Debug("handle loaded",
		"path", f.Path,
		"format", f.Format,
		"rows", h.TotalRowCount(),
		"retained", !b.stale,
		"duration", time.Since(start),
	)
	return e, nil
}

func (c *Cache) insertLocked(e *entry) []*entry {
	c.entries[e.id] = e
	ids := c.byPath[e.id.Path]
	if ids == nil {
		ids = make(map[handle.Identity]struct{})
		c.byPath[e.id.Path] = ids
	}
	ids[e.id] = struct{}{}
	c.policy.Add(e.id, c.now())
	// The new entry's waiters have not acquired it yet.
	return c.enforceLocked(e.id)
}

// enforceLocked evicts whatever the policy selects now, never keep.
func (c *Cache) enforceLocked(keep ...handle.Identity) []*entry {
	pinned := func(id handle.Identity) bool {
		return c.pinnedLocked(id) || slices.Contains(keep, id)
	}
	var teardown []*entry
	for _, id := range c.policy.Victims(c.now(), pinned) {
		if e, ok := c.entries[id]; ok && !pinned(id) {
			c.evictions.Add(1)
			teardown = append(teardown, c.dropLocked(e)...)
		}
	}
	return teardown
}

func (c *Cache) pinnedLocked(id handle.Identity) bool {
	e, ok := c.entries[id]
	return ok && e.refs > 0
}

// dropLocked makes e unreachable. It returns e for teardown if nobody holds
// it, otherwise teardown happens on the last Release.
func (c *Cache) dropLocked(e *entry) []*entry {
	delete(c.entries, e.id)
	if ids := c.byPath[e.id.Path]; ids != nil {
		delete(ids, e.id)
		if len(ids) == 0 {
			delete(c.byPath, e.id.Path)
		}
	}
	c.policy.Remove(e.id)
	e.detached = true
	if e.refs > 0 {
		return nil
	}
	e.closed = true
	return []*entry{e}
}

func (c *Cache) release(e *entry) {
	c.mu.Lock()
	e.refs--
	var teardown []*entry
	if e.refs == 0 {
		if e.detached {
			if !e.closed {
				e.closed = true
				teardown = append(teardown, e)
			}
		} else {
			teardown = c.enforceLocked()
		}
	}
	c.mu.Unlock()
	c.teardown(teardown)
}

// Invalidate drops the handle for id. Holders keep using it until they
// release it. A load in flight for id still delivers to its waiters but
// its result is not retained.
func (c *Cache) Invalidate(id handle.Identity) {
	c.mu.Lock()
	teardown := c.invalidateLocked(id)
	c.mu.Unlock()
	c.teardown(teardown)
}

func (c *Cache) invalidateLocked(id handle.Identity) []*entry {
	hit := false
	if b, ok := c.building[id]; ok {
		b.stale = true
		hit = true
	}
	var teardown []*entry
	if e, ok := c.entries[id]; ok {
		teardown = c.dropLocked(e)
		hit = true
	}
	if hit {
		c.invalidations.Add(1)
	}
	return teardown
}

// InvalidatePath invalidates every identity for path, whatever its schema
// or format.
func (c *Cache) InvalidatePath(path string) {
	c.mu.Lock()
	var ids []handle.Identity
	for id := range c.byPath[path] {
		ids = append(ids, id)
	}
	for id := range c.building {
		if id.Path == path {
			ids = append(ids, id)
		}
	}
	var teardown []*entry
	for _, id := range ids {
		teardown = append(teardown, c.invalidateLocked(id)...)
	}
	c.mu.Unlock()
	c.teardown(teardown)

	if len(ids) > 0 {
		c.logger.Debug("path invalidated", "path", path, "identities", len(ids))
	}
}

// Sweep evicts what the policy considers stale and returns how many
// entries were dropped. Entries in use are left for their last Release.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	teardown := c.enforceLocked()
	c.mu.Unlock()
	c.teardown(teardown)
	return len(teardown)
}

// Len returns the number of retained handles.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) Stats() Stats {
	return Stats{
		Entries:       c.Len(),
		Hits:          c.hits.Load(),
		Misses:        c.misses.Load(),
		Loads:         c.loads.Load(),
		LoadFailures:  c.loadFailures.Load(),
		Evictions:     c.evictions.Load(),
		Invalidations: c.invalidations.Load(),
	}
}

// Close drops every retained handle. Handles still referenced are torn
// down on their last Release.
func (c *Cache) Close() error {
	c.mu.Lock()
	var teardown []*entry
	for _, e := range c.entries {
		teardown = append(teardown, c.dropLocked(e)...)
	}
	c.mu.Unlock()
	c.teardown(teardown)
	return nil
}

// teardown runs OnTeardown and closes handles that hold resources. Called
// without the lock.
func (c *Cache) teardown(entries []*entry) {
	for _, e := range entries {
		if c.opts.OnTeardown != nil {
			c.opts.OnTeardown(e.h)
		}
		closer, ok := e.h.(io.Closer)
		if !ok {
			continue
		}
		if err := closer.Close(); err != nil {
			c.logger.Warn("handle close failed", "identity", e.id, "error", err)
		}
	}
}
