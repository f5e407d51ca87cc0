package cache

import (
	"math"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/TigerSong/OAP/internal/handle"
)

// Policy decides which retained handles to drop. The cache calls it under
// its own lock, so implementations need no synchronization.
//
// Victims never returns an entry for which pinned reports true. A pinned
// entry chosen by the policy stays retained until its last reference is
// released, at which point the cache asks again.
type Policy interface {
	Add(id handle.Identity, now time.Time)
	Touch(id handle.Identity, now time.Time)
	Remove(id handle.Identity)
	// Expired reports whether a retained entry must no longer be served.
	Expired(id handle.Identity, now time.Time) bool
	Victims(now time.Time, pinned func(handle.Identity) bool) []handle.Identity
}

// Unbounded retains every handle until it is invalidated.
func Unbounded() Policy { return unbounded{} }

type unbounded struct{}

func (unbounded) Add(handle.Identity, time.Time)                                  {}
func (unbounded) Touch(handle.Identity, time.Time)                                {}
func (unbounded) Remove(handle.Identity)                                          {}
func (unbounded) Expired(handle.Identity, time.Time) bool                         { return false }
func (unbounded) Victims(time.Time, func(handle.Identity) bool) []handle.Identity { return nil }

// LRU retains at most capacity handles, dropping the least recently used
// first. Handles in use are passed over, so the cache can exceed capacity
// until they are released. A capacity below 1 is treated as 1.
func LRU(capacity int) Policy {
	capacity = max(capacity, 1)
	// The list only tracks recency. Capacity is enforced in Victims so
	// pinned entries can be passed over instead of evicted on Add.
	order, err := simplelru.NewLRU[handle.Identity, struct{}](math.MaxInt, nil)
	if err != nil {
		panic(err) // only fails for a non-positive size
	}
	return &lru{capacity: capacity, order: order}
}

type lru struct {
	capacity int
	order    *simplelru.LRU[handle.Identity, struct{}]
}

func (p *lru) Add(id handle.Identity, _ time.Time)     { p.order.Add(id, struct{}{}) }
func (p *lru) Touch(id handle.Identity, _ time.Time)   { p.order.Get(id) }
func (p *lru) Remove(id handle.Identity)               { p.order.Remove(id) }
func (p *lru) Expired(handle.Identity, time.Time) bool { return false }

func (p *lru) Victims(_ time.Time, pinned func(handle.Identity) bool) []handle.Identity {
	excess := p.order.Len() - p.capacity
	if excess <= 0 {
		return nil
	}
	var out []handle.Identity
	for _, id := range p.order.Keys() { // oldest first
		if len(out) == excess {
			break
		}
		if !pinned(id) {
			out = append(out, id)
		}
	}
	return out
}

// TTL drops handles older than d, measured from when they were loaded.
// Expired entries are never served; they are removed lazily on lookup or
// by a periodic Sweep.
func TTL(d time.Duration) Policy {
	return &ttl{ttl: d, loaded: make(map[handle.Identity]time.Time)}
}

type ttl struct {
	ttl    time.Duration
	loaded map[handle.Identity]time.Time
}

func (p *ttl) Add(id handle.Identity, now time.Time) { p.loaded[id] = now }
func (p *ttl) Touch(handle.Identity, time.Time)      {}
func (p *ttl) Remove(id handle.Identity)             { delete(p.loaded, id) }

func (p *ttl) Expired(id handle.Identity, now time.Time) bool {
	at, ok := p.loaded[id]
	return ok && now.Sub(at) >= p.ttl
}

func (p *ttl) Victims(now time.Time, pinned func(handle.Identity) bool) []handle.Identity {
	var out []handle.Identity
	for id := range p.loaded {
		if p.Expired(id, now) && !pinned(id) {
			out = append(out, id)
		}
	}
	return out
}
