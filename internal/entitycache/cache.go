// Package entitycache memoizes the session identity and entities fetched by
// id, collapsing concurrent fetches of the same key into one network call.
package entitycache

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"apiclient/internal/dispatcher"
	"apiclient/internal/endpoint"
	"apiclient/internal/wire"
)

// AuthState is the session flag gating identity fetches
type AuthState int32

const (
	StateUnknown AuthState = iota
	StateAuthenticated
	StateAnonymous
)

// String returns the state name
func (s AuthState) String() string {
	switch s {
	case StateAuthenticated:
		return "authenticated"
	case StateAnonymous:
		return "anonymous"
	default:
		return "unknown"
	}
}

// Fetcher issues the lookups behind cache misses
type Fetcher interface {
	Do(ctx context.Context, ep endpoint.Endpoint, opts ...dispatcher.CallOption) (json.RawMessage, error)
}

// Cache holds the identity and by-id snapshots of one session.
// Reset starts a new generation; fetches begun under an older
// generation never write into the newer one.
type Cache struct {
	fetcher Fetcher
	logger  zerolog.Logger
	group   singleflight.Group

	mu         sync.Mutex
	state      AuthState
	identity   json.RawMessage
	store      *store
	inFlight   map[string]*pending
	generation uint64
}

// pending marks an id being fetched; err is set before done closes
type pending struct {
	done chan struct{}
	err  error
}

// New creates a new Cache holding up to size entities
func New(fetcher Fetcher, size int, logger zerolog.Logger) (*Cache, error) {
	s, err := newStore(size)
	if err != nil {
		return nil, err
	}
	return &Cache{
		fetcher:  fetcher,
		logger:   logger.With().Str("component", "entitycache").Logger(),
		store:    s,
		inFlight: make(map[string]*pending),
	}, nil
}

// State returns the current session flag
func (c *Cache) State() AuthState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Identity returns the current session's own entity, or nil when anonymous.
// A known-anonymous session answers without a network call. Concurrent
// callers share one fetch and its outcome.
func (c *Cache) Identity(ctx context.Context) (json.RawMessage, error) {
	c.mu.Lock()
	state, me, gen := c.state, c.identity, c.generation
	c.mu.Unlock()

	if state == StateAnonymous {
		return nil, nil
	}
	if me != nil {
		return me, nil
	}

	// the shared fetch must outlive any single caller's cancellation
	fetchCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan("identity:"+strconv.FormatUint(gen, 10), func() (interface{}, error) {
		return c.fetchIdentity(fetchCtx, gen)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		me, _ := res.Val.(json.RawMessage)
		return me, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// fetchIdentity asks the server for the session identity
func (c *Cache) fetchIdentity(ctx context.Context, gen uint64) (json.RawMessage, error) {
	c.mu.Lock()
	if c.generation == gen {
		if c.state == StateAnonymous {
			c.mu.Unlock()
			return nil, nil
		}
		if c.identity != nil {
			me := c.identity
			c.mu.Unlock()
			return me, nil
		}
	}
	c.mu.Unlock()

	raw, err := c.fetcher.Do(ctx, &endpoint.GetMe{}, dispatcher.Silent())
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if wire.IsNull(raw) {
		if c.generation == gen {
			c.state = StateAnonymous
			c.logger.Debug().Msg("identity lookup returned empty, session is anonymous")
		}
		return nil, nil
	}

	if c.generation != gen {
		c.logger.Debug().Msg("session reset during identity fetch, result not cached")
		return raw, nil
	}

	c.identity = raw
	c.store.put(raw)
	c.state = StateAuthenticated
	return raw, nil
}

// GetByIDs returns the cached snapshots for ids, in input order, fetching
// the missing ones in one combined call. Ids fetched by another caller are
// waited on, never fetched twice, and a failed fetch fails every waiter.
// Ids the server does not know are omitted.
func (c *Cache) GetByIDs(ctx context.Context, ids []string) ([]json.RawMessage, error) {
	own := make(map[string]*pending)
	var toGet []string
	var waits []*pending

	c.mu.Lock()
	gen := c.generation
	for _, id := range ids {
		if c.store.contains(id) {
			continue
		}
		if _, mine := own[id]; mine {
			continue
		}
		if f, ok := c.inFlight[id]; ok {
			waits = append(waits, f)
			continue
		}
		f := &pending{done: make(chan struct{})}
		c.inFlight[id] = f
		own[id] = f
		toGet = append(toGet, id)
		waits = append(waits, f)
	}
	c.mu.Unlock()

	if len(toGet) > 0 {
		// the fetch is shared with later waiters and must outlive this caller
		go c.fetchEntities(context.WithoutCancel(ctx), gen, toGet, own)
	}

	for _, f := range waits {
		select {
		case <-f.done:
			if f.err != nil {
				return nil, f.err
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	res := make([]json.RawMessage, 0, len(ids))
	for _, id := range ids {
		if raw, ok := c.store.get(id); ok {
			res = append(res, raw)
		}
	}
	return res, nil
}

// fetchEntities fetches ids, then settles and clears their in-flight markers
func (c *Cache) fetchEntities(ctx context.Context, gen uint64, ids []string, own map[string]*pending) {
	raw, err := c.fetcher.Do(ctx, &endpoint.GetUsers{Users: ids})

	c.mu.Lock()
	defer c.mu.Unlock()

	if err == nil {
		err = c.storeFetched(gen, ids, raw)
	}

	for id, f := range own {
		if c.inFlight[id] == f {
			delete(c.inFlight, id)
		}
		f.err = err
		close(f.done)
	}
}

// storeFetched caches a fetch result unless the session was reset meanwhile
func (c *Cache) storeFetched(gen uint64, ids []string, raw json.RawMessage) error {
	if c.generation != gen {
		c.logger.Debug().Int("ids", len(ids)).Msg("session reset during fetch, result not cached")
		return nil
	}

	stored, err := c.store.putAll(raw)
	if err != nil {
		c.logger.Warn().Err(err).Msg("unexpected entity fetch response")
		return &wire.TransportError{Op: "decode " + (&endpoint.GetUsers{}).Path(), Err: err}
	}

	c.logger.Debug().
		Int("requested", len(ids)).
		Int("stored", stored).
		Msg("fetched entities")
	return nil
}

// One returns the entity with id, or a 404 error when it does not exist
func (c *Cache) One(ctx context.Context, id string) (json.RawMessage, error) {
	res, err := c.GetByIDs(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	if len(res) == 0 {
		return nil, wire.NewError(404, "no such user")
	}
	return res[0], nil
}

// PatchIdentity mirrors a successful self-mutation into the cached identity
// and its by-id entry, so later reads see it without another round trip.
func (c *Cache) PatchIdentity(field string, value interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.identity == nil {
		return nil
	}
	patched, err := patchField(c.identity, field, value)
	if err != nil {
		return err
	}
	c.identity = patched
	return c.store.patch(entityID(patched), field, value)
}

// Patch sets one field on the cached entity id, and on the identity when it
// is the same entity. Uncached entities are left alone.
func (c *Cache) Patch(id, field string, value interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.identity != nil && entityID(c.identity) == id {
		patched, err := patchField(c.identity, field, value)
		if err != nil {
			return err
		}
		c.identity = patched
	}
	return c.store.patch(id, field, value)
}

// Reset atomically drops every cached entity and in-flight marker and sets
// the session flag. Fetches still running finish without caching.
func (c *Cache) Reset(state AuthState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked(state)
}

// ResetWithIdentity resets the cache and seeds it with a fresh identity
func (c *Cache) ResetWithIdentity(me json.RawMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.resetLocked(StateAuthenticated)
	c.identity = me
	c.store.put(me)
}

func (c *Cache) resetLocked(state AuthState) {
	c.generation++
	c.identity = nil
	c.store.purge()
	c.inFlight = make(map[string]*pending)
	c.state = state
}

// Len returns the number of entities cached by id
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.len()
}
