// Package session tracks whether the client is logged in and keeps the
// entity cache consistent across login and logout.
package session

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"apiclient/internal/dispatcher"
	"apiclient/internal/endpoint"
	"apiclient/internal/entitycache"
	"apiclient/internal/wire"
)

// Caller issues the login and logout calls
type Caller interface {
	Do(ctx context.Context, ep endpoint.Endpoint, opts ...dispatcher.CallOption) (json.RawMessage, error)
}

// Manager drives session transitions
type Manager struct {
	caller Caller
	cache  *entitycache.Cache
	logger zerolog.Logger
}

// NewManager creates a new Manager over cache
func NewManager(caller Caller, cache *entitycache.Cache, logger zerolog.Logger) *Manager {
	return &Manager{
		caller: caller,
		cache:  cache,
		logger: logger.With().Str("component", "session").Logger(),
	}
}

// Login authenticates and seeds the cache with the returned identity.
// Everything cached for the previous session is dropped in the same step.
func (m *Manager) Login(ctx context.Context, email, pwd string) (json.RawMessage, error) {
	me, err := m.caller.Do(ctx, &endpoint.Login{Email: email, Pwd: pwd})
	if err != nil {
		return nil, err
	}
	if wire.IsNull(me) {
		return nil, &wire.TransportError{Op: "login", Err: fmt.Errorf("empty identity in response")}
	}

	m.cache.ResetWithIdentity(me)

	m.logger.Info().
		Str("id", entityID(me)).
		Msg("logged in")

	return me, nil
}

// Logout ends the session and clears the cache.
// If the call fails the session is unknown: the cache is still cleared and
// the next identity read asks the server again.
func (m *Manager) Logout(ctx context.Context) error {
	if _, err := m.caller.Do(ctx, &endpoint.Logout{}); err != nil {
		m.cache.Reset(entitycache.StateUnknown)
		m.logger.Warn().Err(err).Msg("logout failed, session state unknown")
		return err
	}

	m.cache.Reset(entitycache.StateAnonymous)
	m.logger.Info().Msg("logged out")
	return nil
}

// State returns the session flag
func (m *Manager) State() entitycache.AuthState {
	return m.cache.State()
}

// Authenticated reports whether the session is known to be logged in
func (m *Manager) Authenticated() bool {
	return m.cache.State() == entitycache.StateAuthenticated
}

func entityID(raw json.RawMessage) string {
	return gjson.GetBytes(raw, "id").String()
}
