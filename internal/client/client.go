// Package client wires the dispatcher, batch coordinator, entity cache and
// session into one object owned by the caller.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/rs/zerolog"

	"apiclient/internal/batcher"
	"apiclient/internal/config"
	"apiclient/internal/dispatcher"
	"apiclient/internal/endpoint"
	"apiclient/internal/entitycache"
	"apiclient/internal/session"
	"apiclient/internal/wire"
)

// ErrClosed is returned by every call made after Close
var ErrClosed = errors.New("client closed")

// Client is the access layer for one API base URL
type Client struct {
	cfg        *config.Config
	dispatcher *dispatcher.Dispatcher
	batches    *batcher.Coordinator
	cache      *entitycache.Cache
	session    *session.Manager
	logger     zerolog.Logger
	closed     atomic.Bool
}

// New creates a new Client from a finalized config
func New(cfg *config.Config, logger zerolog.Logger) (*Client, error) {
	disp, err := dispatcher.NewFromConfig(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create dispatcher: %w", err)
	}

	if cfg.IsRateLimitEnabled() {
		logger.Info().
			Float64("rps", cfg.RateLimit.RPS).
			Int("burst", cfg.RateLimit.Burst).
			Msg("rate limiting enabled")
	}

	cache, err := entitycache.New(disp, cfg.GetCacheSize(), logger)
	if err != nil {
		disp.Close()
		return nil, fmt.Errorf("failed to create cache: %w", err)
	}

	logger.Debug().
		Str("baseUrl", cfg.BaseURL).
		Str("clientId", cfg.ClientID).
		Int("cacheSize", cfg.GetCacheSize()).
		Int("maxBatchCalls", cfg.MaxBatchCalls).
		Msg("client created")

	return &Client{
		cfg:        cfg,
		dispatcher: disp,
		batches:    batcher.NewCoordinator(disp, cfg.MaxBatchCalls, logger),
		cache:      cache,
		session:    session.NewManager(disp, cache, logger),
		logger:     logger,
	}, nil
}

// Close releases idle connections; later calls fail with ErrClosed
func (c *Client) Close() {
	if c.closed.Swap(true) {
		return
	}
	c.dispatcher.Close()
	c.cache.Reset(entitycache.StateUnknown)
	c.logger.Debug().
		Uint64("requests", c.dispatcher.RequestCount()).
		Msg("client closed")
}

// OnError registers the observer notified with the body of every failed
// call that was not sent silently
func (c *Client) OnError(fn func(body json.RawMessage)) {
	c.dispatcher.SetErrorObserver(fn)
}

// Do sends ep and decodes the result into out, which may be nil
func (c *Client) Do(ctx context.Context, ep endpoint.Endpoint, out interface{}) error {
	if c.closed.Load() {
		return ErrClosed
	}
	raw, err := c.dispatcher.Do(ctx, ep)
	if err != nil {
		return err
	}
	return decode(ep.Path(), raw, out)
}

// Ping checks that the API is reachable
func (c *Client) Ping(ctx context.Context) error {
	return c.Do(ctx, &endpoint.Ping{}, nil)
}

// NewMDo returns a fresh batch handle
func (c *Client) NewMDo() *batcher.Handle {
	return c.batches.NewHandle()
}

// Me returns the current session's identity, or nil when logged out
func (c *Client) Me(ctx context.Context) (*endpoint.Me, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	raw, err := c.cache.Identity(ctx)
	if err != nil || raw == nil {
		return nil, err
	}
	me := &endpoint.Me{}
	if err := decode("identity", raw, me); err != nil {
		return nil, err
	}
	return me, nil
}

// Users returns the users with ids, in input order; unknown ids are omitted
func (c *Client) Users(ctx context.Context, ids ...string) ([]endpoint.User, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	raws, err := c.cache.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	users := make([]endpoint.User, len(raws))
	for i, raw := range raws {
		if err := decode("user", raw, &users[i]); err != nil {
			return nil, err
		}
	}
	return users, nil
}

// User returns one user, failing with a 404 *wire.Error if it does not exist
func (c *Client) User(ctx context.Context, id string) (*endpoint.User, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	raw, err := c.cache.One(ctx, id)
	if err != nil {
		return nil, err
	}
	u := &endpoint.User{}
	if err := decode("user", raw, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Login starts a session and returns its identity
func (c *Client) Login(ctx context.Context, email, pwd string) (*endpoint.Me, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	raw, err := c.session.Login(ctx, email, pwd)
	if err != nil {
		return nil, err
	}
	me := &endpoint.Me{}
	if err := decode("login", raw, me); err != nil {
		return nil, err
	}
	return me, nil
}

// Logout ends the session
func (c *Client) Logout(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClosed
	}
	return c.session.Logout(ctx)
}

// Authenticated reports whether the session is known to be logged in
func (c *Client) Authenticated() bool {
	return c.session.Authenticated()
}

// Register creates an account pending activation
func (c *Client) Register(ctx context.Context, args *endpoint.Register) error {
	return c.Do(ctx, args, nil)
}

// ResendActivateLink re-sends the activation email for email
func (c *Client) ResendActivateLink(ctx context.Context, email string) error {
	return c.Do(ctx, &endpoint.ResendActivateLink{Email: email}, nil)
}

// Activate confirms a registration with the emailed code
func (c *Client) Activate(ctx context.Context, email, code string) error {
	return c.Do(ctx, &endpoint.Activate{Email: email, Code: code}, nil)
}

// ChangeEmail starts an email change; it completes with ConfirmChangeEmail
func (c *Client) ChangeEmail(ctx context.Context, newEmail string) error {
	return c.Do(ctx, &endpoint.ChangeEmail{NewEmail: newEmail}, nil)
}

// ResendChangeEmailLink re-sends the confirmation for a pending email change
func (c *Client) ResendChangeEmailLink(ctx context.Context) error {
	return c.Do(ctx, &endpoint.ResendChangeEmailLink{}, nil)
}

// ConfirmChangeEmail completes the email change of user me with the emailed code
func (c *Client) ConfirmChangeEmail(ctx context.Context, me, code string) error {
	return c.Do(ctx, &endpoint.ConfirmChangeEmail{Me: me, Code: code}, nil)
}

// ResetPwd emails a new password to the account
func (c *Client) ResetPwd(ctx context.Context, email string) error {
	return c.Do(ctx, &endpoint.ResetPwd{Email: email}, nil)
}

// SetPwd changes the current user's password
func (c *Client) SetPwd(ctx context.Context, currentPwd, newPwd string) error {
	return c.Do(ctx, &endpoint.SetPwd{CurrentPwd: currentPwd, NewPwd: newPwd, ConfirmNewPwd: newPwd}, nil)
}

// SetAvatar uploads a new avatar image of size bytes; nil content removes
// the avatar. The cached identity's hasAvatar follows on success.
func (c *Client) SetAvatar(ctx context.Context, content io.Reader, size int64, contentType string) error {
	if c.closed.Load() {
		return ErrClosed
	}

	var upload *dispatcher.Upload
	if content != nil {
		upload = &dispatcher.Upload{Content: content, Size: size, ContentType: contentType}
	}
	if _, err := c.dispatcher.Send(ctx, (&endpoint.SetAvatar{}).Path(), upload); err != nil {
		return err
	}
	return c.cache.PatchIdentity(endpoint.FieldHasAvatar, content != nil)
}

// SetHandle changes the current user's handle and updates the cached identity
func (c *Client) SetHandle(ctx context.Context, handle string) error {
	if err := c.Do(ctx, &endpoint.SetHandle{Handle: handle}, nil); err != nil {
		return err
	}
	return c.cache.PatchIdentity(endpoint.FieldHandle, handle)
}

// SetAlias changes the current user's alias; nil clears it
func (c *Client) SetAlias(ctx context.Context, alias *string) error {
	if err := c.Do(ctx, &endpoint.SetAlias{Alias: alias}, nil); err != nil {
		return err
	}
	var v interface{}
	if alias != nil {
		v = *alias
	}
	return c.cache.PatchIdentity(endpoint.FieldAlias, v)
}

// SetFCMEnabled toggles push notifications and updates the cached identity
func (c *Client) SetFCMEnabled(ctx context.Context, enabled bool) error {
	if err := c.Do(ctx, &endpoint.SetFCMEnabled{Val: enabled}, nil); err != nil {
		return err
	}
	return c.cache.PatchIdentity(endpoint.FieldFcmEnabled, enabled)
}

// Delete removes the current account; the session ends with it
func (c *Client) Delete(ctx context.Context, pwd string) error {
	if err := c.Do(ctx, &endpoint.Delete{Pwd: pwd}, nil); err != nil {
		return err
	}
	c.cache.Reset(entitycache.StateAnonymous)
	c.logger.Info().Msg("account deleted")
	return nil
}

func decode(op string, raw json.RawMessage, out interface{}) error {
	if out == nil || wire.IsNull(raw) {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &wire.TransportError{Op: "decode " + op, Err: err}
	}
	return nil
}
