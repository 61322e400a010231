package dispatcher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"

	"apiclient/internal/config"
	"apiclient/internal/endpoint"
	"apiclient/internal/wire"
)

// Header names set on every request
const (
	HeaderClient    = "X-Client"
	HeaderRequestID = "X-Request-Id"
)

// ErrClosed is returned by Send after Close
var ErrClosed = errors.New("dispatcher closed")

// ErrorObserver receives the body of every failed non-silent call
type ErrorObserver func(body json.RawMessage)

// Dispatcher issues single API calls over HTTP PUT
type Dispatcher struct {
	baseURL  string
	clientID string

	httpClient *http.Client
	limiter    *rate.Limiter
	logger     zerolog.Logger

	observerMu sync.RWMutex
	observer   ErrorObserver

	requestCount atomic.Uint64
	closed       atomic.Bool
}

// Config for creating a new Dispatcher
type Config struct {
	BaseURL        string
	ClientID       string
	RequestTimeout time.Duration
	RateLimit      float64 // requests per second, 0 disables pacing
	RateBurst      int
	Logger         zerolog.Logger
}

// New creates a new Dispatcher
func New(cfg Config) (*Dispatcher, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 100,
		IdleConnTimeout:     90 * time.Second,
	}

	d := &Dispatcher{
		baseURL:  cfg.BaseURL,
		clientID: cfg.ClientID,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   cfg.RequestTimeout,
			Jar:       jar,
		},
		logger: cfg.Logger.With().Str("component", "dispatcher").Logger(),
	}

	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		d.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	return d, nil
}

// NewFromConfig creates a Dispatcher from the client config
func NewFromConfig(cfg *config.Config, logger zerolog.Logger) (*Dispatcher, error) {
	dc := Config{
		BaseURL:        cfg.BaseURL,
		ClientID:       cfg.ClientID,
		RequestTimeout: cfg.GetRequestTimeoutDuration(),
		Logger:         logger,
	}
	if cfg.IsRateLimitEnabled() {
		dc.RateLimit = cfg.RateLimit.RPS
		dc.RateBurst = cfg.RateLimit.Burst
	}
	return New(dc)
}

// SetErrorObserver registers the global error observer, replacing any previous one
func (d *Dispatcher) SetErrorObserver(fn ErrorObserver) {
	d.observerMu.Lock()
	d.observer = fn
	d.observerMu.Unlock()
}

// RequestCount returns the number of requests that reached the server
func (d *Dispatcher) RequestCount() uint64 {
	return d.requestCount.Load()
}

// Do sends a catalog endpoint, using the request value as the body
func (d *Dispatcher) Do(ctx context.Context, ep endpoint.Endpoint, opts ...CallOption) (json.RawMessage, error) {
	return d.Send(ctx, ep.Path(), ep, opts...)
}

// Send issues one PUT to the API at path with args as the JSON body.
// Failures come back as *wire.Error (server answered non-success) or
// *wire.TransportError. Nothing is retried.
func (d *Dispatcher) Send(ctx context.Context, path string, args interface{}, opts ...CallOption) (json.RawMessage, error) {
	o := newCallOptions(opts)

	body, err := d.send(ctx, path, args, o)
	if err != nil {
		if !o.silent {
			d.notify(err)
		}
		return nil, err
	}
	return body, nil
}

func (d *Dispatcher) send(ctx context.Context, path string, args interface{}, o *callOptions) (json.RawMessage, error) {
	if d.closed.Load() {
		return nil, &wire.TransportError{Op: "send " + path, Err: ErrClosed}
	}

	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			return nil, &wire.TransportError{Op: "send " + path, Err: err}
		}
	}

	var reqBody io.Reader
	contentType := "application/json"
	upload, isUpload := args.(*Upload)
	switch {
	case isUpload && upload != nil:
		reqBody = upload.Content
		contentType = upload.ContentType
	case args != nil && !isUpload:
		reqBytes, err := json.Marshal(args)
		if err != nil {
			return nil, &wire.TransportError{Op: "encode " + path, Err: err}
		}
		reqBody = bytes.NewReader(reqBytes)
	}

	url := d.baseURL + wire.PathPrefix + path
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPut, url, reqBody)
	if err != nil {
		return nil, &wire.TransportError{Op: "send " + path, Err: err}
	}

	requestID := uuid.NewString()
	for key, values := range o.headers {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}
	if isUpload && upload != nil {
		upload.apply(httpReq)
	}
	if httpReq.Header.Get("Content-Type") == "" && contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	httpReq.Header.Set(HeaderClient, d.clientID)
	if httpReq.Header.Get(HeaderRequestID) == "" {
		httpReq.Header.Set(HeaderRequestID, requestID)
	}

	start := time.Now()
	resp, err := d.httpClient.Do(httpReq)
	if err != nil {
		d.logger.Warn().
			Err(err).
			Str("path", path).
			Str("requestId", requestID).
			Msg("request failed")
		return nil, &wire.TransportError{Op: "send " + path, Err: err}
	}
	defer resp.Body.Close()

	d.requestCount.Add(1)

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &wire.TransportError{Op: "read " + path, Err: err}
	}

	d.logger.Debug().
		Str("path", path).
		Int("status", resp.StatusCode).
		Str("requestId", requestID).
		Dur("duration", time.Since(start)).
		Msg("request completed")

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, &wire.Error{Status: resp.StatusCode, Body: normalizeErrorBody(respBody)}
	}

	if len(bytes.TrimSpace(respBody)) == 0 {
		return nil, nil
	}
	if !json.Valid(respBody) {
		return nil, &wire.TransportError{Op: "decode " + path, Err: errors.New("response is not valid JSON")}
	}

	return respBody, nil
}

// notify hands the failure body to the global observer
func (d *Dispatcher) notify(err error) {
	d.observerMu.RLock()
	fn := d.observer
	d.observerMu.RUnlock()

	if fn != nil {
		fn(wire.Body(err))
	}
}

// Close releases idle connections; later calls fail with ErrClosed
func (d *Dispatcher) Close() {
	d.closed.Store(true)
	d.httpClient.CloseIdleConnections()
}

// normalizeErrorBody keeps JSON payloads as-is and wraps plain text as a JSON string
func normalizeErrorBody(body []byte) json.RawMessage {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil
	}
	if json.Valid(trimmed) {
		return trimmed
	}
	raw, _ := json.Marshal(string(trimmed))
	return raw
}
