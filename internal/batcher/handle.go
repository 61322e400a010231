package batcher

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"apiclient/internal/dispatcher"
	"apiclient/internal/endpoint"
	"apiclient/internal/future"
	"apiclient/internal/wire"
)

// Coordinator hands out batch handles bound to one sender
type Coordinator struct {
	sender   Sender
	maxCalls int
	logger   zerolog.Logger
}

// NewCoordinator creates a new Coordinator.
// maxCalls caps the calls per handle; 0 or negative means no cap.
func NewCoordinator(sender Sender, maxCalls int, logger zerolog.Logger) *Coordinator {
	return &Coordinator{
		sender:   sender,
		maxCalls: maxCalls,
		logger:   logger.With().Str("component", "batcher").Logger(),
	}
}

// NewHandle returns a fresh handle in StateNew
func (c *Coordinator) NewHandle() *Handle {
	return &Handle{
		coord: c,
		calls: make([]*PendingCall, 0),
	}
}

// Handle is a single-use batch: queue calls, then Flush once
type Handle struct {
	coord *Coordinator

	mu    sync.Mutex
	state State
	calls []*PendingCall
	errs  wire.BatchErrors
}

// Do queues ep and returns a future settled when the batch lands.
// Nothing is sent until Flush.
func (h *Handle) Do(ep endpoint.Endpoint) (*future.Future[json.RawMessage], error) {
	return h.Queue(ep.Path(), ep)
}

// Queue queues a call by path and raw arguments
func (h *Handle) Queue(path string, args interface{}) (*future.Future[json.RawMessage], error) {
	return h.queue(path, args, nil)
}

func (h *Handle) queue(path string, args interface{}, onSettle func(json.RawMessage, error)) (*future.Future[json.RawMessage], error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state != StateNew {
		return nil, &wire.ProgrammingError{Err: fmt.Errorf("queue %s on %s handle: %w", path, h.state, wire.ErrHandleUsed)}
	}
	if _, ok := args.(*dispatcher.Upload); ok {
		return nil, &wire.ProgrammingError{Err: fmt.Errorf("queue %s: %w", path, wire.ErrUpload)}
	}
	if h.coord.maxCalls > 0 && len(h.calls) >= h.coord.maxCalls {
		return nil, &wire.ProgrammingError{Err: fmt.Errorf("queue %s: %w (max %d calls)", path, wire.ErrBatchFull, h.coord.maxCalls)}
	}

	call := &PendingCall{
		Index:    len(h.calls),
		Path:     path,
		Args:     args,
		Result:   future.New[json.RawMessage](),
		onSettle: onSettle,
	}
	h.calls = append(h.calls, call)

	return call.Result, nil
}

// Call queues ep on h and decodes its result into T.
// Decoding happens when the batch settles; an unflushed handle holds no
// goroutines.
func Call[T any](h *Handle, ep endpoint.Endpoint) (*future.Future[T], error) {
	out := future.New[T]()
	_, err := h.queue(ep.Path(), ep, func(raw json.RawMessage, err error) {
		if err != nil {
			out.Reject(err)
			return
		}
		v, err := decode[T](raw)
		if err != nil {
			out.Reject(err)
			return
		}
		out.Resolve(v)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func decode[T any](raw json.RawMessage) (T, error) {
	var v T
	if len(raw) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("failed to decode result: %w", err)
	}
	return v, nil
}

// State returns the handle's lifecycle stage
func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Len returns the number of queued calls
func (h *Handle) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.calls)
}

// Flush sends every queued call as one request.
// It fails immediately if the handle was already flushed. The returned
// future settles after every call's own future has settled: nil when all
// succeeded, otherwise a wire.BatchErrors in positional order.
func (h *Handle) Flush(ctx context.Context) (*future.Future[struct{}], error) {
	h.mu.Lock()
	if h.state != StateNew {
		state := h.state
		h.mu.Unlock()
		return nil, &wire.ProgrammingError{Err: fmt.Errorf("flush %s handle: %w", state, wire.ErrHandleUsed)}
	}
	// registration holds the same lock, so every queued call is complete here
	h.state = StateSending
	calls := h.calls
	h.mu.Unlock()

	done := future.New[struct{}]()
	go h.send(ctx, calls, done)
	return done, nil
}

// send executes the batch and distributes results
func (h *Handle) send(ctx context.Context, calls []*PendingCall, done *future.Future[struct{}]) {
	var errs wire.BatchErrors
	defer func() {
		h.mu.Lock()
		h.state = StateSent
		h.errs = errs
		h.mu.Unlock()

		if len(errs) == 0 {
			done.Resolve(struct{}{})
		} else {
			done.Reject(errs)
		}
	}()

	if len(calls) == 0 {
		return
	}

	wireCalls := make([]*wire.MDoCall, len(calls))
	for i, call := range calls {
		wireCalls[i] = &wire.MDoCall{
			Path: wire.PathPrefix + call.Path,
			Args: call.Args,
		}
	}

	logger := h.coord.logger
	logger.Debug().
		Int("calls", len(calls)).
		Msg("executing batch")

	body, err := h.coord.sender.Send(ctx, wire.MDoPath, wire.NewMDoRequest(wireCalls))
	if err != nil {
		errs = rejectAll(calls, err)
		return
	}

	resp, err := wire.ParseMDoResponse(body)
	if err != nil {
		logger.Error().Err(err).Int("calls", len(calls)).Msg("batch response is not an index map")
		errs = rejectAll(calls, &wire.TransportError{Op: "mdo", Err: err})
		return
	}

	for _, call := range calls {
		res, ok := resp.Result(call.Index)
		if !ok {
			err := &wire.TransportError{Op: "mdo", Err: fmt.Errorf("no result for call %d (%s)", call.Index, call.Path)}
			errs = append(errs, err)
			call.reject(err)
			continue
		}
		if res.OK() {
			call.resolve(res.Body)
			continue
		}
		apiErr := res.Err()
		errs = append(errs, apiErr)
		call.reject(apiErr)
	}

	logger.Debug().
		Int("calls", len(calls)).
		Int("failed", len(errs)).
		Msg("batch completed")
}

// Errors returns the failures collected by the flush, once sent
func (h *Handle) Errors() wire.BatchErrors {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.errs
}

// rejectAll rejects every call with the one error of the combined request
func rejectAll(calls []*PendingCall, err error) wire.BatchErrors {
	for _, call := range calls {
		call.reject(err)
	}
	return wire.BatchErrors{err}
}
