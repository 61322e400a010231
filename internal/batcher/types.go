package batcher

import (
	"context"
	"encoding/json"

	"apiclient/internal/dispatcher"
	"apiclient/internal/future"
)

// State is the lifecycle stage of a Handle
type State int32

const (
	StateNew State = iota
	StateSending
	StateSent
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateSending:
		return "sending"
	case StateSent:
		return "sent"
	default:
		return "unknown"
	}
}

// Sender issues the combined request
type Sender interface {
	Send(ctx context.Context, path string, args interface{}, opts ...dispatcher.CallOption) (json.RawMessage, error)
}

// PendingCall is one queued call waiting for the batch response
type PendingCall struct {
	Index  int                             // position in issue order
	Path   string                          // logical path, without the API prefix
	Args   interface{}                     // request body
	Result *future.Future[json.RawMessage] // settled exactly once by the flush

	onSettle func(json.RawMessage, error)
}

func (c *PendingCall) resolve(raw json.RawMessage) {
	if c.Result.Resolve(raw) && c.onSettle != nil {
		c.onSettle(raw, nil)
	}
}

func (c *PendingCall) reject(err error) {
	if c.Result.Reject(err) && c.onSettle != nil {
		c.onSettle(nil, err)
	}
}
