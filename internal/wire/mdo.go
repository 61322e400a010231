package wire

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
)

// MDoPath is the logical path of the batching endpoint
const MDoPath = "/mdo"

// MDoCall is one sub-request of a batch
type MDoCall struct {
	Path string      `json:"path"`
	Args interface{} `json:"args,omitempty"`
}

// MDoResult is one sub-response of a batch
type MDoResult struct {
	Status int             `json:"status"`
	Body   json.RawMessage `json:"body"`
}

// OK returns true for a 200-equivalent sub-response
func (r *MDoResult) OK() bool {
	return r.Status == http.StatusOK
}

// Err converts a failed sub-response into an application error
func (r *MDoResult) Err() *Error {
	return &Error{Status: r.Status, Body: r.Body}
}

// MDoRequest maps positional index keys ("0", "1", ...) to sub-requests
type MDoRequest map[string]*MDoCall

// MDoResponse maps the same positional index keys to sub-responses
type MDoResponse map[string]*MDoResult

// Key returns the wire key for position i
func Key(i int) string {
	return strconv.Itoa(i)
}

// NewMDoRequest builds a batch payload keyed by issue order
func NewMDoRequest(calls []*MDoCall) MDoRequest {
	req := make(MDoRequest, len(calls))
	for i, c := range calls {
		req[Key(i)] = c
	}
	return req
}

// ParseMDoResponse parses a batch response body
func ParseMDoResponse(data []byte) (MDoResponse, error) {
	var resp MDoResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse mdo response: %w", err)
	}
	return resp, nil
}

// Result returns the sub-response at position i
func (r MDoResponse) Result(i int) (*MDoResult, bool) {
	res, ok := r[Key(i)]
	if !ok || res == nil {
		return nil, false
	}
	return res, true
}
