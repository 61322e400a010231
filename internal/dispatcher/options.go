package dispatcher

import "net/http"

// CallOption adjusts a single Send
type CallOption func(*callOptions)

type callOptions struct {
	silent  bool
	headers http.Header
}

func newCallOptions(opts []CallOption) *callOptions {
	o := &callOptions{headers: make(http.Header)}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Silent keeps the call's failure away from the global error observer.
// Used for session lookups where a failure is expected and not user facing.
func Silent() CallOption {
	return func(o *callOptions) {
		o.silent = true
	}
}

// WithHeader adds a request header. The client identity header cannot be overridden.
func WithHeader(key, value string) CallOption {
	return func(o *callOptions) {
		o.headers.Add(key, value)
	}
}
