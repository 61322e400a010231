// Package batcher implements MDo: several independent API calls queued on a
// single-use handle and sent as one combined request.
//
// Results are matched back to their calls strictly by the position at which
// each call was queued. A failed call never affects its siblings; only a
// failure of the combined request itself rejects every call.
//
// Example:
//
//	h := coord.NewHandle()
//	me, _ := batcher.Call[endpoint.Me](h, &endpoint.GetMe{})
//	users, _ := batcher.Call[[]endpoint.User](h, &endpoint.GetUsers{Users: ids})
//	done, _ := h.Flush(ctx)
//	if _, err := done.Await(ctx); err != nil {
//	    // err is a wire.BatchErrors listing each failed call
//	}
package batcher
