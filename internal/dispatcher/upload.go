package dispatcher

import (
	"encoding/json"
	"io"
	"net/http"
)

// Header names describing a raw upload body
const (
	HeaderContentName = "Content-Name"
	HeaderContentArgs = "Content-Args"
)

// Upload is a raw request body sent in place of JSON args.
// A nil *Upload sends an empty body.
type Upload struct {
	Content     io.Reader
	Size        int64
	ContentType string
	Name        string
	Args        json.RawMessage // optional, sent in the Content-Args header
}

func (u *Upload) apply(req *http.Request) {
	if u.Size > 0 {
		req.ContentLength = u.Size
	}
	if u.Name != "" {
		req.Header.Set(HeaderContentName, u.Name)
	}
	if len(u.Args) > 0 {
		req.Header.Set(HeaderContentArgs, string(u.Args))
	}
}
