package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"apiclient/internal/endpoint"
	"apiclient/internal/wire"
)

func newTestDispatcher(t *testing.T, handler http.HandlerFunc) (*Dispatcher, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	d, err := New(Config{
		BaseURL:        srv.URL,
		ClientID:       "test-client",
		RequestTimeout: 5 * time.Second,
		Logger:         zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(d.Close)
	return d, srv
}

func TestSend_RequestShape(t *testing.T) {
	var (
		gotMethod, gotPath, gotClient, gotCustom, gotRequestID string
		gotBody                                                []byte
	)
	d, _ := newTestDispatcher(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotClient = r.Header.Get(HeaderClient)
		gotCustom = r.Header.Get("X-Custom")
		gotRequestID = r.Header.Get(HeaderRequestID)
		gotBody, _ = io.ReadAll(r.Body)
		w.Write([]byte(`{"ok":true}`))
	})

	res, err := d.Send(context.Background(), "/user/get", map[string][]string{"users": {"u1"}},
		WithHeader("X-Custom", "yes"), WithHeader(HeaderClient, "spoofed"))
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	if gotMethod != http.MethodPut {
		t.Errorf("method = %s, want PUT", gotMethod)
	}
	if gotPath != "/api/user/get" {
		t.Errorf("path = %s, want /api/user/get", gotPath)
	}
	if gotClient != "test-client" {
		t.Errorf("X-Client = %q, want test-client", gotClient)
	}
	if gotCustom != "yes" {
		t.Errorf("X-Custom = %q, want yes", gotCustom)
	}
	if gotRequestID == "" {
		t.Error("X-Request-Id should be set")
	}
	if string(gotBody) != `{"users":["u1"]}` {
		t.Errorf("body = %s", gotBody)
	}
	if string(res) != `{"ok":true}` {
		t.Errorf("result = %s", res)
	}
	if d.RequestCount() != 1 {
		t.Errorf("RequestCount = %d, want 1", d.RequestCount())
	}
}

func TestDo_UsesEndpointPath(t *testing.T) {
	var gotPath string
	d, _ := newTestDispatcher(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(`null`))
	})

	res, err := d.Do(context.Background(), &endpoint.GetMe{})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if gotPath != "/api/user/me" {
		t.Errorf("path = %s", gotPath)
	}
	if !wire.IsNull(res) {
		t.Errorf("result = %s, want null", res)
	}
}

func TestSend_ApplicationError(t *testing.T) {
	d, _ := newTestDispatcher(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`"insufficient permission"`))
	})

	var observed []string
	d.SetErrorObserver(func(body json.RawMessage) {
		observed = append(observed, string(body))
	})

	_, err := d.Send(context.Background(), "/project/delete", []string{"p1"})

	var apiErr *wire.Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *wire.Error", err)
	}
	if apiErr.Status != http.StatusForbidden {
		t.Errorf("Status = %d, want 403", apiErr.Status)
	}
	if apiErr.Message() != "insufficient permission" {
		t.Errorf("Message = %q", apiErr.Message())
	}
	if len(observed) != 1 || observed[0] != `"insufficient permission"` {
		t.Errorf("observer got %v", observed)
	}
}

func TestSend_PlainTextErrorBody(t *testing.T) {
	d, _ := newTestDispatcher(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	_, err := d.Send(context.Background(), "/ping", nil)
	var apiErr *wire.Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *wire.Error", err)
	}
	if string(apiErr.Body) != `"boom"` {
		t.Errorf("Body = %s, want JSON string", apiErr.Body)
	}
}

func TestSend_SilentSkipsObserver(t *testing.T) {
	d, _ := newTestDispatcher(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	called := false
	d.SetErrorObserver(func(json.RawMessage) { called = true })

	if _, err := d.Send(context.Background(), "/user/me", nil, Silent()); err == nil {
		t.Fatal("expected error")
	}
	if called {
		t.Error("observer should not be called for silent calls")
	}
}

func TestSend_TransportError(t *testing.T) {
	d, srv := newTestDispatcher(t, func(w http.ResponseWriter, r *http.Request) {})
	srv.Close()

	var mu sync.Mutex
	observed := 0
	d.SetErrorObserver(func(json.RawMessage) {
		mu.Lock()
		observed++
		mu.Unlock()
	})

	_, err := d.Send(context.Background(), "/ping", nil)
	var te *wire.TransportError
	if !errors.As(err, &te) {
		t.Fatalf("err = %v, want *wire.TransportError", err)
	}
	if observed != 1 {
		t.Errorf("observer called %d times, want 1", observed)
	}
	if d.RequestCount() != 0 {
		t.Errorf("RequestCount = %d, want 0", d.RequestCount())
	}
}

func TestSend_InvalidJSONResponse(t *testing.T) {
	d, _ := newTestDispatcher(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>`))
	})

	_, err := d.Send(context.Background(), "/ping", nil)
	var te *wire.TransportError
	if !errors.As(err, &te) {
		t.Fatalf("err = %v, want *wire.TransportError", err)
	}
}

func TestSend_CookiesPersist(t *testing.T) {
	var sawCookie bool
	d, _ := newTestDispatcher(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/user/login":
			http.SetCookie(w, &http.Cookie{Name: "session", Value: "abc", Path: "/"})
			w.Write([]byte(`{"id":"u1"}`))
		default:
			if c, err := r.Cookie("session"); err == nil && c.Value == "abc" {
				sawCookie = true
			}
			w.Write([]byte(`null`))
		}
	})

	ctx := context.Background()
	if _, err := d.Do(ctx, &endpoint.Login{Email: "a@b.c", Pwd: "pwd"}); err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := d.Do(ctx, &endpoint.GetMe{}); err != nil {
		t.Fatalf("me: %v", err)
	}
	if !sawCookie {
		t.Error("session cookie was not sent on the second call")
	}
}

func TestSend_RateLimitHonorsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`"pong"`))
	}))
	defer srv.Close()

	d, err := New(Config{
		BaseURL:   srv.URL,
		ClientID:  "test-client",
		RateLimit: 0.1,
		RateBurst: 1,
		Logger:    zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer d.Close()

	if _, err := d.Send(context.Background(), "/ping", nil); err != nil {
		t.Fatalf("first Send: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := d.Send(ctx, "/ping", nil); err == nil {
		t.Fatal("second Send should fail waiting for the limiter")
	}
	if d.RequestCount() != 1 {
		t.Errorf("RequestCount = %d, want 1", d.RequestCount())
	}
}

func TestSend_AfterClose(t *testing.T) {
	d, _ := newTestDispatcher(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`"pong"`))
	})
	d.Close()

	_, err := d.Send(context.Background(), "/ping", nil)
	if !errors.Is(err, ErrClosed) {
		t.Errorf("err = %v, want ErrClosed", err)
	}
}

func TestSend_ContentType(t *testing.T) {
	var got string
	d, _ := newTestDispatcher(t, func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Content-Type")
	})

	if _, err := d.Send(context.Background(), "/ping", nil); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got != "application/json" {
		t.Errorf("default Content-Type = %q, want application/json", got)
	}

	if _, err := d.Send(context.Background(), "/ping", nil, WithHeader("Content-Type", "application/merge-patch+json")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got != "application/merge-patch+json" {
		t.Errorf("caller Content-Type = %q, want application/merge-patch+json", got)
	}
}

func TestSend_Upload(t *testing.T) {
	var gotType, gotName, gotArgs string
	var gotLength int64
	var gotBody []byte
	d, _ := newTestDispatcher(t, func(w http.ResponseWriter, r *http.Request) {
		gotType = r.Header.Get("Content-Type")
		gotName = r.Header.Get(HeaderContentName)
		gotArgs = r.Header.Get(HeaderContentArgs)
		gotLength = r.ContentLength
		gotBody, _ = io.ReadAll(r.Body)
	})

	content := "\x89PNG fake"
	_, err := d.Send(context.Background(), "/user/setAvatar", &Upload{
		Content:     strings.NewReader(content),
		Size:        int64(len(content)),
		ContentType: "image/png",
		Name:        "avatar.png",
		Args:        json.RawMessage(`{"crop":true}`),
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	if gotType != "image/png" {
		t.Errorf("Content-Type = %q, want image/png", gotType)
	}
	if gotName != "avatar.png" {
		t.Errorf("Content-Name = %q", gotName)
	}
	if gotArgs != `{"crop":true}` {
		t.Errorf("Content-Args = %q", gotArgs)
	}
	if gotLength != int64(len(content)) {
		t.Errorf("ContentLength = %d, want %d", gotLength, len(content))
	}
	if string(gotBody) != content {
		t.Errorf("body = %q", gotBody)
	}
}

func TestSend_NilUploadSendsEmptyBody(t *testing.T) {
	var gotBody []byte
	d, _ := newTestDispatcher(t, func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
	})

	var upload *Upload
	if _, err := d.Send(context.Background(), "/user/setAvatar", upload); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(gotBody) != 0 {
		t.Errorf("body = %q, want empty", gotBody)
	}
}
