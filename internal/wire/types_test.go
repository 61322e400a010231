package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
)

func TestError_IsNotFound(t *testing.T) {
	err := fmt.Errorf("lookup: %w", NewError(404, "no such user"))
	if !errors.Is(err, ErrNotFound) {
		t.Error("404 error should match ErrNotFound")
	}
	if errors.Is(NewError(500, "boom"), ErrNotFound) {
		t.Error("500 error should not match ErrNotFound")
	}
}

func TestError_Message(t *testing.T) {
	e := NewError(400, "bad handle")
	if e.Message() != "bad handle" {
		t.Errorf("Message() = %q, want %q", e.Message(), "bad handle")
	}
	if e.Error() != `api error 400: "bad handle"` {
		t.Errorf("Error() = %q", e.Error())
	}

	empty := &Error{Status: 503}
	if empty.Error() != "api error 503: Service Unavailable" {
		t.Errorf("Error() = %q", empty.Error())
	}
}

func TestBatchErrors_Unwrap(t *testing.T) {
	transport := &TransportError{Op: "mdo", Err: errors.New("connection refused")}
	var errs error = BatchErrors{NewError(404, "not found"), transport}

	if !errors.Is(errs, ErrNotFound) {
		t.Error("BatchErrors should expose the 404 member")
	}

	var te *TransportError
	if !errors.As(errs, &te) {
		t.Fatal("BatchErrors should expose the transport member")
	}
	if te.Op != "mdo" {
		t.Errorf("Op = %q, want mdo", te.Op)
	}
}

func TestBody(t *testing.T) {
	if got := string(Body(NewError(403, "forbidden"))); got != `"forbidden"` {
		t.Errorf("Body(api error) = %s", got)
	}
	if got := string(Body(errors.New("dial tcp"))); got != `"dial tcp"` {
		t.Errorf("Body(plain error) = %s", got)
	}
}

func TestMDoRequest_Keys(t *testing.T) {
	req := NewMDoRequest([]*MDoCall{
		{Path: "/api/user/me"},
		{Path: "/api/user/get", Args: map[string][]string{"users": {"u1"}}},
	})

	data, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `{"0":{"path":"/api/user/me"},"1":{"path":"/api/user/get","args":{"users":["u1"]}}}`
	if string(data) != want {
		t.Errorf("payload = %s, want %s", data, want)
	}
}

func TestParseMDoResponse_ByKey(t *testing.T) {
	resp, err := ParseMDoResponse([]byte(`{"1":{"status":404,"body":"not found"},"0":{"status":200,"body":"a"}}`))
	if err != nil {
		t.Fatalf("ParseMDoResponse: %v", err)
	}

	first, ok := resp.Result(0)
	if !ok || !first.OK() || string(first.Body) != `"a"` {
		t.Errorf("result 0 = %+v", first)
	}
	second, ok := resp.Result(1)
	if !ok || second.OK() || second.Err().Status != 404 {
		t.Errorf("result 1 = %+v", second)
	}
	if _, ok := resp.Result(2); ok {
		t.Error("result 2 should be missing")
	}
}
