package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/scriptward/scriptward/internal/enclave"
	"github.com/scriptward/scriptward/internal/model"
)

func TestRegistryDispatchesByName(t *testing.T) {
	var gotArgs map[string]any
	fn := Registry(map[string]Handler{
		"add": func(_ context.Context, args map[string]any) (any, error) {
			gotArgs = args
			return args["a"].(float64) + args["b"].(float64), nil
		},
		"boom": func(_ context.Context, _ map[string]any) (any, error) {
			return nil, errors.New("should not run")
		},
	})

	v, err := fn(context.Background(), "add", map[string]any{"a": float64(2), "b": float64(3)})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if v != float64(5) {
		t.Errorf("result = %v", v)
	}
	if gotArgs["a"] != float64(2) {
		t.Errorf("args = %v", gotArgs)
	}
}

func TestRegistryUnknownTool(t *testing.T) {
	fn := Registry(map[string]Handler{})
	_, err := fn(context.Background(), "nope", nil)
	if err == nil || !strings.Contains(err.Error(), `unknown tool "nope"`) {
		t.Errorf("err = %v", err)
	}
}

func TestRegistryCopiesHandlerTable(t *testing.T) {
	handlers := map[string]Handler{
		"t": func(_ context.Context, _ map[string]any) (any, error) { return "v1", nil },
	}
	fn := Registry(handlers)
	handlers["t"] = func(_ context.Context, _ map[string]any) (any, error) { return "v2", nil }
	delete(handlers, "t")

	v, err := fn(context.Background(), "t", nil)
	if err != nil || v != "v1" {
		t.Errorf("got (%v, %v), want the handler bound at construction", v, err)
	}
}

func TestEchoReflectsArgs(t *testing.T) {
	fn := Echo()
	v, err := fn(context.Background(), "echo", map[string]any{"k": "v"})
	if err != nil {
		t.Fatalf("echo: %v", err)
	}
	if v.(map[string]any)["k"] != "v" {
		t.Errorf("echo = %v", v)
	}
	if v, err := fn(context.Background(), "echo", nil); err != nil || len(v.(map[string]any)) != 0 {
		t.Errorf("nil args should echo an empty object, got (%v, %v)", v, err)
	}
	if _, err := fn(context.Background(), "other", nil); err == nil {
		t.Error("non-echo tool accepted")
	}
}

func TestHTTPRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-tool" {
			t.Errorf("auth = %q", got)
		}
		if got := r.Header.Get("Content-Type"); got != "application/json" {
			t.Errorf("content type = %q", got)
		}
		var req wireRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Name != "lookup" || req.Args["id"] != float64(12) {
			t.Errorf("request = %+v", req)
		}
		_ = json.NewEncoder(w).Encode(wireResponse{Result: map[string]any{"found": true}})
	}))
	defer srv.Close()

	fn := HTTP(srv.URL, "sk-tool", time.Second)
	v, err := fn(context.Background(), "lookup", map[string]any{"id": float64(12)})
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if v.(map[string]any)["found"] != true {
		t.Errorf("result = %v", v)
	}
}

func TestHTTPErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(wireResponse{Error: "index is rebuilding"})
	}))
	defer srv.Close()

	_, err := HTTP(srv.URL, "", time.Second)(context.Background(), "lookup", nil)
	if err == nil || err.Error() != "index is rebuilding" {
		t.Errorf("err = %v", err)
	}
}

func TestHTTPNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "backend down", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := HTTP(srv.URL, "", time.Second)(context.Background(), "lookup", nil)
	if err == nil || !strings.Contains(err.Error(), "HTTP 502") || !strings.Contains(err.Error(), "backend down") {
		t.Errorf("err = %v", err)
	}
}

func TestHTTPTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	_, err := HTTP(srv.URL, "", time.Second)(context.Background(), "lookup", nil)
	if err == nil {
		t.Fatal("expected a transport error")
	}
}

func TestHTTPPreservesContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// net/http starts client-disconnect detection (which cancels
		// r.Context) only after the request body is consumed.
		_, _ = io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := HTTP(srv.URL, "", 10*time.Second)(ctx, "lookup", nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want a context.Canceled chain", err)
	}
}

func TestHTTPBadJSONResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html>gateway error</html>")
	}))
	defer srv.Close()

	_, err := HTTP(srv.URL, "", time.Second)(context.Background(), "lookup", nil)
	if err == nil || !strings.Contains(err.Error(), "parse tool response") {
		t.Errorf("err = %v", err)
	}
}

// A remote failure surfaces to the script as a catchable tool error.
func TestHTTPFailureClassifiedThroughSandbox(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(wireResponse{Error: "record not found"})
	}))
	defer srv.Close()

	e, err := enclave.New(enclave.Config{
		Level: model.LevelStandard,
		Tools: HTTP(srv.URL, "", time.Second),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer e.Dispose()

	res := e.Run(context.Background(), `
try {
  callTool("lookup", { id: 1 });
} catch (e) {
  return e.kind + ": " + e.message;
}
`)
	if !res.Success {
		t.Fatalf("run failed: %+v", res.Error)
	}
	s, _ := res.Value.(string)
	if !strings.HasPrefix(s, "tool_error: ") || !strings.Contains(s, "record not found") {
		t.Errorf("caught = %q", s)
	}
}
