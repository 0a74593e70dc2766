package connectivity

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hazyhaar/sidekick/netguard"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func echo(_ context.Context, payload []byte) ([]byte, error) {
	return payload, nil
}

func TestRegisterLocal_and_Call(t *testing.T) {
	r := New(WithLogger(quietLogger()))
	r.RegisterLocal("echo", echo)

	resp, err := r.Call(context.Background(), "echo", []byte(`"hello"`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(resp) != `"hello"` {
		t.Fatalf("got %q", resp)
	}
}

func TestCall_ServiceNotFound(t *testing.T) {
	r := New(WithLogger(quietLogger()))
	_, err := r.Call(context.Background(), "nonexistent", nil)
	var snf *ErrServiceNotFound
	if !errors.As(err, &snf) {
		t.Fatalf("expected ErrServiceNotFound, got %T: %v", err, err)
	}
	if snf.Service != "nonexistent" {
		t.Fatalf("got service %q", snf.Service)
	}
}

func TestSetRoute_Noop(t *testing.T) {
	r := New(WithLogger(quietLogger()))
	var calls atomic.Int32
	r.RegisterLocal("op", func(context.Context, []byte) ([]byte, error) {
		calls.Add(1)
		return []byte(`1`), nil
	})
	if err := r.SetRoute(Route{Service: "op", Strategy: StrategyNoop}); err != nil {
		t.Fatal(err)
	}
	resp, err := r.Call(context.Background(), "op", nil)
	if err != nil || resp != nil {
		t.Fatalf("noop: resp=%q err=%v", resp, err)
	}
	if calls.Load() != 0 {
		t.Fatal("local handler ran behind a noop route")
	}

	r.RemoveRoute("op")
	if _, err := r.Call(context.Background(), "op", nil); err != nil || calls.Load() != 1 {
		t.Fatalf("after RemoveRoute: err=%v calls=%d", err, calls.Load())
	}
}

func TestSetRoute_NoFactory(t *testing.T) {
	r := New(WithLogger(quietLogger()))
	err := r.SetRoute(Route{Service: "op", Strategy: "grpc", Endpoint: "x"})
	var nf *ErrNoFactory
	if !errors.As(err, &nf) || nf.Strategy != "grpc" {
		t.Fatalf("err = %v", err)
	}
	if len(r.Routes()) != 0 {
		t.Fatal("failed route must not be installed")
	}
}

func TestSetRoute_FactoryFailed(t *testing.T) {
	r := New(WithLogger(quietLogger()))
	boom := errors.New("boom")
	r.RegisterTransport("mock", func(string, json.RawMessage) (Handler, func(), error) {
		return nil, nil, boom
	})
	err := r.SetRoute(Route{Service: "op", Strategy: "mock"})
	var ff *ErrFactoryFailed
	if !errors.As(err, &ff) || !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
}

func TestSetRoute_RemoteReplacesAndCloses(t *testing.T) {
	r := New(WithLogger(quietLogger()))
	var built, closed atomic.Int32
	r.RegisterTransport("mock", func(endpoint string, _ json.RawMessage) (Handler, func(), error) {
		built.Add(1)
		return func(context.Context, []byte) ([]byte, error) {
			return []byte(`"` + endpoint + `"`), nil
		}, func() { closed.Add(1) }, nil
	})
	r.RegisterLocal("op", echo)

	if err := r.SetRoute(Route{Service: "op", Strategy: "mock", Endpoint: "a"}); err != nil {
		t.Fatal(err)
	}
	// unchanged route keeps its handler
	if err := r.SetRoute(Route{Service: "op", Strategy: "mock", Endpoint: "a"}); err != nil {
		t.Fatal(err)
	}
	if built.Load() != 1 {
		t.Fatalf("built = %d, want 1", built.Load())
	}

	resp, _ := r.Call(context.Background(), "op", []byte(`"x"`))
	if string(resp) != `"a"` {
		t.Fatalf("remote must win over local, got %s", resp)
	}

	if err := r.SetRoute(Route{Service: "op", Strategy: "mock", Endpoint: "b"}); err != nil {
		t.Fatal(err)
	}
	if closed.Load() != 1 {
		t.Fatalf("closed = %d, want 1", closed.Load())
	}
	resp, _ = r.Call(context.Background(), "op", nil)
	if string(resp) != `"b"` {
		t.Fatalf("got %s", resp)
	}

	r.Close()
	if closed.Load() != 2 {
		t.Fatalf("Close must close remote handlers, closed = %d", closed.Load())
	}
}

func TestSetRoute_RetryAndFallback(t *testing.T) {
	r := New(WithLogger(quietLogger()))
	var attempts atomic.Int32
	r.RegisterTransport("flaky", func(string, json.RawMessage) (Handler, func(), error) {
		return func(context.Context, []byte) ([]byte, error) {
			attempts.Add(1)
			return nil, errors.New("down")
		}, nil, nil
	})
	r.RegisterLocal("op", func(context.Context, []byte) ([]byte, error) {
		return []byte(`"local"`), nil
	})

	err := r.SetRoute(Route{
		Service:  "op",
		Strategy: "flaky",
		Config:   json.RawMessage(`{"max_retries":2,"backoff_ms":1,"fallback_local":true}`),
	})
	if err != nil {
		t.Fatal(err)
	}
	resp, err := r.Call(context.Background(), "op", nil)
	if err != nil {
		t.Fatal(err)
	}
	if string(resp) != `"local"` {
		t.Fatalf("got %s", resp)
	}
	if attempts.Load() != 3 {
		t.Fatalf("attempts = %d, want 3", attempts.Load())
	}
}

func TestServices(t *testing.T) {
	r := New(WithLogger(quietLogger()))
	r.RegisterLocal("b", echo)
	r.RegisterLocal("a", echo)
	r.SetRoute(Route{Service: "c", Strategy: StrategyNoop})
	r.SetRoute(Route{Service: "a", Strategy: StrategyLocal})

	if got := r.Services(); !slices.Equal(got, []string{"a", "b", "c"}) {
		t.Fatalf("Services = %v", got)
	}
}

func TestDispatch(t *testing.T) {
	r := New(WithLogger(quietLogger()))
	r.RegisterLocal("echo", echo)
	r.RegisterLocal("text", func(context.Context, []byte) ([]byte, error) {
		return []byte("not json"), nil
	})
	r.RegisterLocal("bad", func(context.Context, []byte) ([]byte, error) {
		return nil, &ErrInvalidPayload{Service: "bad", Cause: errors.New("missing url")}
	})
	r.RegisterLocal("slow", Timeout(time.Millisecond)(func(ctx context.Context, _ []byte) ([]byte, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}))
	r.RegisterLocal("boom", Recovery(quietLogger())(func(context.Context, []byte) ([]byte, error) {
		panic("kaboom")
	}))

	tests := []struct {
		name   string
		msg    Message
		ok     bool
		code   string
		result string
	}{
		{"echo", Message{ID: "1", Type: "echo", Payload: json.RawMessage(`{"a":1}`)}, true, "", `{"a":1}`},
		{"empty payload", Message{ID: "2", Type: "echo"}, true, "", `{}`},
		{"non-json result", Message{ID: "3", Type: "text"}, true, "", `"not json"`},
		{"unknown", Message{ID: "4", Type: "does_not_exist"}, false, CodeUnknownOperation, ""},
		{"invalid", Message{ID: "5", Type: "bad"}, false, CodeInvalidPayload, ""},
		{"timeout", Message{ID: "6", Type: "slow"}, false, CodeTimeout, ""},
		{"panic", Message{ID: "7", Type: "boom"}, false, CodePanic, ""},
		{"no type", Message{ID: "8"}, false, CodeInvalidPayload, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := r.Dispatch(context.Background(), tt.msg)
			if resp.ID != tt.msg.ID || resp.Type != tt.msg.Type {
				t.Errorf("id/type not echoed: %+v", resp)
			}
			if resp.OK != tt.ok || resp.Code != tt.code {
				t.Fatalf("ok=%v code=%q error=%q", resp.OK, resp.Code, resp.Error)
			}
			if tt.ok && string(resp.Result) != tt.result {
				t.Errorf("result = %s, want %s", resp.Result, tt.result)
			}
			if !tt.ok && resp.Error == "" {
				t.Error("failure without error text")
			}
		})
	}
}

func TestDispatchJSON(t *testing.T) {
	r := New(WithLogger(quietLogger()))
	r.RegisterLocal("echo", echo)

	resp := r.DispatchJSON(context.Background(), []byte(`{"type":"echo","payload":[1,2]}`))
	if !resp.OK || string(resp.Result) != `[1,2]` {
		t.Fatalf("resp = %+v", resp)
	}
	if resp.ID == "" {
		t.Error("missing generated id")
	}

	resp = r.DispatchJSON(context.Background(), []byte(`{not json`))
	if resp.OK || resp.Code != CodeInvalidPayload {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestChainOrder(t *testing.T) {
	var order []string
	mw := func(name string) HandlerMiddleware {
		return func(next Handler) Handler {
			return func(ctx context.Context, p []byte) ([]byte, error) {
				order = append(order, name)
				return next(ctx, p)
			}
		}
	}
	h := Chain(mw("outer"), mw("inner"))(echo)
	h(context.Background(), nil)
	if !slices.Equal(order, []string{"outer", "inner"}) {
		t.Fatalf("order = %v", order)
	}
}

func TestRetry_StopsOnUnknownOperation(t *testing.T) {
	var calls int
	h := WithRetry(3, time.Millisecond, nil)(func(context.Context, []byte) ([]byte, error) {
		calls++
		return nil, &ErrServiceNotFound{Service: "x"}
	})
	if _, err := h(context.Background(), nil); err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestHTTPFactory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost || req.Header.Get("Content-Type") != "application/json" {
			t.Errorf("unexpected request %s %s", req.Method, req.Header.Get("Content-Type"))
		}
		if req.URL.Path == "/fail" {
			http.Error(w, "nope", http.StatusBadGateway)
			return
		}
		body, _ := io.ReadAll(req.Body)
		w.Write(append([]byte(`{"got":`), append(body, '}')...))
	}))
	defer srv.Close()

	// loopback endpoints are refused by default
	if _, _, err := HTTPFactory()(srv.URL, nil); !errors.Is(err, netguard.ErrPrivateAddress) {
		t.Fatalf("default policy: err = %v", err)
	}

	factory := HTTPFactory(WithHTTPPolicy(netguard.Policy{AllowPrivate: true}))
	h, closeFn, err := factory(srv.URL+"/ok", json.RawMessage(`{"timeout_ms":2000}`))
	if err != nil {
		t.Fatal(err)
	}
	defer closeFn()

	resp, err := h(context.Background(), []byte(`[1]`))
	if err != nil {
		t.Fatal(err)
	}
	if string(resp) != `{"got":[1]}` {
		t.Fatalf("resp = %s", resp)
	}

	hf, _, _ := factory(srv.URL+"/fail", nil)
	if _, err := hf(context.Background(), nil); err == nil {
		t.Fatal("expected error on 502")
	}

	if _, _, err := factory(srv.URL+"/ok", json.RawMessage(`{"timeout_ms":"soon"}`)); err == nil {
		t.Fatal("malformed route config must fail")
	}
	r := New()
	r.RegisterTransport("http", factory)
	err = r.SetRoute(Route{Service: "svc", Strategy: "http", Endpoint: srv.URL + "/ok", Config: json.RawMessage(`[`)})
	var ff *ErrFactoryFailed
	if !errors.As(err, &ff) {
		t.Fatalf("SetRoute with bad config: err = %v", err)
	}
}
