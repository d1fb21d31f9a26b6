package jaeger

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, srv.Client(), ClientOptions{}, zap.NewNop())
}

func TestSearchTraces(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/traces" {
			t.Errorf("path = %q", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("service") != "validator-0" || q.Get("limit") != "50" || q.Get("lookback") != "1h" {
			t.Errorf("query = %v", q)
		}
		w.Write([]byte(`{"data": [
			{"traceID": "t1", "spans": [], "processes": {}},
			{"traceID": "t2", "spans": [], "processes": {}}
		], "total": 2, "limit": 50, "offset": 0, "errors": null}`))
	})

	traces, skipped, err := client.SearchTraces(context.Background(), SearchParams{
		Service:  "validator-0",
		Limit:    50,
		Lookback: "1h",
	})
	if err != nil {
		t.Fatalf("SearchTraces() error = %v", err)
	}
	if skipped != 0 {
		t.Errorf("skipped = %d, want 0", skipped)
	}
	if len(traces) != 2 || traces[0].TraceID != "t1" || traces[1].TraceID != "t2" {
		t.Errorf("traces = %+v", traces)
	}
}

func TestSearchTraces_SkipsMalformedTrace(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		// Middle entry has spans as an object instead of an array.
		w.Write([]byte(`{"data": [
			{"traceID": "t1", "spans": [], "processes": {}},
			{"traceID": "t2", "spans": {"bogus": true}, "processes": {}},
			{"traceID": "t3", "spans": [], "processes": {}}
		], "errors": null}`))
	})

	traces, skipped, err := client.SearchTraces(context.Background(), SearchParams{Service: "s"})
	if err != nil {
		t.Fatalf("SearchTraces() error = %v", err)
	}
	if skipped != 1 {
		t.Errorf("skipped = %d, want 1", skipped)
	}
	if len(traces) != 2 || traces[0].TraceID != "t1" || traces[1].TraceID != "t3" {
		t.Errorf("traces = %+v", traces)
	}
}

func TestSearchTraces_BackendErrors(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data": [], "errors": [{"code": 500, "msg": "storage down"}]}`))
	})

	_, _, err := client.SearchTraces(context.Background(), SearchParams{Service: "s"})
	var derr *DecodeError
	if !errors.As(err, &derr) {
		t.Fatalf("error = %v, want *DecodeError", err)
	}
}

func TestSearchTraces_MalformedEnvelope(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	})

	_, _, err := client.SearchTraces(context.Background(), SearchParams{Service: "s"})
	var derr *DecodeError
	if !errors.As(err, &derr) {
		t.Fatalf("error = %v, want *DecodeError", err)
	}
}

func TestSearchTraces_Non200(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	})

	_, _, err := client.SearchTraces(context.Background(), SearchParams{Service: "s"})
	if err == nil {
		t.Fatal("SearchTraces() error = nil")
	}
	var derr *DecodeError
	if errors.As(err, &derr) {
		t.Errorf("transport failure classified as decode error: %v", err)
	}
}

func TestTrace(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/traces/3c58a09870e2dced" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Write([]byte(`{"data": [{"traceID": "3c58a09870e2dced", "spans": [], "processes": {}}]}`))
	})

	tr, err := client.Trace(context.Background(), "3c58a09870e2dced")
	if err != nil {
		t.Fatalf("Trace() error = %v", err)
	}
	if tr.TraceID != "3c58a09870e2dced" {
		t.Errorf("TraceID = %q", tr.TraceID)
	}
}

func TestTrace_NotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data": []}`))
	})

	_, err := client.Trace(context.Background(), "deadbeef")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestServices(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/services" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Write([]byte(`{"data": ["validator-0", "validator-1"], "total": 2}`))
	})

	services, err := client.Services(context.Background())
	if err != nil {
		t.Fatalf("Services() error = %v", err)
	}
	if len(services) != 2 || services[0] != "validator-0" {
		t.Errorf("services = %v", services)
	}
}

func TestRawSearch_PassesBodyThrough(t *testing.T) {
	const body = `{"data": [], "total": 0}`
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	})

	got, err := client.RawSearch(context.Background(), SearchParams{Service: "s", Limit: 10})
	if err != nil {
		t.Fatalf("RawSearch() error = %v", err)
	}
	if string(got) != body {
		t.Errorf("body = %q, want %q", got, body)
	}
}

func TestClient_ContextCanceled(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data": []}`))
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := client.Services(ctx); err == nil {
		t.Fatal("Services() with canceled context: error = nil")
	}
}
