package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type fakeControl struct {
	running  bool
	lines    []string
	startErr error
	stopErr  error
	starts   int
	stops    int
}

func (f *fakeControl) StartCompositor() error { f.starts++; return f.startErr }
func (f *fakeControl) StopCompositor() error  { f.stops++; return f.stopErr }
func (f *fakeControl) IsRunning() bool        { return f.running }
func (f *fakeControl) LogLines() []string     { return f.lines }

func newTestServer(t *testing.T, ctrl Control, basePath string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(NewRouter(ctrl, basePath).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return out
}

func TestStatusEndpoint(t *testing.T) {
	ctrl := &fakeControl{running: true}
	srv := newTestServer(t, ctrl, "")

	resp, err := http.Get(srv.URL + "/status")
	if err != nil {
		t.Fatalf("GET /status: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status code = %d", resp.StatusCode)
	}
	if got := decode[statusResp](t, resp); !got.Running {
		t.Fatalf("running = false, want true")
	}
}

func TestStartStopEndpoints(t *testing.T) {
	ctrl := &fakeControl{}
	srv := newTestServer(t, ctrl, "")

	resp, err := http.Post(srv.URL+"/start", "application/json", nil)
	if err != nil {
		t.Fatalf("POST /start: %v", err)
	}
	if resp.StatusCode != http.StatusOK || !decode[okResp](t, resp).OK {
		t.Fatalf("start reply unexpected: %d", resp.StatusCode)
	}

	resp, err = http.Post(srv.URL+"/stop", "application/json", nil)
	if err != nil {
		t.Fatalf("POST /stop: %v", err)
	}
	if resp.StatusCode != http.StatusOK || !decode[okResp](t, resp).OK {
		t.Fatalf("stop reply unexpected: %d", resp.StatusCode)
	}

	if ctrl.starts != 1 || ctrl.stops != 1 {
		t.Fatalf("starts=%d stops=%d, want 1/1", ctrl.starts, ctrl.stops)
	}
}

func TestStartFailureReturns500(t *testing.T) {
	ctrl := &fakeControl{startErr: errors.New("spawn failed")}
	srv := newTestServer(t, ctrl, "")

	resp, err := http.Post(srv.URL+"/start", "application/json", nil)
	if err != nil {
		t.Fatalf("POST /start: %v", err)
	}
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status code = %d, want 500", resp.StatusCode)
	}
	if got := decode[errorResp](t, resp); !strings.Contains(got.Error, "spawn failed") {
		t.Fatalf("error body = %q", got.Error)
	}
}

func TestLogsEndpoint(t *testing.T) {
	ctrl := &fakeControl{lines: []string{"one", "two"}}
	srv := newTestServer(t, ctrl, "")

	resp, err := http.Get(srv.URL + "/logs")
	if err != nil {
		t.Fatalf("GET /logs: %v", err)
	}
	got := decode[logsResp](t, resp)
	if len(got.Lines) != 2 || got.Lines[0] != "one" {
		t.Fatalf("lines = %v", got.Lines)
	}
}

func TestBasePathPrefixing(t *testing.T) {
	ctrl := &fakeControl{}
	srv := newTestServer(t, ctrl, "api")

	resp, err := http.Get(srv.URL + "/api/healthz")
	if err != nil {
		t.Fatalf("GET /api/healthz: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("prefixed healthz = %d", resp.StatusCode)
	}
	_ = resp.Body.Close()

	resp, err = http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unprefixed healthz = %d, want 404", resp.StatusCode)
	}
	_ = resp.Body.Close()
}

func TestMetricsEndpointServes(t *testing.T) {
	srv := newTestServer(t, &fakeControl{}, "")
	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics status = %d", resp.StatusCode)
	}
}

func TestSanitizeBase(t *testing.T) {
	cases := map[string]string{
		"":      "",
		"api":   "/api",
		"/api":  "/api",
		"/api/": "/api",
	}
	for in, want := range cases {
		if got := sanitizeBase(in); got != want {
			t.Fatalf("sanitizeBase(%q) = %q, want %q", in, got, want)
		}
	}
}
