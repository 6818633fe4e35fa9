package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/wegman-software/revgeo-go/internal/config"
	"github.com/wegman-software/revgeo-go/internal/metrics"
	"github.com/wegman-software/revgeo-go/internal/search"
)

type fakeSearcher struct {
	results []search.Result
	err     error
	calls   int
}

func (f *fakeSearcher) Search(lon, lat float64) ([]search.Result, error) {
	f.calls++
	return f.results, f.err
}

func ready(v bool) ReadyFunc { return func() bool { return v } }

func TestSearchHandler(t *testing.T) {
	hit := []search.Result{
		{District: "seoul", Level: 1, Name: "Seoul"},
		{District: "seoul", Level: 4, Name: "Li", Vertices: []orb.Point{{126.9, 37.5}}},
	}

	tests := []struct {
		name       string
		searcher   *fakeSearcher
		url        string
		wantStatus int
		wantBody   string
	}{
		{"hit", &fakeSearcher{results: hit}, "/search?lon=126.97&lat=37.56", http.StatusOK, `"lnglats":[[126.9,37.5]]`},
		{"legacy path", &fakeSearcher{results: hit}, "/tarantula?lon=126.97&lat=37.56", http.StatusOK, `"name":"Seoul"`},
		{"miss", &fakeSearcher{}, "/search?lon=0&lat=0", http.StatusOK, `[]`},
		{"bad lon", &fakeSearcher{}, "/search?lon=abc&lat=1", http.StatusBadRequest, `invalid lon`},
		{"missing lat", &fakeSearcher{}, "/search?lon=1", http.StatusBadRequest, `invalid lat`},
		{"not ready", &fakeSearcher{err: search.ErrNotReady}, "/search?lon=1&lat=1", http.StatusServiceUnavailable, `{"error":"index not ready"}`},
		{"internal error", &fakeSearcher{err: errors.New("boom")}, "/search?lon=1&lat=1", http.StatusInternalServerError, `internal error`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := Handler(tt.searcher, ready(true), nil)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.url, nil))

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if !strings.Contains(rec.Body.String(), tt.wantBody) {
				t.Errorf("body %q does not contain %q", rec.Body.String(), tt.wantBody)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q", ct)
			}
		})
	}
}

func TestSearchHandlerOmitsEmptyVertices(t *testing.T) {
	s := &fakeSearcher{results: []search.Result{{District: "d", Level: 2, Name: "n"}}}
	rec := httptest.NewRecorder()
	Handler(s, ready(true), nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/search?lon=1&lat=2", nil))

	var body []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if len(body) != 1 {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
	if _, ok := body[0]["lnglats"]; ok {
		t.Error("lnglats must be omitted for matches without vertices")
	}
	if body[0]["level"] != float64(2) {
		t.Errorf("level = %v", body[0]["level"])
	}
}

func TestHealthz(t *testing.T) {
	for _, tt := range []struct {
		ready bool
		want  int
	}{{true, http.StatusOK}, {false, http.StatusServiceUnavailable}} {
		rec := httptest.NewRecorder()
		Handler(&fakeSearcher{}, ready(tt.ready), nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		if rec.Code != tt.want {
			t.Errorf("ready=%v: status = %d, want %d", tt.ready, rec.Code, tt.want)
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewSearch(reg)
	m.ObserveQuery(metrics.OutcomeHit, time.Millisecond)

	rec := httptest.NewRecorder()
	Handler(&fakeSearcher{}, ready(true), reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "revgeo_queries_total") {
		t.Error("expected search metrics in exposition")
	}

	rec = httptest.NewRecorder()
	Handler(&fakeSearcher{}, ready(true), nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("without a gatherer /metrics should 404, got %d", rec.Code)
	}
}

func TestEngineBehindHandler(t *testing.T) {
	reg := search.NewRegistry()
	engine := search.NewEngine(reg, 2, nil)
	h := Handler(engine, reg.Ready, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/search?lon=5&lat=5", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status before publication = %d, want 503", rec.Code)
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	wrapped := RateLimitMiddleware(3, time.Minute)(handler)

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/search", nil)
		req.RemoteAddr = "10.1.1.1:5555"
		rec := httptest.NewRecorder()
		wrapped.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d", i+1, rec.Code)
		}
		if got := rec.Header().Get("X-RateLimit-Limit"); got != "3" {
			t.Errorf("X-RateLimit-Limit = %q", got)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/search", nil)
	req.RemoteAddr = "10.1.1.1:5555"
	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "rate limit exceeded") {
		t.Errorf("unexpected body %q", rec.Body.String())
	}

	// another client has its own budget
	req = httptest.NewRequest(http.MethodGet, "/search", nil)
	req.RemoteAddr = "10.2.2.2:5555"
	rec = httptest.NewRecorder()
	wrapped.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("other client: status = %d", rec.Code)
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		forwarded  string
		realIP     string
		want       string
	}{
		{"forwarded chain", "192.168.1.1:1234", "10.0.0.1, 10.0.0.2", "", "10.0.0.1"},
		{"real ip", "192.168.1.1:1234", "", "10.0.0.9", "10.0.0.9"},
		{"remote addr", "192.168.1.1:1234", "", "", "192.168.1.1"},
		{"ipv6 remote addr", "[::1]:1234", "", "", "::1"},
		{"no port", "192.168.1.1", "", "", "192.168.1.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			if tt.realIP != "" {
				req.Header.Set("X-Real-IP", tt.realIP)
			}
			if got := clientIP(req); got != tt.want {
				t.Errorf("clientIP = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewServer(t *testing.T) {
	cfg := config.DefaultConfig().Server
	cfg.Port = 9999
	cfg.RateLimit = 10
	s := NewServer(&cfg, http.NotFoundHandler())
	if s.srv.Addr != "0.0.0.0:9999" {
		t.Errorf("Addr = %s", s.srv.Addr)
	}
	if s.srv.ReadTimeout != cfg.ReadTimeout || s.srv.WriteTimeout != cfg.WriteTimeout {
		t.Error("timeouts not applied")
	}
}
