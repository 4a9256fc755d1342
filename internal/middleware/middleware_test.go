package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

func okHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func TestLimiterAllowsBurstThenBlocks(t *testing.T) {
	l := NewLimiter(StartRule)
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return clock }

	for i := 0; i < 3; i++ {
		if ok, _ := l.Allow("s1"); !ok {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	ok, wait := l.Allow("s1")
	if ok || wait <= 0 {
		t.Fatalf("fourth request should be blocked, ok=%v wait=%v", ok, wait)
	}
	if ok, _ := l.Allow("s2"); !ok {
		t.Fatal("other sessions must not share the bucket")
	}

	clock = clock.Add(20 * time.Second)
	if ok, _ := l.Allow("s1"); !ok {
		t.Fatal("a token should refill after a third of the window")
	}
}

func TestRateLimitMiddlewareKeysBySession(t *testing.T) {
	r := chi.NewRouter()
	r.With(RateLimit(NewLimiter(Rule{Attempts: 1, Window: time.Minute}))).Post("/sessions/{id}/start", okHandler)

	do := func(id string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/sessions/"+id+"/start", nil))
		return rec
	}

	if rec := do("a"); rec.Code != http.StatusOK {
		t.Fatalf("first request: %d", rec.Code)
	}
	rec := do("a")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header")
	}
	if !strings.Contains(rec.Body.String(), "rate_limited") {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
	if rec := do("b"); rec.Code != http.StatusOK {
		t.Fatalf("other session: %d", rec.Code)
	}
}

func TestCORS(t *testing.T) {
	h := CORS([]string{"https://narravox.example"})(http.HandlerFunc(okHandler))

	req := httptest.NewRequest(http.MethodOptions, "/api/sessions", nil)
	req.Header.Set("Origin", "https://narravox.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for preflight, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "https://narravox.example" {
		t.Fatalf("unexpected allow origin %q", rec.Header().Get("Access-Control-Allow-Origin"))
	}

	req = httptest.NewRequest(http.MethodGet, "/api/sessions", nil)
	req.Header.Set("Origin", "https://elsewhere.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatal("unknown origins must not be allowed")
	}

	rec = httptest.NewRecorder()
	CORS([]string{"*"})(http.HandlerFunc(okHandler)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatal("wildcard should allow any origin")
	}
}

type recordingObserver struct {
	route  string
	status int
}

func (o *recordingObserver) ObserveHTTP(_ string, route string, status int, _ time.Duration) {
	o.route = route
	o.status = status
}

func TestRequestLoggerUsesRoutePattern(t *testing.T) {
	var buf bytes.Buffer
	obs := &recordingObserver{}
	r := chi.NewRouter()
	r.Use(RequestLogger(zerolog.New(&buf), obs))
	r.Get("/sessions/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/sessions/abc", nil))

	if obs.route != "/sessions/{id}" || obs.status != http.StatusNotFound {
		t.Fatalf("unexpected observation %+v", obs)
	}
	if !strings.Contains(buf.String(), `"level":"warn"`) || !strings.Contains(buf.String(), `"route":"/sessions/{id}"`) {
		t.Fatalf("unexpected log line %s", buf.String())
	}
}
