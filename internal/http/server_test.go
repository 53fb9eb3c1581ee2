package http

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"expensetracker/internal/backend"
	"expensetracker/internal/middleware/ratelimit"
)

// now is Thursday 16 May 2024, 14:30 UTC.
var now = time.Date(2024, 5, 16, 14, 30, 0, 0, time.UTC)

func newTestServer(t *testing.T, opts ...Option) *Server {
	t.Helper()
	res, err := backend.NewFactory(nil).CreateBackend(context.Background(), backend.Config{
		Type:            backend.MemoryBackend,
		Location:        time.UTC,
		DefaultCurrency: "USD",
		CacheSize:       16,
		CacheTTL:        time.Minute,
		Clock:           func() time.Time { return now },
	})
	require.NoError(t, err)

	opts = append([]Option{WithCacheCleanup(res.Cache, time.Hour)}, opts...)
	srv := NewServer("127.0.0.1:0", res.Service, res.Engine, opts...)
	t.Cleanup(func() {
		_ = srv.Shutdown(context.Background())
		_ = res.Cleanup()
	})
	return srv
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	switch {
	case strings.HasPrefix(body, "{"):
		req.Header.Set("Content-Type", "application/json")
	case body != "":
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func TestHealthAndCategories(t *testing.T) {
	srv := newTestServer(t)

	for _, path := range []string{"/healthz", "/readyz"} {
		rr := do(t, srv.Handler, http.MethodGet, path, "")
		assert.Equal(t, http.StatusOK, rr.Code, path)
	}

	rr := do(t, srv.Handler, http.MethodGet, "/api/categories", "")
	require.Equal(t, http.StatusOK, rr.Code)
	cats := decode[[]map[string]any](t, rr)
	require.Len(t, cats, 14)
	assert.Equal(t, "FOOD", cats[0]["code"])
	assert.Equal(t, "Food", cats[0]["name"])
	assert.Equal(t, "fastfood", cats[0]["icon"])
	assert.Equal(t, "#F44336", cats[0]["color"])
	assert.Equal(t, true, cats[12]["income"], "Salary is the income category")
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
}

func TestTransactionLifecycle(t *testing.T) {
	srv := newTestServer(t)

	rr := do(t, srv.Handler, http.MethodPost, "/api/transactions",
		`{"amount":"4.50","category":"coffee","timestamp":"2024-05-16T08:15"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	created := decode[map[string]any](t, rr)
	id := created["id"].(string)
	assert.Equal(t, "/api/transactions/"+id, rr.Header().Get("Location"))
	assert.Equal(t, "4.50", created["amount"])
	assert.Equal(t, "COFFEE", created["category"])
	assert.Equal(t, "Coffee", created["description"], "description defaults to the category name")
	assert.Equal(t, "USD", created["currency"])
	assert.Equal(t, "local_cafe", created["display"].(map[string]any)["icon"])

	rr = do(t, srv.Handler, http.MethodGet, "/api/transactions/"+id, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "2024-05-16T08:15:00Z", decode[map[string]any](t, rr)["timestamp"])

	rr = do(t, srv.Handler, http.MethodPut, "/api/transactions/"+id, `{"amount":5,"description":"Flat white"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	updated := decode[map[string]any](t, rr)
	assert.Equal(t, "5.00", updated["amount"])
	assert.Equal(t, "Flat white", updated["description"])
	assert.Equal(t, "COFFEE", updated["category"], "absent fields are kept")

	rr = do(t, srv.Handler, http.MethodDelete, "/api/transactions/"+id, "")
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = do(t, srv.Handler, http.MethodGet, "/api/transactions/"+id, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(t, srv.Handler, http.MethodDelete, "/api/transactions/"+id, "")
	assert.Equal(t, http.StatusNoContent, rr.Code, "deleting an unknown id is not an error")
}

func TestCreateAcceptsForm(t *testing.T) {
	srv := newTestServer(t)

	form := url.Values{
		"amount":      {"12,99"},
		"category":    {"FOOD"},
		"description": {"  Lunch\x00 "},
	}
	rr := do(t, srv.Handler, http.MethodPost, "/api/transactions", form.Encode())
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	created := decode[map[string]any](t, rr)
	assert.Equal(t, "12.99", created["amount"])
	assert.Equal(t, "Lunch", created["description"])
	assert.Equal(t, "2024-05-16T14:30:00Z", created["timestamp"], "missing timestamp means now")
}

func TestCreateValidation(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"missing amount", `{"category":"FOOD"}`},
		{"missing category", `{"amount":"1.00"}`},
		{"negative amount", `{"amount":"-1.00","category":"FOOD"}`},
		{"garbage amount", `{"amount":"abc","category":"FOOD"}`},
		{"amount too large", `{"amount":"100000000000000000000","category":"FOOD"}`},
		{"amount too large as number", `{"amount":1000000000000,"category":"FOOD"}`},
		{"unknown category", `{"amount":"1.00","category":"GROCERIES"}`},
		{"bad timestamp", `{"amount":"1.00","category":"FOOD","timestamp":"yesterday"}`},
		{"bad currency", `{"amount":"1.00","category":"FOOD","currency":"EURO"}`},
		{"malformed json", `{"amount":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, srv.Handler, http.MethodPost, "/api/transactions", tt.body)
			assert.Equal(t, http.StatusBadRequest, rr.Code, rr.Body.String())
			assert.NotEmpty(t, decode[map[string]string](t, rr)["error"])
		})
	}
}

func TestUpdateUnknownIs404(t *testing.T) {
	srv := newTestServer(t)
	rr := do(t, srv.Handler, http.MethodPut, "/api/transactions/missing", `{"amount":"1.00"}`)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestListFilters(t *testing.T) {
	srv := newTestServer(t)

	for _, body := range []string{
		`{"amount":"1.00","category":"FOOD","timestamp":"2024-05-14T10:00:00Z"}`,
		`{"amount":"2.00","category":"COFFEE","timestamp":"2024-05-15T23:59:00Z"}`,
		`{"amount":"3.00","category":"FOOD","timestamp":"2024-05-16T00:00:00Z"}`,
	} {
		require.Equal(t, http.StatusCreated, do(t, srv.Handler, http.MethodPost, "/api/transactions", body).Code)
	}

	amounts := func(target string) []string {
		rr := do(t, srv.Handler, http.MethodGet, target, "")
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		var out []string
		for _, tx := range decode[[]map[string]any](t, rr) {
			out = append(out, tx["amount"].(string))
		}
		return out
	}

	assert.Equal(t, []string{"3.00", "2.00", "1.00"}, amounts("/api/transactions"), "newest first")
	assert.Equal(t, []string{"2.00", "1.00"}, amounts("/api/transactions?from=2024-05-14&to=2024-05-15"), "date-only to includes that day")
	assert.Equal(t, []string{"2.00"}, amounts("/api/transactions?from=2024-05-15T00:00:00Z&to=2024-05-16T00:00:00Z"), "end is exclusive")
	assert.Equal(t, []string{"3.00", "1.00"}, amounts("/api/transactions?category=food"))
	assert.Equal(t, []string{"2.00"}, amounts("/api/transactions?exclude=FOOD"))
	assert.Nil(t, amounts("/api/transactions?category=RENT"))

	rr := do(t, srv.Handler, http.MethodGet, "/api/transactions?from=2024-05-16&to=2024-05-10", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestSummary(t *testing.T) {
	srv := newTestServer(t)

	rr := do(t, srv.Handler, http.MethodGet, "/api/summary", "")
	require.Equal(t, http.StatusOK, rr.Code)
	empty := decode[map[string]any](t, rr)
	assert.Equal(t, "0.00", empty["total"], "empty data is zero, not an error")
	assert.Len(t, empty["daily"], 7)

	for _, body := range []string{
		`{"amount":"2300.00","category":"SALARY","timestamp":"2024-05-16T07:44:00Z"}`,
		`{"amount":"4.00","category":"COFFEE","timestamp":"2024-05-16T09:00:00Z"}`,
		`{"amount":"6.00","category":"FOOD","timestamp":"2024-05-15T12:00:00Z"}`,
	} {
		require.Equal(t, http.StatusCreated, do(t, srv.Handler, http.MethodPost, "/api/transactions", body).Code)
	}

	rr = do(t, srv.Handler, http.MethodGet, "/api/summary", "")
	require.Equal(t, http.StatusOK, rr.Code)
	summary := decode[map[string]any](t, rr)
	assert.Equal(t, "4.00", summary["today"])
	assert.Equal(t, "6.00", summary["yesterday"])
	assert.Equal(t, "10.00", summary["total"])
	byCategory := summary["by_category"].(map[string]any)
	assert.Equal(t, "6.00", byCategory["FOOD"])
	assert.NotContains(t, byCategory, "SALARY")
}

func TestRateLimitOnMutations(t *testing.T) {
	srv := newTestServer(t, WithRateLimit(ratelimit.Config{RequestsPerMinute: 2}))

	body := `{"amount":"1.00","category":"FOOD"}`
	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusCreated, do(t, srv.Handler, http.MethodPost, "/api/transactions", body).Code)
	}
	rr := do(t, srv.Handler, http.MethodPost, "/api/transactions", body)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("Retry-After"))

	rr = do(t, srv.Handler, http.MethodGet, "/api/transactions", "")
	assert.Equal(t, http.StatusOK, rr.Code, "reads are not limited")
}

func TestRoutingErrors(t *testing.T) {
	srv := newTestServer(t)

	assert.Equal(t, http.StatusNotFound, do(t, srv.Handler, http.MethodGet, "/nope", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, srv.Handler, http.MethodGet, "/.git/config", "").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, do(t, srv.Handler, http.MethodPatch, "/api/summary", "").Code)
}

// readEvents forwards the data of every "summary" event on body.
func readEvents(body *bufio.Reader) <-chan map[string]any {
	out := make(chan map[string]any, 16)
	go func() {
		defer close(out)
		var event string
		for {
			line, err := body.ReadString('\n')
			if err != nil {
				return
			}
			line = strings.TrimRight(line, "\n")
			switch {
			case strings.HasPrefix(line, "event: "):
				event = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: ") && event == "summary":
				var v map[string]any
				if json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &v) == nil {
					out <- v
				}
			}
		}
	}()
	return out
}

func nextEvent(t *testing.T, events <-chan map[string]any) map[string]any {
	t.Helper()
	select {
	case ev, ok := <-events:
		require.True(t, ok, "stream closed")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for summary event")
		return nil
	}
}

func openStream(t *testing.T, ctx context.Context, baseURL string) *http.Response {
	t.Helper()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/api/summary/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	return resp
}

func TestSummaryStream(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Handler)
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	resp := openStream(t, ctx, ts.URL)
	defer resp.Body.Close()

	events := readEvents(bufio.NewReader(resp.Body))
	assert.Equal(t, "0.00", nextEvent(t, events)["today"])

	rr := do(t, srv.Handler, http.MethodPost, "/api/transactions", `{"amount":"4.50","category":"COFFEE"}`)
	require.Equal(t, http.StatusCreated, rr.Code)

	for {
		if ev := nextEvent(t, events); ev["today"] == "4.50" {
			break
		}
	}
}

func TestShutdownEndsStreams(t *testing.T) {
	srv := newTestServer(t, WithHeartbeat(50*time.Millisecond))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	served := make(chan error, 1)
	go func() { served <- srv.Serve(ln) }()

	resp := openStream(t, context.Background(), "http://"+ln.Addr().String())
	defer resp.Body.Close()
	events := readEvents(bufio.NewReader(resp.Body))
	nextEvent(t, events)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))
	assert.True(t, errors.Is(<-served, http.ErrServerClosed))

	select {
	case _, ok := <-events:
		assert.False(t, ok, "stream must end on shutdown")
	case <-time.After(2 * time.Second):
		t.Fatal("stream still open after shutdown")
	}
}
