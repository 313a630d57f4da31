package statusserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bensig/golibre/internal/runner"
)

type fakeSource struct {
	statuses []runner.Status
}

func (f *fakeSource) Statuses() []runner.Status { return f.statuses }

func (f *fakeSource) RunnerStatus(name string) (runner.Status, bool) {
	for _, s := range f.statuses {
		if s.Name == name {
			return s, true
		}
	}
	return runner.Status{}, false
}

func serve(t *testing.T, src StatusSource, path string) *httptest.ResponseRecorder {
	t.Helper()
	s := New("127.0.0.1:0", src)
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.http.Handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	rec := serve(t, &fakeSource{}, "/healthz")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got=%d want=200", rec.Code)
	}
}

func TestStatusList(t *testing.T) {
	src := &fakeSource{statuses: []runner.Status{
		{Name: "alice:BTC/USDT:MarketRate", State: runner.StateIdle, Cycles: 3},
	}}
	rec := serve(t, src, "/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got=%d want=200", rec.Code)
	}
	var body struct {
		Runners []runner.Status `json:"runners"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Runners) != 1 || body.Runners[0].Cycles != 3 {
		t.Fatalf("body: %+v", body)
	}
}

func TestStatusByName(t *testing.T) {
	src := &fakeSource{statuses: []runner.Status{
		{Name: "alice:BTC/USDT:MarketRate", State: runner.StateIdle},
	}}
	rec := serve(t, src, "/status/alice:BTC/USDT:MarketRate")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got=%d want=200", rec.Code)
	}
	var got runner.Status
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Name != "alice:BTC/USDT:MarketRate" {
		t.Fatalf("name: got=%s", got.Name)
	}

	rec = serve(t, src, "/status/nope")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown runner status: got=%d want=404", rec.Code)
	}
}
