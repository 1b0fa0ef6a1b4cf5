package endpoints_test

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/virtual-imaging-platform/GASW-Healing-Plugin/common/endpoints"
	"github.com/virtual-imaging-platform/GASW-Healing-Plugin/common/stats"
)

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestHealthAndMetrics(t *testing.T) {
	stat := stats.DefaultStatsReceiver()
	stat.Counter("healing", "requests").Inc(2)
	s := endpoints.NewServer("localhost:0", stat)

	rec := get(t, s.Handler(), "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = get(t, s.Handler(), "/admin/metrics.json")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"healing/requests": 2}`, rec.Body.String())
}

func TestJSONViews(t *testing.T) {
	s := endpoints.NewServer("localhost:0", stats.NilStatsReceiver())
	s.AddJSON("/admin/commands", func() (interface{}, error) {
		return []map[string]interface{}{{"command": "/bin/echo", "aborting": false}}, nil
	})
	s.AddJSON("/admin/broken", func() (interface{}, error) {
		return nil, errors.New("store unreachable")
	})
	var reloaded bool
	s.AddHandler(http.MethodPost, "/admin/reload", func(w http.ResponseWriter, r *http.Request) {
		reloaded = true
	})

	rec := get(t, s.Handler(), "/admin/commands")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"command": "/bin/echo", "aborting": false}]`, rec.Body.String())

	rec = get(t, s.Handler(), "/admin/broken")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "store unreachable")

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/reload", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, reloaded)

	rec = get(t, s.Handler(), "/nowhere")
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
	assert.Contains(t, rec.Body.String(), "/admin/commands")
}

func TestServeStopsWithContext(t *testing.T) {
	ln, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	s := endpoints.NewServer(addr, stats.NilStatsReceiver())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()

	assert.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/health")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return string(body) == "ok"
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not stop")
	}
}
