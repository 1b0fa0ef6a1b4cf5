// Package endpoints serves the admin HTTP interface of a daemon: health,
// metrics and whatever JSON views the daemon registers.
package endpoints

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/virtual-imaging-platform/GASW-Healing-Plugin/common/stats"
)

const shutdownTimeout = 5 * time.Second

func NewServer(addr string, stat stats.StatsReceiver) *Server {
	s := &Server{
		Addr:   addr,
		Stats:  stat,
		router: chi.NewRouter(),
	}
	s.router.Use(middleware.Recoverer)
	s.router.NotFound(s.helpHandler)
	s.router.Get("/health", healthHandler)
	s.router.Get("/admin/metrics.json", s.statsHandler)
	s.paths = append(s.paths, "/health", "/admin/metrics.json")
	return s
}

type Server struct {
	Addr   string
	Stats  stats.StatsReceiver
	router chi.Router
	paths  []string
}

// AddJSON serves the value returned by render on GET path.
func (s *Server) AddJSON(path string, render func() (interface{}, error)) {
	s.router.Get(path, func(w http.ResponseWriter, r *http.Request) {
		v, err := render()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, r, v)
	})
	s.paths = append(s.paths, path)
}

// AddHandler serves h for method on path.
func (s *Server) AddHandler(method, path string, h http.HandlerFunc) {
	s.router.Method(method, path, h)
	s.paths = append(s.paths, method+" "+path)
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Serve blocks until ctx is cancelled or the listener fails.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{Addr: s.Addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		log.Infof("Serving http & stats on %s", s.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errCh
		return nil
	}
}

func (s *Server) helpHandler(w http.ResponseWriter, r *http.Request) {
	paths := append([]string(nil), s.paths...)
	sort.Strings(paths)
	http.Error(w, fmt.Sprintf("Common paths: '%s'", strings.Join(paths, "', '")), http.StatusNotImplemented)
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	fmt.Fprintf(w, "ok")
}

func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")

	pretty := r.URL.Query().Get("pretty") == "true"
	str := s.Stats.Render(pretty)
	if _, err := io.Copy(w, bytes.NewBuffer(str)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}

func writeJSON(w http.ResponseWriter, r *http.Request, v interface{}) {
	var b []byte
	var err error
	if r.URL.Query().Get("pretty") == "true" {
		b, err = json.MarshalIndent(v, "", "  ")
	} else {
		b, err = json.Marshal(v)
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_, _ = w.Write(b)
}
