// Package patchserver serves a patch directory over HTTP and tells
// subscribers when the patch list gains a newer version.
package patchserver

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tqbf/patchup/pkg/notify"
	"github.com/tqbf/patchup/pkg/patchlist"
	"github.com/tqbf/patchup/pkg/paths"
)

const EventsPath = "/events"

type Server struct {
	Dir      string
	ListName string
	Logger   *slog.Logger
	// Origins are extra browser origin hosts allowed on the events
	// endpoint.
	Origins []string

	reg     *prometheus.Registry
	metrics *metrics
	hub     *notify.Hub

	mu     sync.Mutex
	latest patchlist.Entry
}

func New(dir, listName string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(
			collectors.ProcessCollectorOpts{},
		),
	)
	m := newMetrics(reg)
	return &Server{
		Dir:      dir,
		ListName: listName,
		Logger:   logger,
		reg:      reg,
		metrics:  m,
		hub: &notify.Hub{
			Logger: logger,
			OnCount: func(n int) {
				m.Subscribers.Set(float64(n))
			},
		},
	}
}

func (s *Server) Handler() http.Handler {
	s.hub.OriginPatterns = s.Origins
	mux := http.NewServeMux()
	mux.Handle(EventsPath, s.hub)
	mux.Handle("/metrics", promhttp.HandlerFor(
		s.reg, promhttp.HandlerOpts{},
	))
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/", s.handleFile)
	return mux
}

// Latest returns the newest entry seen in the patch list.
func (s *Server) Latest() patchlist.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest
}

func (s *Server) Subscribers() int {
	return s.hub.Count()
}

// Reload re-reads the patch list and publishes its newest entry when the
// version grew.
func (s *Server) Reload() error {
	ix, err := patchlist.Load(filepath.Join(s.Dir, s.ListName))
	if err != nil {
		return err
	}
	if ix.Len() == 0 {
		return nil
	}
	entries := ix.Entries()
	newest := entries[len(entries)-1]

	s.mu.Lock()
	grew := newest.Version > s.latest.Version
	if grew {
		s.latest = newest
	}
	s.mu.Unlock()

	if !grew {
		return nil
	}
	s.metrics.LatestVersion.Set(float64(newest.Version))
	s.Logger.Info("published",
		"version", newest.Version,
		"archive", newest.Archive,
	)
	s.hub.Publish(notify.Message{
		Type:    notify.TypePublished,
		Version: newest.Version,
		Archive: newest.Archive,
	})
	return nil
}

// Watch reloads the patch list whenever it changes until ctx ends. The
// directory is watched rather than the file so atomic replacements are
// seen.
func (s *Server) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Add(s.Dir); err != nil {
		return err
	}

	listPath := filepath.Clean(filepath.Join(s.Dir, s.ListName))
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != listPath {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) &&
				!ev.Has(fsnotify.Rename) {
				continue
			}
			err := s.Reload()
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			if err != nil {
				s.Logger.Warn("reload patch list", "err", err)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.Logger.Warn("watch", "err", err)
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("ok\n"))
}

func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	name := strings.TrimPrefix(r.URL.Path, "/")
	if name == "" || paths.ValidateRelPath(name) != nil {
		s.metrics.Requests.WithLabelValues("rejected").Inc()
		http.NotFound(w, r)
		return
	}

	f, err := os.Open(filepath.Join(s.Dir, filepath.FromSlash(name)))
	if err != nil {
		s.metrics.Requests.WithLabelValues("missing").Inc()
		http.NotFound(w, r)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil || !info.Mode().IsRegular() {
		s.metrics.Requests.WithLabelValues("missing").Inc()
		http.NotFound(w, r)
		return
	}

	kind := "archive"
	if name == s.ListName {
		kind = "list"
		w.Header().Set("Cache-Control", "no-cache")
	}
	s.metrics.Requests.WithLabelValues(kind).Inc()

	cw := &countingWriter{ResponseWriter: w}
	start := time.Now()
	http.ServeContent(cw, r, info.Name(), info.ModTime(), f)
	s.metrics.BytesServed.Add(float64(cw.n))
	s.Logger.Debug("served",
		"path", name,
		"bytes", cw.n,
		"elapsed", time.Since(start),
	)
}

type countingWriter struct {
	http.ResponseWriter
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.ResponseWriter.Write(p)
	c.n += int64(n)
	return n, err
}
