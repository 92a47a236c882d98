package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vesaa/sitepack/internal/bundle"
	"github.com/vesaa/sitepack/internal/stats"
)

// Options configure the dev server.
type Options struct {
	Addr string
	// Inline injects the live-reload client into served HTML.
	Inline bool
	// Debounce coalesces bursts of file changes into one rebuild.
	Debounce time.Duration
	// DBPath is ignored by the watcher; the history database lives next to
	// the sources by default.
	DBPath string
}

// Server rebuilds on change and serves the output directory.
type Server struct {
	opts    Options
	builder *bundle.Builder
	store   *Store
	stats   *stats.Collector
	hub     *Hub
	log     zerolog.Logger

	mu      sync.RWMutex
	last    *bundle.Result
	lastErr error
	outputs map[string]bool
}

// New returns a Server. store and collector may be nil.
func New(opts Options, builder *bundle.Builder, store *Store, collector *stats.Collector, log zerolog.Logger) *Server {
	return &Server{
		opts:    opts,
		builder: builder,
		store:   store,
		stats:   collector,
		hub:     NewHub(),
		log:     log,
		outputs: map[string]bool{},
	}
}

// Hub returns the reload event hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// OutDir is the directory the server serves built files from.
func (s *Server) OutDir() string {
	return s.builder.Options().OutDir
}

// Engine builds the gin engine with every route registered.
func (s *Server) Engine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())
	s.RegisterRoutes(r)
	s.RegisterEvents(r)
	s.RegisterStaticFiles(r)
	return r
}

// Rebuild runs one build, commits it and notifies connected browsers. A
// failed build keeps the previous output and is reported to the browsers
// without a reload.
func (s *Server) Rebuild(ctx context.Context, trigger string) error {
	started := time.Now()
	res, err := s.builder.Build(ctx)
	if err == nil {
		err = bundle.Commit(s.OutDir(), res)
		if err != nil {
			res = nil
		}
	}

	var snap *stats.Snapshot
	if s.stats != nil {
		snap = s.stats.Collect()
	}
	if s.store != nil {
		if _, rerr := s.store.RecordBuild(trigger, started, res, err, snap); rerr != nil {
			s.log.Warn().Err(rerr).Msg("[db] recording build failed")
		}
	}

	s.mu.Lock()
	s.lastErr = err
	if err == nil {
		s.last = res
		for _, a := range res.Artifacts {
			s.outputs[a.Path] = true
		}
	}
	s.mu.Unlock()

	if err != nil {
		s.log.Error().Err(err).Str("trigger", trigger).Msg("[serve] build failed, keeping previous output")
		s.hub.Broadcast(Event{Name: "build-error", Data: err.Error()})
		return err
	}

	ev := s.log.Info().
		Str("trigger", trigger).
		Int("modules", res.Modules).
		Int("artifacts", len(res.Artifacts)).
		Dur("took", res.Duration)
	if snap != nil {
		ev = ev.Uint64("rss_mb", snap.RSSMegabytes())
	}
	ev.Msg("[serve] built")
	for _, w := range res.Warnings {
		s.log.Warn().Msg("[bundle] " + w)
	}
	s.hub.Broadcast(Event{Name: "reload", Data: fmt.Sprintf("%d", time.Now().UnixMilli())})
	return nil
}

// Status returns the last successful result and the last build error.
func (s *Server) Status() (*bundle.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last, s.lastErr
}

// ignored reports whether a changed path must not trigger a rebuild: build
// outputs, the history database and hidden files.
func (s *Server) ignored(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return true
	}
	if s.opts.DBPath != "" {
		if db, err := filepath.Abs(s.opts.DBPath); err == nil && strings.HasPrefix(path, db) {
			return true
		}
	}
	out, ctxDir := s.OutDir(), s.builder.Options().Context
	if out != ctxDir && strings.HasPrefix(path, out+string(filepath.Separator)) {
		return true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.outputs[path]
}

// Run builds once, then serves and watches until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Rebuild(ctx, "serve"); err != nil && ctx.Err() != nil {
		return err
	}

	w, err := NewWatcher(s.builder.Options().Context, s.opts.Debounce, s.ignored, s.log)
	if err != nil {
		return err
	}
	defer w.Close()
	go w.Run(ctx, func() {
		_ = s.Rebuild(ctx, "watch")
	})

	srv := &http.Server{Addr: s.opts.Addr, Handler: s.Engine()}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		s.hub.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if strings.HasPrefix(c.Request.URL.Path, eventsPath) {
			return
		}
		s.log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("took", time.Since(start)).
			Msg("[http]")
	}
}

func fileExists(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && !fi.IsDir()
}
