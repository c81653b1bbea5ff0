// Package api exposes a read-only HTTP surface over the session archive so
// downstream consumers (replay front-ends, dashboards) can poll sessions
// without touching sqlite directly.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/hugo-lorenzo-mato/agora-ai/internal/core"
	"github.com/hugo-lorenzo-mato/agora-ai/internal/engine"
	"github.com/hugo-lorenzo-mato/agora-ai/internal/logging"
)

// Server serves archived sessions. A filesystem watcher on the checkpoint
// directory invalidates the listing cache whenever a running debate writes
// a round, so clients see progress without a sqlite poll per request.
type Server struct {
	store         core.SessionStore
	checkpointDir string
	origins       []string
	logger        *logging.Logger

	mu         sync.RWMutex
	cache      []core.SessionSummary
	cacheValid bool
}

// NewServer creates the API server.
func NewServer(store core.SessionStore, checkpointDir string, origins []string, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Server{
		store:         store,
		checkpointDir: checkpointDir,
		origins:       origins,
		logger:        logger,
	}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	corsOptions := cors.Options{
		AllowedMethods: []string{http.MethodGet, http.MethodHead, http.MethodOptions},
	}
	if len(s.origins) > 0 {
		corsOptions.AllowedOrigins = s.origins
	} else {
		// Local front-ends on any port.
		corsOptions.AllowOriginFunc = func(origin string) bool {
			return strings.HasPrefix(origin, "http://localhost:") ||
				strings.HasPrefix(origin, "http://127.0.0.1:")
		}
	}
	r.Use(cors.New(corsOptions).Handler)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/healthz", s.handleHealth)
		r.Get("/sessions", s.handleListSessions)
		r.Get("/sessions/{id}", s.handleGetSession)
		r.Get("/sessions/{id}/output", s.handleGetOutput)
	})
	return r
}

// Serve runs the HTTP server until the context is cancelled.
func (s *Server) Serve(ctx context.Context, addr string) error {
	watcherDone := s.watchCheckpoints(ctx)

	server := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()

	s.logger.Info("api listening", "addr", addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := server.Shutdown(shutdownCtx)
		<-watcherDone
		return err
	case err := <-errCh:
		<-watcherDone
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// watchCheckpoints invalidates the listing cache on checkpoint writes.
// Returns a channel closed when the watcher goroutine exits.
func (s *Server) watchCheckpoints(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	if s.checkpointDir == "" {
		close(done)
		return done
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		s.logger.Warn("checkpoint watcher unavailable", "error", err.Error())
		close(done)
		return done
	}
	if err := watcher.Add(s.checkpointDir); err != nil {
		s.logger.Warn("cannot watch checkpoint dir", "dir", s.checkpointDir, "error", err.Error())
		_ = watcher.Close()
		close(done)
		return done
	}

	go func() {
		defer close(done)
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if strings.HasSuffix(ev.Name, ".checkpoint.json") {
					s.invalidateCache()
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	return done
}

func (s *Server) invalidateCache() {
	s.mu.Lock()
	s.cacheValid = false
	s.mu.Unlock()
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	if s.cacheValid {
		cached := s.cache
		s.mu.RUnlock()
		writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": cached})
		return
	}
	s.mu.RUnlock()

	summaries, err := s.store.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "listing sessions failed")
		return
	}

	s.mu.Lock()
	s.cache = summaries
	s.cacheValid = true
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": summaries})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, ok := s.loadSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleGetOutput(w http.ResponseWriter, r *http.Request) {
	session, ok := s.loadSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, engine.BuildOutput(session, len(session.JudgeRounds) > 0))
}

func (s *Server) loadSession(w http.ResponseWriter, r *http.Request) (*core.DebateSession, bool) {
	id := chi.URLParam(r, "id")
	session, err := s.store.Load(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "loading session failed")
		return nil, false
	}
	if session == nil {
		writeError(w, http.StatusNotFound, "session not found")
		return nil, false
	}
	return session, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
