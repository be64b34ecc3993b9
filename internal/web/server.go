// Package web serves the analysis conversation as a browser chat.
package web

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/yuin/goldmark"

	"github.com/priscilla100/goose-llm/internal/logging"
	"github.com/priscilla100/goose-llm/internal/session"
)

const cookieName = "goose_session"

// Visitors idle for longer than visitorTTL are dropped. At most maxVisitors
// conversations are kept; the least recently used one goes first.
const (
	visitorTTL  = 2 * time.Hour
	maxVisitors = 256
)

// Server is the HTTP chat surface. Every visitor gets a fork of the base
// session, so follow-up questions never leak between browsers.
type Server struct {
	router   chi.Router
	base     *session.Session
	logger   *logging.Logger
	markdown goldmark.Markdown
	// firstShown is the log index of the first message displayed: the
	// answer to the analysis prompt.
	firstShown int

	mu       sync.Mutex
	visitors map[string]*visitor
	timeNow  func() time.Time
}

type visitor struct {
	mu       sync.Mutex
	session  *session.Session
	lastErr  string
	lastSeen time.Time
}

// NewServer creates the router around a session that has already run the analysis.
func NewServer(base *session.Session, logger *logging.Logger) *Server {
	first := base.Log().Len() - 1
	if first < 0 {
		first = 0
	}
	s := &Server{
		base:       base,
		logger:     logger,
		markdown:   goldmark.New(),
		firstShown: first,
		visitors:   make(map[string]*visitor),
		timeNow:    time.Now,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.logger))

	r.Get("/health", s.handleHealth)
	r.Get("/", s.handleIndex)
	r.Post("/ask", s.handleAsk)
	r.Get("/api/conversation", s.handleConversation)

	s.router = r
}

// lookup returns the visitor named by the request cookie, or nil.
func (s *Server) lookup(r *http.Request) *visitor {
	c, err := r.Cookie(cookieName)
	if err != nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.visitors[c.Value]
	if !ok {
		return nil
	}
	v.lastSeen = s.timeNow()
	return v
}

// visitorFor returns the caller's visitor, creating one and setting the
// cookie when the request carries no known id. Only requests that change a
// conversation should call it.
func (s *Server) visitorFor(w http.ResponseWriter, r *http.Request) *visitor {
	if v := s.lookup(r); v != nil {
		return v
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.timeNow()
	s.evict(now)

	id := uuid.NewString()
	v := &visitor{session: s.base.Fork(), lastSeen: now}
	s.visitors[id] = v
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(visitorTTL / time.Second),
	})
	s.logger.Debugf("New visitor %s", id)
	return v
}

// evict drops idle visitors and, when still full, the least recently seen
// one, leaving room for one more. s.mu must be held.
func (s *Server) evict(now time.Time) {
	for id, v := range s.visitors {
		if now.Sub(v.lastSeen) > visitorTTL {
			delete(s.visitors, id)
		}
	}
	for len(s.visitors) >= maxVisitors {
		var oldestID string
		var oldest time.Time
		for id, v := range s.visitors {
			if oldestID == "" || v.lastSeen.Before(oldest) {
				oldestID, oldest = id, v.lastSeen
			}
		}
		delete(s.visitors, oldestID)
		s.logger.Debugf("Evicted visitor %s", oldestID)
	}
}

func (s *Server) visitorCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.visitors)
}

func (s *Server) reset(v *visitor) {
	v.session = s.base.Fork()
	v.lastErr = ""
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      s,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Infof("Shutting down web server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	s.logger.Info("starting web chat", "addr", addr, "model", s.base.Model())
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
