package feed

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	appLog "shiftcal/internal/log"
	"shiftcal/internal/scrape"
	"shiftcal/internal/store"
)

// Refresher triggers a scrape cycle on demand.
type Refresher interface {
	Run(ctx context.Context) error
}

// Server serves the persisted calendar document over HTTP behind the
// feed token, alongside a manual refresh trigger and a status endpoint.
// It only ever reads the last fully-written document; readers are never
// blocked by a running scrape cycle.
type Server struct {
	store     *store.Store
	refresher Refresher
	token     string
	srv       *http.Server
}

func NewServer(listen string, st *store.Store, refresher Refresher, token string) *Server {
	s := &Server{
		store:     st,
		refresher: refresher,
		token:     token,
	}

	r := chi.NewRouter()
	r.Get("/", s.handleStatus)
	r.Get("/healthz", s.handleHealth)
	r.Get("/calendar/{token}.ics", s.handleCalendar)
	r.Post("/refresh/{token}", s.handleRefresh)

	s.srv = &http.Server{
		Addr:              listen,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the route tree, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Start begins serving in the background. A terminal listen error is
// logged; a clean Shutdown is not treated as one.
func (s *Server) Start() {
	go func() {
		appLog.Info("feed server listening", "addr", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLog.Error("feed server stopped", err)
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) authorized(r *http.Request) bool {
	token := chi.URLParam(r, "token")
	return subtle.ConstantTimeCompare([]byte(token), []byte(s.token)) == 1
}

type statusResponse struct {
	Service    string     `json:"service"`
	Status     string     `json:"status"`
	LastUpdate *time.Time `json:"last_update"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{Service: "shiftcal", Status: "running"}
	if mt, err := s.store.LastModified(); err == nil {
		resp.LastUpdate = &mt
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// handleCalendar serves the ICS document. A wrong token yields 404, not
// 403, so the URL space stays unguessable.
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		http.NotFound(w, r)
		return
	}

	data, err := s.store.Read()
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "calendar not yet generated", http.StatusServiceUnavailable)
		return
	}
	if err != nil {
		appLog.Error("failed to read calendar document", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", "inline; filename=schedule.ics")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Write(data)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		http.NotFound(w, r)
		return
	}

	err := s.refresher.Run(r.Context())
	switch {
	case errors.Is(err, scrape.ErrCycleInProgress):
		writeJSON(w, http.StatusConflict, map[string]string{"status": "refresh already running"})
	case err != nil:
		appLog.Error("manual refresh failed", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"status": "refresh failed"})
	default:
		writeJSON(w, http.StatusOK, map[string]string{"status": "refresh completed"})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to encode json response", err)
	}
}
