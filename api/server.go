// Package api exposes the scrape trigger over HTTP.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"homewatch/identity"
	"homewatch/models"
	"homewatch/services"
	"homewatch/storage"
	"homewatch/utils"
)

// Runner executes one run for a search.
type Runner interface {
	Run(ctx context.Context, searchID string) (*models.SearchRun, error)
}

// SearchFinder loads a search with its owner.
type SearchFinder interface {
	FindSearchByID(ctx context.Context, id string) (*models.Search, error)
}

// UserResolver maps an external identity onto an internal user.
type UserResolver interface {
	Resolve(ctx context.Context, externalID string) (*models.User, error)
}

// Server handles the trigger endpoints.
type Server struct {
	runner   Runner
	searches SearchFinder
	provider identity.Provider
	users    UserResolver
	cronKey  string
	validate *validator.Validate
	logger   *utils.Logger
}

// NewServer creates a Server. An empty cronKey disables the scheduled
// trigger.
func NewServer(runner Runner, searches SearchFinder, provider identity.Provider, users UserResolver,
	cronKey string, logger *utils.Logger) *Server {
	return &Server{
		runner:   runner,
		searches: searches,
		provider: provider,
		users:    users,
		cronKey:  cronKey,
		validate: validator.New(),
		logger:   logger,
	}
}

// Router returns the HTTP handler for all routes.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/api/scrape", s.HandleUserScrape).Methods(http.MethodPost)
	r.HandleFunc("/api/scrape", s.HandleScheduledScrape).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	return r
}

// ListenAndServe serves Router on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("[api] Listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

type scrapeRequest struct {
	SearchID string `json:"searchId" validate:"required"`
}

// HandleUserScrape runs a search on behalf of its signed-in owner.
func (s *Server) HandleUserScrape(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	externalID, err := s.provider.ExternalID(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req scrapeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Search ID is required")
		return
	}

	user, err := s.users.Resolve(ctx, externalID)
	if err != nil {
		s.logger.Error("[api] Resolve user %s: %v", externalID, err)
		writeError(w, http.StatusInternalServerError, "Could not resolve user")
		return
	}

	search, err := s.searches.FindSearchByID(ctx, req.SearchID)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && search.UserID != user.ID) {
		writeError(w, http.StatusNotFound, "Search not found or not authorized")
		return
	}
	if err != nil {
		s.logger.Error("[api] Load search %s: %v", req.SearchID, err)
		writeError(w, http.StatusInternalServerError, "Could not load search")
		return
	}

	s.run(w, r, req.SearchID)
}

// HandleScheduledScrape runs a search for a cron caller holding the shared
// key.
func (s *Server) HandleScheduledScrape(w http.ResponseWriter, r *http.Request) {
	key := r.Header.Get("x-api-key")
	if s.cronKey == "" || subtle.ConstantTimeCompare([]byte(key), []byte(s.cronKey)) != 1 {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	searchID := r.URL.Query().Get("searchId")
	if err := s.validate.Var(searchID, "required"); err != nil {
		writeError(w, http.StatusBadRequest, "Search ID is required as a query parameter")
		return
	}

	s.run(w, r, searchID)
}

func (s *Server) run(w http.ResponseWriter, r *http.Request, searchID string) {
	run, err := s.runner.Run(r.Context(), searchID)
	if err != nil {
		s.logger.Error("[api] Run for search %s: %v", searchID, err)
		status, msg := errorResponse(err)
		writeError(w, status, msg)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"runId":      run.ID,
		"itemsFound": run.ItemsFound,
		"newItems":   run.NewItems,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// errorResponse maps a run error to the status and message shown to the
// caller. Store details only go to the log.
func errorResponse(err error) (int, string) {
	switch {
	case errors.Is(err, services.ErrSearchNotFound):
		return http.StatusNotFound, "Search not found"
	case errors.Is(err, services.ErrRunInProgress):
		return http.StatusConflict, "A run for this search is already in progress"
	case errors.Is(err, services.ErrSearchInactive):
		return http.StatusConflict, "Search is inactive"
	default:
		return http.StatusInternalServerError, "Scrape failed"
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
