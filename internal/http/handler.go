// Package httpapi exposes the trainwatch HTTP endpoints.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"

	"github.com/pengKiina/trainwatch/internal/domain"
	"github.com/pengKiina/trainwatch/internal/metrics"
	"github.com/pengKiina/trainwatch/internal/search"
	loggerpkg "github.com/pengKiina/trainwatch/logger"
)

const maxRequestBodyBytes = 1 << 20 // 1 MiB

// LatestProvider yields the most recent progress record the monitor has
// observed.
type LatestProvider interface {
	Latest() (domain.Record, bool)
}

// Handler wires HTTP endpoints to the searcher and monitor.
type Handler struct {
	logFile  string
	searcher *search.Searcher
	latest   LatestProvider
	logger   loggerpkg.Logger
	preset   []search.Condition
}

// NewHandler builds the HTTP handler set for the given training log.
func NewHandler(logFile string, latest LatestProvider, logr loggerpkg.Logger) *Handler {
	if logr == nil {
		logr = loggerpkg.NewNop()
	}
	return &Handler{
		logFile:  logFile,
		searcher: search.NewSearcher(),
		latest:   latest,
		logger:   logr,
	}
}

// WithPresetConditions pins conditions that every search must satisfy in
// addition to the request's own.
func (h *Handler) WithPresetConditions(conds ...search.Condition) *Handler {
	h.preset = conds
	return h
}

// RegisterRoutes attaches the endpoints to the provided mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/search", h.handleSearch)
	mux.HandleFunc("/progress/latest", h.handleLatest)
}

type searchRequest struct {
	Conditions []search.FieldCondition `json:"conditions"`
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	defer r.Body.Close()

	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("decode request: %v", err), http.StatusBadRequest)
		return
	}

	conds, err := search.CompileAll(req.Conditions)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	metrics.IncSearches()
	rec, err := h.searcher.Search(h.logFile, append(append([]search.Condition{}, h.preset...), conds...)...)
	if err != nil {
		h.writeSearchError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) writeSearchError(w http.ResponseWriter, err error) {
	var perr *search.ParseError
	switch {
	case errors.Is(err, search.ErrNoMatch):
		metrics.IncSearchMisses()
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.As(err, &perr):
		metrics.IncParseFailures()
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, fs.ErrNotExist):
		http.Error(w, "training log not found", http.StatusNotFound)
	default:
		h.logger.Error("search failed", loggerpkg.F("error", err))
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func (h *Handler) handleLatest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.latest == nil {
		http.Error(w, "monitor not running", http.StatusServiceUnavailable)
		return
	}
	rec, ok := h.latest.Latest()
	if !ok {
		http.Error(w, "no progress observed yet", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
