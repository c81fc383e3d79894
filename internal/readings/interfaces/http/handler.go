package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	instrument "geomon-cloud/internal/instruments/domain"
	readingapp "geomon-cloud/internal/readings/application"
	reading "geomon-cloud/internal/readings/domain"
)

// ReadingLister reads stored readings.
type ReadingLister interface {
	ListByNode(ctx context.Context, nodeID int64, from, to string, limit int) ([]reading.Reading, error)
}

// CalibrationReader loads reference offsets for calibrated responses.
type CalibrationReader interface {
	GetByInstrument(ctx context.Context, instrumentID string) (*instrument.Calibration, error)
}

// Handler provides sensor-data HTTP endpoints.
type Handler struct {
	store        ReadingLister
	calibrations CalibrationReader
	ingest       *readingapp.IngestService
}

// NewHandler constructs a handler. The ingest service is optional; without
// it the manual fetch endpoint answers 503.
func NewHandler(store ReadingLister, calibrations CalibrationReader, ingest *readingapp.IngestService) (*Handler, error) {
	if store == nil {
		return nil, errors.New("readings handler: nil store")
	}
	return &Handler{store: store, calibrations: calibrations, ingest: ingest}, nil
}

type readingView struct {
	NodeID     int64                    `json:"node_id"`
	Timestamp  string                   `json:"timestamp"`
	Values     map[reading.Axis]float64 `json:"values"`
	Calibrated bool                     `json:"calibrated"`
}

// ServeHTTP handles /api/sensor-data and subroutes. The -raw route serves
// uncalibrated values regardless of query parameters.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/api/sensor-data/fetch" || r.URL.Path == "/api/fetch-sensor-data":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleFetch(w, r)
	case strings.HasPrefix(r.URL.Path, "/api/sensor-data-raw/"):
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleList(w, r, "/api/sensor-data-raw/", true)
	case strings.HasPrefix(r.URL.Path, "/api/sensor-data/"):
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleList(w, r, "/api/sensor-data/", false)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request, prefix string, rawOnly bool) {
	nodePart := strings.TrimPrefix(r.URL.Path, prefix)
	nodeID, err := strconv.ParseInt(nodePart, 10, 64)
	if err != nil || nodeID == 0 {
		http.Error(w, "node id must be a positive integer", http.StatusBadRequest)
		return
	}

	query := r.URL.Query()
	limit := 0
	if v := query.Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	readings, err := h.store.ListByNode(r.Context(), nodeID, query.Get("from"), query.Get("to"), limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	calibrated := false
	var cal *instrument.Calibration
	if !rawOnly && query.Get("calibrated") == "true" {
		instrumentID := query.Get("instrument_id")
		if instrumentID == "" {
			http.Error(w, "calibrated responses need instrument_id", http.StatusBadRequest)
			return
		}
		if h.calibrations == nil {
			http.Error(w, "calibration not configured", http.StatusServiceUnavailable)
			return
		}
		cal, err = h.calibrations.GetByInstrument(r.Context(), instrumentID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		calibrated = cal != nil && cal.Enabled
	}

	views := make([]readingView, 0, len(readings))
	for _, rd := range readings {
		values := rd.Values
		applied := false
		if calibrated && cal.ActiveAt(rd.At) {
			values = cal.Adjust(rd.Values)
			applied = true
		}
		views = append(views, readingView{
			NodeID:     rd.NodeID,
			Timestamp:  rd.Timestamp,
			Values:     values,
			Calibrated: applied,
		})
	}
	writeJSON(w, views)
}

func (h *Handler) handleFetch(w http.ResponseWriter, r *http.Request) {
	if h.ingest == nil {
		http.Error(w, "ingest not configured", http.StatusServiceUnavailable)
		return
	}
	stored := h.ingest.FetchAll(r.Context())
	writeJSON(w, map[string]int{"stored": stored})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
