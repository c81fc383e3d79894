package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	instrument "geomon-cloud/internal/instruments/domain"
	reading "geomon-cloud/internal/readings/domain"
)

// InstrumentReader loads instruments.
type InstrumentReader interface {
	GetByID(ctx context.Context, instrumentID string) (*instrument.Instrument, error)
	List(ctx context.Context, projectID int64) ([]instrument.Instrument, error)
}

// CalibrationStore loads and updates reference offsets.
type CalibrationStore interface {
	GetByInstrument(ctx context.Context, instrumentID string) (*instrument.Calibration, error)
	Upsert(ctx context.Context, cal instrument.Calibration) error
}

// Handler provides instrument HTTP endpoints.
type Handler struct {
	instruments  InstrumentReader
	calibrations CalibrationStore
}

// NewHandler constructs a handler.
func NewHandler(instruments InstrumentReader, calibrations CalibrationStore) (*Handler, error) {
	if instruments == nil {
		return nil, errors.New("instruments handler: nil reader")
	}
	return &Handler{instruments: instruments, calibrations: calibrations}, nil
}

// ServeHTTP handles /api/instruments and subroutes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/api/instruments":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleList(w, r)
	case strings.HasSuffix(r.URL.Path, "/calibration"):
		h.handleCalibration(w, r)
	case strings.HasPrefix(r.URL.Path, "/api/instruments/"):
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleGet(w, r)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	var projectID int64
	if v := r.URL.Query().Get("project_id"); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil || parsed <= 0 {
			http.Error(w, "project_id must be a positive integer", http.StatusBadRequest)
			return
		}
		projectID = parsed
	}
	list, err := h.instruments.List(r.Context(), projectID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []instrument.Instrument{}
	}
	writeJSON(w, list)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/instruments/")
	if id == "" || strings.Contains(id, "/") {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	inst, err := h.instruments.GetByID(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if inst == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	writeJSON(w, inst)
}

type calibrationView struct {
	InstrumentID string                   `json:"instrument_id"`
	Enabled      bool                     `json:"enabled"`
	Reference    map[reading.Axis]float64 `json:"reference"`
	ValidFrom    *time.Time               `json:"valid_from,omitempty"`
	ValidUntil   *time.Time               `json:"valid_until,omitempty"`
}

func (h *Handler) handleCalibration(w http.ResponseWriter, r *http.Request) {
	if h.calibrations == nil {
		http.Error(w, "calibration not configured", http.StatusServiceUnavailable)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/instruments/")
	id = strings.TrimSuffix(id, "/calibration")
	if id == "" || strings.Contains(id, "/") {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	switch r.Method {
	case http.MethodGet:
		cal, err := h.calibrations.GetByInstrument(r.Context(), id)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if cal == nil {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		writeJSON(w, calibrationView{
			InstrumentID: cal.InstrumentID,
			Enabled:      cal.Enabled,
			Reference:    cal.Reference,
			ValidFrom:    cal.ValidFrom,
			ValidUntil:   cal.ValidUntil,
		})
	case http.MethodPut:
		var req calibrationView
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		inst, err := h.instruments.GetByID(r.Context(), id)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if inst == nil {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		cal := instrument.Calibration{
			InstrumentID: id,
			Enabled:      req.Enabled,
			Reference:    req.Reference,
			ValidFrom:    req.ValidFrom,
			ValidUntil:   req.ValidUntil,
		}
		if err := h.calibrations.Upsert(r.Context(), cal); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]string{"status": "ok"})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
