package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	alertapp "geomon-cloud/internal/alerting/application"
	alerting "geomon-cloud/internal/alerting/domain"
)

const timeLayout = time.RFC3339

// HistoryReader reads the sent-alert ledger.
type HistoryReader interface {
	History(ctx context.Context, instrumentID string, limit int) ([]alerting.SentAlert, error)
}

// Handler provides alerting HTTP endpoints.
type Handler struct {
	service *alertapp.Service
	history HistoryReader
}

// NewHandler constructs a handler.
func NewHandler(service *alertapp.Service, history HistoryReader) (*Handler, error) {
	if service == nil {
		return nil, errors.New("alerts handler: nil service")
	}
	if history == nil {
		return nil, errors.New("alerts handler: nil history reader")
	}
	return &Handler{service: service, history: history}, nil
}

// ServeHTTP handles /api/alerts and subroutes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/api/alerts/trigger":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleTrigger(w, r)
	case "/api/alerts/backfill":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleBackfill(w, r)
	case "/api/alerts/history":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleHistory(w, r)
	case "/api/alerts/checks":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleChecks(w, r)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

type triggerRequest struct {
	InstrumentID string `json:"instrument_id"`
}

func (h *Handler) handleTrigger(w http.ResponseWriter, r *http.Request) {
	var req triggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.InstrumentID == "" {
		http.Error(w, "instrument_id is required", http.StatusBadRequest)
		return
	}
	result, err := h.service.Trigger(r.Context(), req.InstrumentID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, result)
}

type backfillRequest struct {
	InstrumentID string   `json:"instrument_id"`
	From         string   `json:"from"`
	To           string   `json:"to"`
	PerBreach    bool     `json:"per_breach"`
	Recipients   []string `json:"recipients"`
}

func (h *Handler) handleBackfill(w http.ResponseWriter, r *http.Request) {
	var req backfillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.InstrumentID == "" {
		http.Error(w, "instrument_id is required", http.StatusBadRequest)
		return
	}
	from, err := time.Parse(timeLayout, req.From)
	if err != nil {
		http.Error(w, "from must be RFC3339", http.StatusBadRequest)
		return
	}
	to, err := time.Parse(timeLayout, req.To)
	if err != nil {
		http.Error(w, "to must be RFC3339", http.StatusBadRequest)
		return
	}
	if !to.After(from) {
		http.Error(w, "to must be after from", http.StatusBadRequest)
		return
	}
	result, err := h.service.Backfill(r.Context(), req.InstrumentID, from.UTC(), to.UTC(), req.PerBreach, req.Recipients)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, result)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	instrumentID := r.URL.Query().Get("instrument_id")
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = parsed
	}
	records, err := h.history.History(r.Context(), instrumentID, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []alerting.SentAlert{}
	}
	writeJSON(w, records)
}

type checkView struct {
	InstrumentID  string `json:"instrument_id"`
	DeviceID      int64  `json:"device_id"`
	Label         string `json:"label"`
	Source        string `json:"source"`
	Lookback      string `json:"lookback"`
	ClockSkew     string `json:"clock_skew"`
	Grouping      bool   `json:"grouping"`
	EmitPerBreach bool   `json:"emit_per_breach"`
}

func (h *Handler) handleChecks(w http.ResponseWriter, r *http.Request) {
	specs := h.service.Checks()
	views := make([]checkView, 0, len(specs))
	for _, spec := range specs {
		views = append(views, checkView{
			InstrumentID:  spec.InstrumentID,
			DeviceID:      spec.DeviceID,
			Label:         spec.Label,
			Source:        spec.Source,
			Lookback:      spec.Lookback.String(),
			ClockSkew:     spec.ClockSkew.String(),
			Grouping:      spec.Grouping,
			EmitPerBreach: spec.EmitPerBreach,
		})
	}
	writeJSON(w, views)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
