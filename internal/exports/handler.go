package exports

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	alerting "geomon-cloud/internal/alerting/domain"
	"geomon-cloud/internal/observability/metrics"
	reading "geomon-cloud/internal/readings/domain"
)

// ReadingLister reads stored readings.
type ReadingLister interface {
	ListByNode(ctx context.Context, nodeID int64, from, to string, limit int) ([]reading.Reading, error)
}

// HistoryReader reads the sent-alert ledger.
type HistoryReader interface {
	History(ctx context.Context, instrumentID string, limit int) ([]alerting.SentAlert, error)
}

// Handler provides export HTTP endpoints.
type Handler struct {
	readings ReadingLister
	history  HistoryReader
}

// NewHandler constructs a handler.
func NewHandler(readings ReadingLister, history HistoryReader) (*Handler, error) {
	if readings == nil {
		return nil, errors.New("exports handler: nil reading lister")
	}
	if history == nil {
		return nil, errors.New("exports handler: nil history reader")
	}
	return &Handler{readings: readings, history: history}, nil
}

// ServeHTTP handles /api/exports routes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	switch r.URL.Path {
	case "/api/exports/readings.xlsx":
		h.handleReadings(w, r)
	case "/api/exports/alerts.pdf":
		h.handleAlerts(w, r)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleReadings(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	query := r.URL.Query()
	nodeID, err := strconv.ParseInt(query.Get("node_id"), 10, 64)
	if err != nil || nodeID <= 0 {
		http.Error(w, "node_id must be a positive integer", http.StatusBadRequest)
		return
	}

	readings, err := h.readings.ListByNode(r.Context(), nodeID, query.Get("from"), query.Get("to"), 0)
	if err != nil {
		metrics.ObserveExport("xlsx", metrics.ResultError, time.Since(started))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	data, err := BuildReadingsXLSX(nodeID, readings)
	if err != nil {
		metrics.ObserveExport("xlsx", metrics.ResultError, time.Since(started))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	metrics.ObserveExport("xlsx", metrics.ResultSuccess, time.Since(started))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="readings-%d.xlsx"`, nodeID))
	_, _ = w.Write(data)
}

func (h *Handler) handleAlerts(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	query := r.URL.Query()
	instrumentID := query.Get("instrument_id")
	limit := 0
	if v := query.Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	records, err := h.history.History(r.Context(), instrumentID, limit)
	if err != nil {
		metrics.ObserveExport("pdf", metrics.ResultError, time.Since(started))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	data, err := BuildAlertHistoryPDF(instrumentID, records)
	if err != nil {
		metrics.ObserveExport("pdf", metrics.ResultError, time.Since(started))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	metrics.ObserveExport("pdf", metrics.ResultSuccess, time.Since(started))
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="alert-history.pdf"`)
	_, _ = w.Write(data)
}
