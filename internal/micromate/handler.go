package micromate

import (
	"encoding/json"
	"errors"
	"net/http"
)

// Handler serves the vendor-file readings over HTTP.
type Handler struct {
	store *Store
}

// NewHandler constructs a handler.
func NewHandler(store *Store) (*Handler, error) {
	if store == nil {
		return nil, errors.New("micromate handler: nil store")
	}
	return &Handler{store: store}, nil
}

type readingsResponse struct {
	Readings []Reading  `json:"readings"`
	Files    []FileInfo `json:"files_processed"`
	Failures []string   `json:"failures,omitempty"`
}

// ServeHTTP handles /api/micromate routes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	switch r.URL.Path {
	case "/api/micromate/readings":
		h.handleReadings(w, r)
	case "/api/micromate/files":
		h.handleFiles(w, r)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleReadings(w http.ResponseWriter, r *http.Request) {
	readings, files, failures := h.store.Readings()
	resp := readingsResponse{Readings: readings, Files: files}
	if resp.Readings == nil {
		resp.Readings = []Reading{}
	}
	if resp.Files == nil {
		resp.Files = []FileInfo{}
	}
	for _, err := range failures {
		resp.Failures = append(resp.Failures, err.Error())
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (h *Handler) handleFiles(w http.ResponseWriter, r *http.Request) {
	files, err := h.store.Files()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if files == nil {
		files = []string{}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string][]string{"files": files})
}
