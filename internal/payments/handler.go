package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
)

const (
	minAmount = 100
	maxAmount = 300
)

// Gateway runs a card transaction.
type Gateway interface {
	Process(ctx context.Context, charge Charge) (*Receipt, error)
}

// Handler provides the payment HTTP endpoint.
type Handler struct {
	gateway Gateway
	logger  *log.Logger
}

// NewHandler constructs a handler. A nil gateway is allowed; the endpoint
// then answers that processing is not configured.
func NewHandler(gateway Gateway, logger *log.Logger) (*Handler, error) {
	if logger == nil {
		return nil, errors.New("payments handler: nil logger")
	}
	return &Handler{gateway: gateway, logger: logger}, nil
}

type processRequest struct {
	Amount         string `json:"amount"`
	CardNumber     string `json:"cardNumber"`
	ExpirationDate string `json:"expirationDate"`
	CardCode       string `json:"cardCode"`
	FirstName      string `json:"firstName"`
	LastName       string `json:"lastName"`
	Address        string `json:"address"`
	City           string `json:"city"`
	State          string `json:"state"`
	Zip            string `json:"zip"`
	Country        string `json:"country"`
}

// ServeHTTP handles POST /api/payments/process.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/api/payments/process" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req processRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	missing := firstMissingField(req)
	if missing != "" {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("missing required field: %s", missing))
		return
	}

	amount, err := strconv.ParseFloat(req.Amount, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid amount format")
		return
	}
	if amount < minAmount || amount > maxAmount {
		writeError(w, http.StatusBadRequest,
			fmt.Sprintf("amount must be between $%d and $%d", minAmount, maxAmount))
		return
	}

	expiration, err := normalizeExpiration(req.ExpirationDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if h.gateway == nil {
		writeError(w, http.StatusInternalServerError, "payment processing is not configured")
		return
	}

	receipt, err := h.gateway.Process(r.Context(), Charge{
		Amount:         amount,
		CardNumber:     req.CardNumber,
		ExpirationDate: expiration,
		CardCode:       req.CardCode,
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		Address:        req.Address,
		City:           req.City,
		State:          req.State,
		Zip:            req.Zip,
		Country:        req.Country,
	})
	if err != nil {
		var declined *DeclinedError
		if errors.As(err, &declined) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"status":       "error",
				"error":        declined.Reason,
				"responseCode": declined.ResponseCode,
			})
			return
		}
		h.logger.Printf("payments: process failed: %v", err)
		writeError(w, http.StatusInternalServerError, "payment processing failed")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":        "success",
		"message":       "payment processed successfully",
		"transactionId": receipt.TransactionID,
		"authCode":      receipt.AuthCode,
		"responseCode":  receipt.ResponseCode,
		"accountNumber": receipt.AccountNumber,
		"accountType":   receipt.AccountType,
	})
}

func firstMissingField(req processRequest) string {
	checks := []struct {
		name  string
		value string
	}{
		{"amount", req.Amount},
		{"cardNumber", req.CardNumber},
		{"expirationDate", req.ExpirationDate},
		{"cardCode", req.CardCode},
		{"firstName", req.FirstName},
		{"lastName", req.LastName},
	}
	for _, c := range checks {
		if strings.TrimSpace(c.value) == "" {
			return c.name
		}
	}
	return ""
}

// normalizeExpiration turns MM/YY (or MM/YYYY) into the gateway's YYYY-MM.
func normalizeExpiration(raw string) (string, error) {
	parts := strings.Split(raw, "/")
	if len(parts) != 2 {
		return "", errors.New("invalid expiration date format, use MM/YY")
	}
	month := parts[0]
	if len(month) == 1 {
		month = "0" + month
	}
	year := parts[1]
	if len(year) == 2 {
		year = "20" + year
	}
	if len(month) != 2 || len(year) != 4 {
		return "", errors.New("invalid expiration date format, use MM/YY")
	}
	return year + "-" + month, nil
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status": "error",
		"error":  message,
	})
}
