package payments

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type stubGateway struct {
	charge  Charge
	receipt *Receipt
	err     error
}

func (s *stubGateway) Process(_ context.Context, charge Charge) (*Receipt, error) {
	s.charge = charge
	if s.err != nil {
		return nil, s.err
	}
	return s.receipt, nil
}

func testHandler(t *testing.T, gateway Gateway) *Handler {
	t.Helper()
	h, err := NewHandler(gateway, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}
	return h
}

func postPayment(t *testing.T, h *Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/payments/process", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

const validBody = `{
	"amount": "150.00",
	"cardNumber": "4111 1111 1111 1111",
	"expirationDate": "12/25",
	"cardCode": "123",
	"firstName": "Ada",
	"lastName": "Nguyen"
}`

func TestProcessApprovedCharge(t *testing.T) {
	gw := &stubGateway{receipt: &Receipt{
		TransactionID: "tx-42",
		AuthCode:      "A1B2",
		ResponseCode:  "1",
		AccountNumber: "XXXX1111",
		AccountType:   "Visa",
	}}
	rec := postPayment(t, testHandler(t, gw), validBody)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["status"] != "success" || resp["transactionId"] != "tx-42" {
		t.Fatalf("unexpected response: %v", resp)
	}
	if gw.charge.CardNumber != "4111 1111 1111 1111" {
		t.Fatalf("card number = %q", gw.charge.CardNumber)
	}
	if gw.charge.ExpirationDate != "2025-12" {
		t.Fatalf("expiration = %q, want 2025-12", gw.charge.ExpirationDate)
	}
}

func TestProcessRejectsBadInput(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{
			name: "missing card code",
			body: `{"amount":"150","cardNumber":"4111111111111111","expirationDate":"12/25","firstName":"Ada","lastName":"Nguyen"}`,
			want: "missing required field: cardCode",
		},
		{
			name: "amount below floor",
			body: `{"amount":"99.99","cardNumber":"4111111111111111","expirationDate":"12/25","cardCode":"123","firstName":"Ada","lastName":"Nguyen"}`,
			want: "amount must be between",
		},
		{
			name: "amount above ceiling",
			body: `{"amount":"300.01","cardNumber":"4111111111111111","expirationDate":"12/25","cardCode":"123","firstName":"Ada","lastName":"Nguyen"}`,
			want: "amount must be between",
		},
		{
			name: "amount not a number",
			body: `{"amount":"lots","cardNumber":"4111111111111111","expirationDate":"12/25","cardCode":"123","firstName":"Ada","lastName":"Nguyen"}`,
			want: "invalid amount format",
		},
		{
			name: "expiration without slash",
			body: `{"amount":"150","cardNumber":"4111111111111111","expirationDate":"1225","cardCode":"123","firstName":"Ada","lastName":"Nguyen"}`,
			want: "invalid expiration date format",
		},
	}

	gw := &stubGateway{receipt: &Receipt{ResponseCode: "1"}}
	h := testHandler(t, gw)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := postPayment(t, h, tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			if !strings.Contains(rec.Body.String(), tc.want) {
				t.Fatalf("body %q does not mention %q", rec.Body.String(), tc.want)
			}
		})
	}
}

func TestProcessDecline(t *testing.T) {
	gw := &stubGateway{err: &DeclinedError{Reason: "insufficient funds", ResponseCode: "2"}}
	rec := postPayment(t, testHandler(t, gw), validBody)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["error"] != "insufficient funds" || resp["responseCode"] != "2" {
		t.Fatalf("unexpected response: %v", resp)
	}
}

func TestProcessGatewayFailure(t *testing.T) {
	gw := &stubGateway{err: errors.New("dial tcp: timeout")}
	rec := postPayment(t, testHandler(t, gw), validBody)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "timeout") {
		t.Fatalf("gateway error leaked to client: %s", rec.Body.String())
	}
}

func TestProcessWithoutGateway(t *testing.T) {
	rec := postPayment(t, testHandler(t, nil), validBody)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "not configured") {
		t.Fatalf("body = %s", rec.Body.String())
	}
}
