// Package payments proxies card transactions to the Authorize.net gateway.
package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	productionURL = "https://api.authorize.net/xml/v1/request.api"
	sandboxURL    = "https://apitest.authorize.net/xml/v1/request.api"
)

// Charge is one card payment to run through the gateway.
type Charge struct {
	Amount         float64
	CardNumber     string
	ExpirationDate string // YYYY-MM, already normalized
	CardCode       string
	FirstName      string
	LastName       string
	Address        string
	City           string
	State          string
	Zip            string
	Country        string
}

// Receipt is the gateway's answer to an approved transaction.
type Receipt struct {
	TransactionID string
	AuthCode      string
	ResponseCode  string
	AccountNumber string
	AccountType   string
}

// DeclinedError carries the gateway's decline reason.
type DeclinedError struct {
	Reason       string
	ResponseCode string
}

func (e *DeclinedError) Error() string {
	return fmt.Sprintf("payments: declined: %s", e.Reason)
}

// Client calls the Authorize.net transaction API.
type Client struct {
	apiURL         string
	loginID        string
	transactionKey string
	client         *http.Client
	now            func() time.Time
}

// NewClient constructs a gateway client. Sandbox switches the endpoint to
// the gateway's test environment.
func NewClient(loginID, transactionKey string, sandbox bool) (*Client, error) {
	if loginID == "" {
		return nil, errors.New("payments: empty api login id")
	}
	if transactionKey == "" {
		return nil, errors.New("payments: empty transaction key")
	}
	apiURL := productionURL
	if sandbox {
		apiURL = sandboxURL
	}
	return &Client{
		apiURL:         apiURL,
		loginID:        loginID,
		transactionKey: transactionKey,
		client:         &http.Client{Timeout: 30 * time.Second},
		now:            time.Now,
	}, nil
}

type merchantAuthentication struct {
	Name           string `json:"name"`
	TransactionKey string `json:"transactionKey"`
}

type creditCard struct {
	CardNumber     string `json:"cardNumber"`
	ExpirationDate string `json:"expirationDate"`
	CardCode       string `json:"cardCode"`
}

type billTo struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Address   string `json:"address"`
	City      string `json:"city"`
	State     string `json:"state"`
	Zip       string `json:"zip"`
	Country   string `json:"country"`
}

type transactionRequest struct {
	TransactionType string `json:"transactionType"`
	Amount          string `json:"amount"`
	Payment         struct {
		CreditCard creditCard `json:"creditCard"`
	} `json:"payment"`
	BillTo billTo `json:"billTo"`
}

type createTransactionRequest struct {
	MerchantAuthentication merchantAuthentication `json:"merchantAuthentication"`
	RefID                  string                 `json:"refId"`
	TransactionRequest     transactionRequest     `json:"transactionRequest"`
}

type gatewayRequest struct {
	CreateTransactionRequest createTransactionRequest `json:"createTransactionRequest"`
}

type gatewayMessage struct {
	Code        string `json:"code"`
	Description string `json:"description"`
	ErrorCode   string `json:"errorCode"`
	ErrorText   string `json:"errorText"`
}

type gatewayResponse struct {
	TransactionResponse struct {
		ResponseCode  string           `json:"responseCode"`
		AuthCode      string           `json:"authCode"`
		TransID       string           `json:"transId"`
		AccountNumber string           `json:"accountNumber"`
		AccountType   string           `json:"accountType"`
		Errors        []gatewayMessage `json:"errors"`
		Messages      []gatewayMessage `json:"messages"`
	} `json:"transactionResponse"`
}

// Process runs one auth-and-capture transaction. A decline comes back as a
// *DeclinedError; everything else is a transport or gateway failure.
func (c *Client) Process(ctx context.Context, charge Charge) (*Receipt, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("payments: nil client")
	}

	country := charge.Country
	if country == "" {
		country = "USA"
	}
	tx := transactionRequest{
		TransactionType: "authCaptureTransaction",
		Amount:          fmt.Sprintf("%.2f", charge.Amount),
		BillTo: billTo{
			FirstName: charge.FirstName,
			LastName:  charge.LastName,
			Address:   charge.Address,
			City:      charge.City,
			State:     charge.State,
			Zip:       charge.Zip,
			Country:   country,
		},
	}
	tx.Payment.CreditCard = creditCard{
		CardNumber:     strings.ReplaceAll(charge.CardNumber, " ", ""),
		ExpirationDate: charge.ExpirationDate,
		CardCode:       charge.CardCode,
	}
	payload := gatewayRequest{
		CreateTransactionRequest: createTransactionRequest{
			MerchantAuthentication: merchantAuthentication{
				Name:           c.loginID,
				TransactionKey: c.transactionKey,
			},
			RefID:              fmt.Sprintf("ref_%d", c.now().UnixMilli()),
			TransactionRequest: tx,
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("payments: gateway answered http %d", resp.StatusCode)
	}

	var decoded gatewayResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("payments: decode gateway response: %w", err)
	}

	tr := decoded.TransactionResponse
	if tr.ResponseCode != "1" {
		reason := "transaction was declined"
		if len(tr.Errors) > 0 && tr.Errors[0].ErrorText != "" {
			reason = tr.Errors[0].ErrorText
		} else if len(tr.Messages) > 0 && tr.Messages[0].Description != "" {
			reason = tr.Messages[0].Description
		}
		return nil, &DeclinedError{Reason: reason, ResponseCode: tr.ResponseCode}
	}

	accountNumber := tr.AccountNumber
	if accountNumber == "" {
		accountNumber = "XXXX"
	}
	return &Receipt{
		TransactionID: tr.TransID,
		AuthCode:      tr.AuthCode,
		ResponseCode:  tr.ResponseCode,
		AccountNumber: accountNumber,
		AccountType:   tr.AccountType,
	}, nil
}
