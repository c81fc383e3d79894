package syscom

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Timestamps are sent to the API without a zone suffix; the device reports
// them back with its own offset.
const queryTimeLayout = "2006-01-02T15:04:05"

// Row is one background sample: the raw upstream timestamp plus the three
// axis velocities. Timestamp is kept verbatim; it is the dedup key.
type Row struct {
	Timestamp string
	X         float64
	Y         float64
	Z         float64
}

// Client calls the Syscom seismograph background-data API.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewClient constructs a Syscom client.
func NewClient(baseURL, apiKey string) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("syscom: empty base url")
	}
	if apiKey == "" {
		return nil, errors.New("syscom: empty api key")
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// BackgroundData fetches background samples for a device between start and
// end. A 204 response means no data and returns an empty slice, not an error.
func (c *Client) BackgroundData(ctx context.Context, deviceID int64, start, end time.Time) ([]Row, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("syscom: nil client")
	}
	if deviceID == 0 {
		return nil, errors.New("syscom: empty device id")
	}

	endpoint := fmt.Sprintf("%s/records/background/%d/data?start=%s&end=%s",
		c.baseURL, deviceID,
		url.QueryEscape(start.Format(queryTimeLayout)),
		url.QueryEscape(end.Format(queryTimeLayout)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-scs-api-key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("syscom: device %d returned %d: %s", deviceID, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload struct {
		Data [][]any `json:"data"`
	}
	decoder := json.NewDecoder(resp.Body)
	decoder.UseNumber()
	if err := decoder.Decode(&payload); err != nil {
		return nil, fmt.Errorf("syscom: decode device %d: %w", deviceID, err)
	}

	rows := make([]Row, 0, len(payload.Data))
	for _, entry := range payload.Data {
		row, err := parseRow(entry)
		if err != nil {
			return nil, fmt.Errorf("syscom: device %d: %w", deviceID, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func parseRow(entry []any) (Row, error) {
	if len(entry) < 4 {
		return Row{}, fmt.Errorf("short data row (%d fields)", len(entry))
	}
	ts, ok := entry[0].(string)
	if !ok || ts == "" {
		return Row{}, errors.New("data row missing timestamp")
	}
	values := make([]float64, 3)
	for i := 0; i < 3; i++ {
		v, err := toFloat(entry[i+1])
		if err != nil {
			return Row{}, fmt.Errorf("data row %s axis %d: %w", ts, i, err)
		}
		values[i] = v
	}
	return Row{Timestamp: ts, X: values[0], Y: values[1], Z: values[2]}, nil
}

func toFloat(v any) (float64, error) {
	switch value := v.(type) {
	case json.Number:
		return value.Float64()
	case float64:
		return value, nil
	case string:
		return strconv.ParseFloat(value, 64)
	default:
		return 0, fmt.Errorf("unexpected value type %T", v)
	}
}
