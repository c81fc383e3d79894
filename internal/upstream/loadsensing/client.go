package loadsensing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Tilt readings arrive as typed envelopes; only this type carries the
// three-channel tilt data, everything else is skipped.
const tiltReadingType = "til90ReadingsV1"

// ChannelReading is one channel sample inside a tilt envelope.
// Channels 0/1/2 map to the X/Y/Z axes.
type ChannelReading struct {
	Channel int      `json:"channel"`
	Tilt    *float64 `json:"tilt"`
}

// NodeReading is a simplified tilt sample for one node.
type NodeReading struct {
	Timestamp string
	X         *float64
	Y         *float64
	Z         *float64
}

type envelope struct {
	Type  string `json:"type"`
	Value struct {
		ReadTimestamp string           `json:"readTimestamp"`
		Readings      []ChannelReading `json:"readings"`
	} `json:"value"`
}

// Client calls the Loadsensing dataserver node API with basic auth.
type Client struct {
	baseURL  string
	username string
	password string
	client   *http.Client
}

// NewClient constructs a Loadsensing client.
func NewClient(baseURL, username, password string) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("loadsensing: empty base url")
	}
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		username: username,
		password: password,
		client:   &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// NodeReadings fetches tilt readings for one node. Envelopes of other types
// are ignored, not errors.
func (c *Client) NodeReadings(ctx context.Context, nodeID int64) ([]NodeReading, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("loadsensing: nil client")
	}
	if nodeID == 0 {
		return nil, errors.New("loadsensing: empty node id")
	}

	endpoint := fmt.Sprintf("%s/%d", c.baseURL, nodeID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.username, c.password)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("loadsensing: node %d returned %d: %s", nodeID, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var envelopes []envelope
	if err := json.NewDecoder(resp.Body).Decode(&envelopes); err != nil {
		return nil, fmt.Errorf("loadsensing: decode node %d: %w", nodeID, err)
	}

	var readings []NodeReading
	for _, env := range envelopes {
		if env.Type != tiltReadingType {
			continue
		}
		if env.Value.ReadTimestamp == "" || len(env.Value.Readings) == 0 {
			continue
		}
		nr := NodeReading{Timestamp: env.Value.ReadTimestamp}
		for _, ch := range env.Value.Readings {
			switch ch.Channel {
			case 0:
				nr.X = ch.Tilt
			case 1:
				nr.Y = ch.Tilt
			case 2:
				nr.Z = ch.Tilt
			}
		}
		readings = append(readings, nr)
	}
	return readings, nil
}
