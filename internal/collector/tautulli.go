// Package collector gathers NeonBoard's raw readings: Tautulli sessions,
// the qBittorrent download mount, and local system statistics.
// Every collector returns a usable value even when it also returns an error.
package collector

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

	"github.com/vesaa/neonboard/internal/models"
)

var (
	// ErrUpstreamStatus is returned when an upstream answers with a non-2xx status.
	ErrUpstreamStatus = errors.New("upstream returned non-2xx status")
	// ErrMalformed is returned when an upstream payload has the wrong shape.
	ErrMalformed = errors.New("malformed upstream payload")
	// ErrNotConfigured is returned when required settings are missing.
	ErrNotConfigured = errors.New("collector not configured")
)

// maxBody caps how much of an upstream response we are willing to read.
const maxBody = 4 << 20

// SessionCollector queries Tautulli's get_activity command.
type SessionCollector struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewSessionCollector builds a collector bound to the Tautulli instance at
// baseURL. Every request is bounded by timeout.
func NewSessionCollector(baseURL, apiKey string, timeout time.Duration) *SessionCollector {
	return &SessionCollector{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

// activityResponse mirrors the part of Tautulli's envelope we read.
// Sessions stay raw so that one bad session cannot fail the whole decode.
type activityResponse struct {
	Response struct {
		Result  string `json:"result"`
		Message string `json:"message"`
		Data    struct {
			Sessions []json.RawMessage `json:"sessions"`
		} `json:"data"`
	} `json:"response"`
}

type rawSession struct {
	WANBandwidth      any    `json:"wan_bandwidth"`
	TranscodeDecision string `json:"transcode_decision"`
	User              string `json:"user"`
}

// Collect fetches the current activity and aggregates it. On any failure it
// returns a zero aggregate together with the error.
func (c *SessionCollector) Collect(ctx context.Context) (models.SessionAggregate, error) {
	records, err := c.fetch(ctx)
	if err != nil {
		return Aggregate(nil), err
	}
	return Aggregate(records), nil
}

func (c *SessionCollector) fetch(ctx context.Context) ([]models.SessionRecord, error) {
	if c.baseURL == "" || c.apiKey == "" {
		return nil, fmt.Errorf("tautulli: %w: url and api key required", ErrNotConfigured)
	}

	q := url.Values{}
	q.Set("apikey", c.apiKey)
	q.Set("cmd", "get_activity")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v2?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("tautulli: building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tautulli: get_activity: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("tautulli: get_activity: %w (%d)", ErrUpstreamStatus, resp.StatusCode)
	}

	var body activityResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBody)).Decode(&body); err != nil {
		return nil, fmt.Errorf("tautulli: %w: %v", ErrMalformed, err)
	}
	if body.Response.Result == "error" {
		return nil, fmt.Errorf("tautulli: %w: %s", ErrMalformed, body.Response.Message)
	}

	records := make([]models.SessionRecord, 0, len(body.Response.Data.Sessions))
	for _, raw := range body.Response.Data.Sessions {
		records = append(records, parseSession(raw))
	}
	return records, nil
}

// parseSession never fails: fields that are missing or of the wrong type
// fall back to their defaults.
func parseSession(raw json.RawMessage) models.SessionRecord {
	var s rawSession
	if err := json.Unmarshal(raw, &s); err != nil {
		// Retry field by field so a single wrong-typed field keeps the rest.
		var loose map[string]any
		_ = json.Unmarshal(raw, &loose)
		s.WANBandwidth = loose["wan_bandwidth"]
		s.TranscodeDecision, _ = loose["transcode_decision"].(string)
		s.User, _ = loose["user"].(string)
	}

	user := strings.TrimSpace(s.User)
	if user == "" {
		user = models.UnknownUser
	}
	return models.SessionRecord{
		BandwidthKbps: coerceInt(s.WANBandwidth),
		Decision:      models.TranscodeDecision(s.TranscodeDecision),
		User:          user,
	}
}

// coerceInt reads Tautulli's numeric fields, which arrive either as JSON
// numbers or as numeric strings. Anything else is 0.
func coerceInt(v any) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case string:
		n = strings.TrimSpace(n)
		if i, err := strconv.ParseInt(n, 10, 64); err == nil {
			return i
		}
		if f, err := strconv.ParseFloat(n, 64); err == nil {
			return int64(f)
		}
	}
	return 0
}

// Aggregate reduces session records in a single pass.
func Aggregate(records []models.SessionRecord) models.SessionAggregate {
	agg := models.SessionAggregate{StreamsPerUser: make(map[string]int, len(records))}
	for _, r := range records {
		agg.ActiveStreams++
		agg.BandwidthKbps += r.BandwidthKbps
		if r.Decision == models.DecisionTranscode {
			agg.Transcodes++
		}
		agg.StreamsPerUser[r.User]++
	}
	return agg
}
