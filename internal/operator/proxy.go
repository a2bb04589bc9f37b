package operator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Sentinel errors for forwarded calls. A timeout is retryable and never
// evicts the station: only missed heartbeats do that.
var (
	// ErrStationTimeout means the station did not answer within the
	// per-query timeout.
	ErrStationTimeout = errors.New("station timed out")

	// ErrStationUnreachable means the forward failed for any non-timeout
	// reason (connection refused, non-200 status, bad response body).
	ErrStationUnreachable = errors.New("station unreachable")
)

// stationClient issues the operator's outbound calls to stations.
type stationClient struct {
	hc           *http.Client
	probeTimeout time.Duration
	queryTimeout time.Duration
}

func newStationClient(probeTimeout, queryTimeout time.Duration) *stationClient {
	return &stationClient{
		// Deadlines are set per call via context; the client itself has
		// no timeout so the query timeout is the only limit.
		hc:           &http.Client{},
		probeTimeout: probeTimeout,
		queryTimeout: queryTimeout,
	}
}

// Probe checks the station's health endpoint. Registration rejects
// stations the operator cannot reach.
func (sc *stationClient) Probe(ctx context.Context, baseURL string) error {
	ctx, cancel := context.WithTimeout(ctx, sc.probeTimeout)
	defer cancel()

	url := strings.TrimRight(baseURL, "/") + "/health"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("operator: probe %s: %w", baseURL, err)
	}
	resp, err := sc.hc.Do(req)
	if err != nil {
		return fmt.Errorf("operator: probe %s: %w", baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("operator: probe %s: status %d", baseURL, resp.StatusCode)
	}
	return nil
}

// Forward posts one tool operation to a station and returns the raw JSON
// response body. Failures wrap ErrStationTimeout or ErrStationUnreachable
// so the handler layer can map them with errors.Is.
func (sc *stationClient) Forward(ctx context.Context, baseURL, tool, op string, body interface{}) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, sc.queryTimeout)
	defer cancel()

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("operator: encode %s/%s request: %w", tool, op, err)
	}

	url := fmt.Sprintf("%s/tools/%s/%s", strings.TrimRight(baseURL, "/"), tool, op)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("operator: build %s request: %w", url, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := sc.hc.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("operator: %s/%s at %s after %s: %w", tool, op, baseURL, sc.queryTimeout, ErrStationTimeout)
		}
		return nil, fmt.Errorf("operator: %s/%s at %s: %v: %w", tool, op, baseURL, err, ErrStationUnreachable)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("operator: read %s/%s response: %v: %w", tool, op, err, ErrStationUnreachable)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("operator: %s/%s at %s: status %d: %s: %w",
			tool, op, baseURL, resp.StatusCode, strings.TrimSpace(string(raw)), ErrStationUnreachable)
	}
	if !json.Valid(raw) {
		return nil, fmt.Errorf("operator: %s/%s at %s: invalid JSON response: %w", tool, op, baseURL, ErrStationUnreachable)
	}
	return raw, nil
}
