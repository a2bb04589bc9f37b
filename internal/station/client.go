package station

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"
)

const (
	// registerBaseBackoff is the initial wait between register attempts.
	registerBaseBackoff = time.Second
	// registerMaxBackoff caps the exponential backoff while the operator
	// is unreachable.
	registerMaxBackoff = 30 * time.Second
	// maxHeartbeatFailures is how many consecutive delivery failures the
	// heartbeat loop tolerates before giving up.
	maxHeartbeatFailures = 10
)

// Register announces the station to the operator once. On success the
// operator-assigned worker id is kept for heartbeats and re-registration.
func (s *Station) Register(ctx context.Context) error {
	hostname, _ := os.Hostname()
	payload, err := json.Marshal(map[string]interface{}{
		"worker_id":       s.WorkerID(),
		"base_url":        s.cfg.AdvertiseURL,
		"supported_tools": s.tools.Names(),
		"host_info": map[string]interface{}{
			"hostname": hostname,
			"port":     s.cfg.Port,
		},
	})
	if err != nil {
		return fmt.Errorf("station: encode register request: %w", err)
	}

	url := strings.TrimRight(s.cfg.OperatorURL, "/") + "/register"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("station: build register request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.hc.Do(req)
	if err != nil {
		return fmt.Errorf("station: register with %s: %w", s.cfg.OperatorURL, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("station: register with %s: status %d: %s",
			s.cfg.OperatorURL, resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var out struct {
		WorkerID string `json:"worker_id"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("station: decode register response: %w", err)
	}
	if out.WorkerID == "" {
		return fmt.Errorf("station: register response carried no worker_id")
	}

	s.mu.Lock()
	s.workerID = out.WorkerID
	s.registered = true
	s.mu.Unlock()
	log.Printf("station: registered with %s as %s", s.cfg.OperatorURL, out.WorkerID)
	return nil
}

// RegisterWithRetry keeps trying to register until the operator answers
// or ctx is cancelled. The station outlives an operator that is still
// starting up or briefly away.
func (s *Station) RegisterWithRetry(ctx context.Context) error {
	backoff := s.baseBackoff
	for {
		err := s.Register(ctx)
		if err == nil {
			return nil
		}
		log.Printf("station: %v (retrying in %s)", err, backoff)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > s.maxBackoff {
			backoff = s.maxBackoff
		}
	}
}

// StartHeartbeat launches a goroutine that reports liveness on the given
// interval. A 404 means the operator dropped this station, so it registers
// again; repeated delivery failures surface on the returned channel.
func (s *Station) StartHeartbeat(ctx context.Context, interval time.Duration) <-chan error {
	if interval <= 0 {
		interval = 30 * time.Second
	}

	errCh := make(chan error, 1)

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		failures := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				status, err := s.sendHeartbeat(ctx)
				switch {
				case err != nil:
					failures++
					log.Printf("station: heartbeat: %v", err)
				case status == http.StatusNotFound:
					// Demoted or restarted operator; a heartbeat never
					// resurrects a record, only registering does.
					s.setRegistered(false)
					log.Printf("station: operator dropped %s, registering again", s.WorkerID())
					if rerr := s.Register(ctx); rerr != nil {
						log.Printf("station: re-register: %v", rerr)
					}
					failures = 0
				case status != http.StatusOK:
					failures++
					log.Printf("station: heartbeat status %d", status)
				default:
					failures = 0
				}

				if failures >= maxHeartbeatFailures {
					errCh <- fmt.Errorf("station: heartbeat failed %d times in a row", failures)
					return
				}
			}
		}
	}()

	return errCh
}

// sendHeartbeat PUTs one liveness report and returns the response status.
func (s *Station) sendHeartbeat(ctx context.Context) (int, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"active_instances": s.activeInstances(),
	})
	if err != nil {
		return 0, fmt.Errorf("encode heartbeat: %w", err)
	}

	url := fmt.Sprintf("%s/heartbeat/%s", strings.TrimRight(s.cfg.OperatorURL, "/"), s.WorkerID())
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("build heartbeat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.hc.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

// unregister tells the operator this station is going away. Best-effort:
// a dead operator just means the sweep will collect the record later.
func (s *Station) unregister() {
	if !s.Registered() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	url := fmt.Sprintf("%s/workers/%s", strings.TrimRight(s.cfg.OperatorURL, "/"), s.WorkerID())
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return
	}
	resp, err := s.hc.Do(req)
	if err != nil {
		log.Printf("station: unregister: %v", err)
		return
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	s.setRegistered(false)
	log.Printf("station: unregistered %s", s.WorkerID())
}
