// Package station implements the worker agent: an HTTP server hosting
// tool instances that registers with the operator and heartbeats until
// stopped.
package station

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/zulandar/switchboard/internal/config"
	"github.com/zulandar/switchboard/internal/tool"
)

// Opts holds configuration for a Station.
type Opts struct {
	Config config.StationConfig
	Tools  tool.Set

	// Out receives startup progress lines; nil silences them.
	Out io.Writer
}

// Station hosts tools and keeps itself registered with the operator.
type Station struct {
	cfg   config.StationConfig
	tools tool.Set
	hc    *http.Client
	out   io.Writer

	baseBackoff time.Duration
	maxBackoff  time.Duration

	mu         sync.Mutex
	workerID   string
	registered bool
	instances  map[string]bool
}

// New builds a Station. The tool set must not be empty; a worker with
// nothing to serve has no reason to register.
func New(opts Opts) (*Station, error) {
	if len(opts.Tools) == 0 {
		return nil, fmt.Errorf("station: at least one tool is required")
	}
	cfg := opts.Config
	if cfg.Port <= 0 {
		cfg.Port = 8001
	}
	if cfg.OperatorURL == "" {
		return nil, fmt.Errorf("station: operator_url is required")
	}
	if cfg.AdvertiseURL == "" {
		cfg.AdvertiseURL = fmt.Sprintf("http://localhost:%d", cfg.Port)
	}
	if cfg.HeartbeatIntervalSec <= 0 {
		cfg.HeartbeatIntervalSec = 30
	}

	return &Station{
		cfg:         cfg,
		tools:       opts.Tools,
		hc:          &http.Client{Timeout: 10 * time.Second},
		out:         opts.Out,
		baseBackoff: registerBaseBackoff,
		maxBackoff:  registerMaxBackoff,
		workerID:    cfg.WorkerID,
		instances:   make(map[string]bool),
	}, nil
}

// WorkerID returns the id the operator knows this station by. Empty until
// the first successful registration when none was configured.
func (s *Station) WorkerID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.workerID
}

// Registered reports whether the last exchange with the operator left the
// station registered.
func (s *Station) Registered() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registered
}

func (s *Station) setRegistered(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registered = v
}

func (s *Station) trackInstance(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.instances[id] = true
}

func (s *Station) untrackInstance(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.instances, id)
}

func (s *Station) activeInstances() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.instances)
}

// Start serves the station until ctx is cancelled. It registers with the
// operator (retrying until it answers) and heartbeats on the configured
// interval; on shutdown it unregisters best-effort.
func (s *Station) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", s.cfg.Port),
		Handler: s.Handler(),
	}

	bg, stop := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.run(bg)
	}()

	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()

	if s.out != nil {
		fmt.Fprintf(s.out, "Station listening on http://localhost:%d\n", s.cfg.Port)
	}
	log.Printf("station: listening on %s, serving %v", srv.Addr, s.tools.Names())

	err := srv.ListenAndServe()
	stop()
	wg.Wait()
	s.unregister()
	if err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("station: %w", err)
	}
	return nil
}

// run registers and then heartbeats until ctx is cancelled. The first
// register attempt races the listener coming up; the retry loop absorbs
// the operator's failed probe.
func (s *Station) run(ctx context.Context) {
	if err := s.RegisterWithRetry(ctx); err != nil {
		return
	}
	errCh := s.StartHeartbeat(ctx, time.Duration(s.cfg.HeartbeatIntervalSec)*time.Second)
	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			log.Printf("station: %v", err)
		}
	}
}
