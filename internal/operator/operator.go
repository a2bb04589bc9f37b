// Package operator implements the coordination service: the station
// registry, least-loaded instance routing, call proxying, and the
// health/dashboard/metrics surface.
package operator

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/zulandar/switchboard/internal/config"
	"github.com/zulandar/switchboard/internal/exchange"
	"github.com/zulandar/switchboard/internal/notify"
)

// Opts holds configuration for an Operator. Zero values fall back to the
// standard defaults, so tests can construct one from an empty Opts.
type Opts struct {
	Config config.OperatorConfig

	// DB stores call records and station events; nil disables persistence.
	DB *gorm.DB

	// Notifier fans lifecycle events out to chat senders; nil disables.
	Notifier *notify.Notifier

	// DigestSchedule is a 5-field cron expression for the fleet digest;
	// empty disables it.
	DigestSchedule string

	// Retention controls the periodic purge of old records.
	Retention config.RetentionConfig

	// Out receives startup progress lines; nil silences them.
	Out io.Writer
}

// Operator routes tool traffic across registered stations.
type Operator struct {
	cfg       config.OperatorConfig
	digest    string
	retention config.RetentionConfig

	exch     *exchange.Exchange
	client   *stationClient
	db       *gorm.DB
	rec      *recorder
	notifier *notify.Notifier
	metrics  *metrics
	out      io.Writer
}

// New assembles an Operator. Persistence and notifications stay off until
// a DB or Notifier is supplied.
func New(opts Opts) *Operator {
	cfg := opts.Config
	if cfg.Port <= 0 {
		cfg.Port = 8000
	}
	if cfg.HeartbeatTimeoutSec <= 0 {
		cfg.HeartbeatTimeoutSec = 60
	}
	if cfg.SweepIntervalSec <= 0 {
		cfg.SweepIntervalSec = 5
	}
	if cfg.ProbeTimeoutSec <= 0 {
		cfg.ProbeTimeoutSec = 10
	}
	if cfg.QueryTimeoutSec <= 0 {
		cfg.QueryTimeoutSec = 600
	}

	notifier := opts.Notifier
	if notifier == nil {
		notifier = notify.New()
	}

	var rec *recorder
	if opts.DB != nil {
		rec = newRecorder(opts.DB)
	}

	return &Operator{
		cfg:       cfg,
		digest:    opts.DigestSchedule,
		retention: opts.Retention,
		exch:      exchange.New(),
		client: newStationClient(
			time.Duration(cfg.ProbeTimeoutSec)*time.Second,
			time.Duration(cfg.QueryTimeoutSec)*time.Second,
		),
		db:       opts.DB,
		rec:      rec,
		notifier: notifier,
		metrics:  newMetrics(),
		out:      opts.Out,
	}
}

// Handler builds the full HTTP surface. It is safe to serve from
// httptest without calling Start.
func (o *Operator) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.SetHTMLTemplate(dashTmpl)
	o.registerRoutes(router)
	return router
}

// Start serves the operator until ctx is cancelled, running the health
// sweep and scheduled jobs alongside, then shuts down gracefully.
func (o *Operator) Start(ctx context.Context) error {
	defer o.Close()

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", o.cfg.Host, o.cfg.Port),
		Handler: o.Handler(),
	}

	bg, stop := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		o.runSweeps(bg)
	}()
	go func() {
		defer wg.Done()
		o.runSchedules(bg)
	}()

	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()

	if o.out != nil {
		fmt.Fprintf(o.out, "Operator listening on http://localhost:%d\n", o.cfg.Port)
	}
	log.Printf("operator: listening on %s", srv.Addr)

	err := srv.ListenAndServe()
	stop()
	wg.Wait()
	if err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("operator: %w", err)
	}
	return nil
}

// Close stops the background record writer. Safe to call twice.
func (o *Operator) Close() {
	o.rec.Close()
}
