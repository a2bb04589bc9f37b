package operator

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/zulandar/switchboard/internal/config"
	"github.com/zulandar/switchboard/internal/db"
	"github.com/zulandar/switchboard/internal/models"
	"github.com/zulandar/switchboard/internal/notify"
)

// captureSender records notifications for assertions.
type captureSender struct {
	mu     sync.Mutex
	events []notify.Event
}

func (c *captureSender) Name() string { return "capture" }

func (c *captureSender) Send(_ context.Context, evt notify.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
	return nil
}

func (c *captureSender) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func (c *captureSender) last() notify.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.events[len(c.events)-1]
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := db.Connect(config.DatabaseConfig{Driver: "sqlite", Path: ":memory:"})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := db.AutoMigrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return conn
}

func TestRecorder_PersistsCallsAndEvents(t *testing.T) {
	conn := openTestDB(t)
	stub := newStationStub(t)
	o, srv := newTestServer(t, Opts{DB: conn})

	registerStation(t, srv.URL, stub, "w1", "arithmetic")
	createInstance(t, srv.URL, "arithmetic", "inst-1")
	postJSON(t, srv.URL+"/tools/arithmetic/execute", map[string]interface{}{
		"instance_id": "inst-1",
		"parameters":  map[string]interface{}{"operation": "add"},
	})

	// Close drains the async write queue.
	o.Close()

	var calls []models.CallRecord
	if err := conn.Order("id ASC").Find(&calls).Error; err != nil {
		t.Fatalf("query calls: %v", err)
	}
	if len(calls) != 2 {
		t.Fatalf("call records = %d, want 2 (create + execute)", len(calls))
	}
	if calls[0].Kind != "create" || calls[1].Kind != "execute" {
		t.Errorf("kinds = %s/%s", calls[0].Kind, calls[1].Kind)
	}
	if calls[0].Tool != "arithmetic" || calls[0].WorkerID != "w1" || calls[0].Status != "ok" {
		t.Errorf("create record = %+v", calls[0])
	}

	var events []models.StationEvent
	if err := conn.Find(&events).Error; err != nil {
		t.Fatalf("query events: %v", err)
	}
	if len(events) != 1 || events[0].Event != "registered" || events[0].WorkerID != "w1" {
		t.Errorf("station events = %+v, want one registered event", events)
	}
}

func TestRecorder_RecordsFailedCalls(t *testing.T) {
	conn := openTestDB(t)
	stub := newStationStub(t)
	stub.setFailCreate(true)
	o, srv := newTestServer(t, Opts{DB: conn})

	registerStation(t, srv.URL, stub, "w1", "arithmetic")
	postJSON(t, srv.URL+"/tools/arithmetic/create", map[string]interface{}{
		"instance_id": "inst-1",
	})
	o.Close()

	var rec models.CallRecord
	if err := conn.Where("kind = ?", "create").First(&rec).Error; err != nil {
		t.Fatalf("query: %v", err)
	}
	if rec.Status != "error" {
		t.Errorf("status = %q, want error", rec.Status)
	}
	if rec.Error == "" {
		t.Error("expected error text on failed call record")
	}
}

func TestBuildDigestReport(t *testing.T) {
	conn := openTestDB(t)
	o := New(Opts{DB: conn})
	defer o.Close()

	now := time.Now()
	records := []models.CallRecord{
		{Tool: "arithmetic", Kind: "execute", Status: "ok", CreatedAt: now.Add(-time.Hour)},
		{Tool: "arithmetic", Kind: "execute", Status: "error", CreatedAt: now.Add(-2 * time.Hour)},
		{Tool: "github", Kind: "create", Status: "ok", CreatedAt: now.Add(-48 * time.Hour)}, // outside window
	}
	for i := range records {
		if err := conn.Create(&records[i]).Error; err != nil {
			t.Fatalf("seed record: %v", err)
		}
	}

	report := o.buildDigestReport(now.Add(-24 * time.Hour))
	if report.Calls != 2 {
		t.Errorf("Calls = %d, want 2", report.Calls)
	}
	if report.Failed != 1 {
		t.Errorf("Failed = %d, want 1", report.Failed)
	}
}

func TestFireDigest(t *testing.T) {
	conn := openTestDB(t)
	capture := &captureSender{}
	o := New(Opts{DB: conn, Notifier: notify.New(capture)})
	defer o.Close()

	conn.Create(&models.CallRecord{Tool: "arithmetic", Kind: "execute", Status: "ok"})

	o.fireDigest(context.Background())

	if capture.count() != 1 {
		t.Fatalf("sent %d digests, want 1", capture.count())
	}
	evt := capture.last()
	if !strings.Contains(evt.Title, "digest") {
		t.Errorf("title = %q", evt.Title)
	}
	if !strings.Contains(evt.Body, "1 call(s)") {
		t.Errorf("body = %q, want call count", evt.Body)
	}
}

func TestFireDigest_SuppressedWhenIdle(t *testing.T) {
	capture := &captureSender{}
	o := New(Opts{Notifier: notify.New(capture)})
	defer o.Close()

	o.fireDigest(context.Background())

	if capture.count() != 0 {
		t.Errorf("sent %d digests for an idle fleet, want 0", capture.count())
	}
}

func TestFireRetention(t *testing.T) {
	conn := openTestDB(t)
	o := New(Opts{DB: conn, Retention: config.RetentionConfig{Schedule: "0 3 * * *", MaxAgeDays: 7}})
	defer o.Close()

	now := time.Now()
	old := models.CallRecord{Tool: "arithmetic", Kind: "execute", Status: "ok", CreatedAt: now.AddDate(0, 0, -10)}
	fresh := models.CallRecord{Tool: "arithmetic", Kind: "execute", Status: "ok", CreatedAt: now.Add(-time.Hour)}
	conn.Create(&old)
	conn.Create(&fresh)
	conn.Create(&models.StationEvent{WorkerID: "w1", Event: "registered", CreatedAt: now.AddDate(0, 0, -10)})

	o.fireRetention()

	var count int64
	conn.Model(&models.CallRecord{}).Count(&count)
	if count != 1 {
		t.Errorf("call records after retention = %d, want 1", count)
	}
	var remaining models.CallRecord
	conn.First(&remaining)
	if remaining.ID != fresh.ID {
		t.Errorf("kept record %d, want the fresh one %d", remaining.ID, fresh.ID)
	}
	conn.Model(&models.StationEvent{}).Count(&count)
	if count != 0 {
		t.Errorf("station events after retention = %d, want 0", count)
	}
}

func TestNextCronDuration(t *testing.T) {
	if d := nextCronDuration("0 3 * * *"); d <= 0 || d > 24*time.Hour {
		t.Errorf("duration = %v, want within a day", d)
	}
	if d := nextCronDuration("not a cron"); d != 0 {
		t.Errorf("invalid expression duration = %v, want 0", d)
	}
}
