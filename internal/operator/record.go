package operator

import (
	"log"
	"sync"

	"gorm.io/gorm"

	"github.com/zulandar/switchboard/internal/models"
)

// recordQueueSize bounds the write queue; records past it are dropped.
const recordQueueSize = 256

// recorder persists call records and station events off the request path.
// Writes are best-effort: a full queue or a failed insert is logged and
// never fails the request that produced the record. A nil *recorder is
// valid and discards everything, covering the persistence-disabled case.
type recorder struct {
	db   *gorm.DB
	ch   chan interface{}
	done chan struct{}
	once sync.Once
}

func newRecorder(db *gorm.DB) *recorder {
	r := &recorder{
		db:   db,
		ch:   make(chan interface{}, recordQueueSize),
		done: make(chan struct{}),
	}
	go r.run()
	return r
}

func (r *recorder) run() {
	defer close(r.done)
	for rec := range r.ch {
		if err := r.db.Create(rec).Error; err != nil {
			log.Printf("operator: record write: %v", err)
		}
	}
}

// Call enqueues a proxied-call record.
func (r *recorder) Call(rec *models.CallRecord) {
	r.enqueue(rec)
}

// Event enqueues a station lifecycle event.
func (r *recorder) Event(rec *models.StationEvent) {
	r.enqueue(rec)
}

func (r *recorder) enqueue(rec interface{}) {
	if r == nil {
		return
	}
	select {
	case r.ch <- rec:
	default:
		log.Printf("operator: record queue full, dropping %T", rec)
	}
}

// Close drains the queue and stops the writer. Safe to call twice and on
// a nil recorder.
func (r *recorder) Close() {
	if r == nil {
		return
	}
	r.once.Do(func() {
		close(r.ch)
		<-r.done
	})
}
