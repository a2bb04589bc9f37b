// Package notify fans station lifecycle events out to chat platforms.
package notify

import (
	"context"
	"fmt"
	"log"
	"strings"
)

// Event is one fleet event formatted for delivery.
type Event struct {
	Title    string
	Body     string
	Severity string // "info", "warning", "error", "success"
	Fields   []Field
}

// Field is a key-value pair displayed alongside an event.
type Field struct {
	Name  string
	Value string
	Short bool // hint: render side-by-side with another field
}

// Sender delivers one event to one platform.
type Sender interface {
	Name() string
	Send(ctx context.Context, evt Event) error
}

// Notifier fans events out to every configured sender. Delivery is
// best-effort: a failing sender is logged and skipped, and an empty
// notifier is valid and silent.
type Notifier struct {
	senders []Sender
}

// New builds a Notifier over the given senders.
func New(senders ...Sender) *Notifier {
	return &Notifier{senders: senders}
}

// Notify delivers the event to all senders.
func (n *Notifier) Notify(ctx context.Context, evt Event) {
	for _, s := range n.senders {
		if err := s.Send(ctx, evt); err != nil {
			log.Printf("notify: %s: %v", s.Name(), err)
		}
	}
}

// SeverityColor maps a severity to the sidebar color hint platforms use.
func SeverityColor(severity string) string {
	switch severity {
	case "success":
		return "#36a64f"
	case "warning":
		return "#f2c744"
	case "error":
		return "#d00000"
	default:
		return "#439fe0"
	}
}

// StationRegistered builds the event for a worker joining the fleet.
func StationRegistered(workerID, baseURL string, tools []string) Event {
	return Event{
		Title:    fmt.Sprintf("Station %s registered", workerID),
		Body:     fmt.Sprintf("Serving %s", strings.Join(tools, ", ")),
		Severity: "success",
		Fields: []Field{
			{Name: "Worker", Value: workerID, Short: true},
			{Name: "URL", Value: baseURL, Short: true},
		},
	}
}

// StationOffline builds the event for a worker demoted by the health sweep.
func StationOffline(workerID string, droppedInstances int) Event {
	return Event{
		Title:    fmt.Sprintf("Station %s went offline", workerID),
		Body:     fmt.Sprintf("Missed heartbeats; %d bound instance(s) invalidated", droppedInstances),
		Severity: "warning",
		Fields: []Field{
			{Name: "Worker", Value: workerID, Short: true},
			{Name: "Dropped instances", Value: fmt.Sprintf("%d", droppedInstances), Short: true},
		},
	}
}

// StationRemoved builds the event for an explicit unregister.
func StationRemoved(workerID string, droppedInstances int) Event {
	return Event{
		Title:    fmt.Sprintf("Station %s unregistered", workerID),
		Body:     fmt.Sprintf("%d bound instance(s) released", droppedInstances),
		Severity: "info",
		Fields: []Field{
			{Name: "Worker", Value: workerID, Short: true},
		},
	}
}
