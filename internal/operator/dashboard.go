package operator

import (
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

//go:embed templates/dashboard.html
var templatesFS embed.FS

var dashTmpl = template.Must(template.ParseFS(templatesFS, "templates/dashboard.html"))

// snapshotInterval is how often the SSE stream pushes a fresh snapshot.
const snapshotInterval = 2 * time.Second

// keepaliveInterval is how often the SSE stream emits a comment line so
// idle connections survive proxies.
const keepaliveInterval = 15 * time.Second

func (o *Operator) handleDashboard(c *gin.Context) {
	snap := o.exch.Snapshot()
	c.HTML(http.StatusOK, "dashboard.html", gin.H{
		"OnlineWorkers": snap.OnlineWorkers(),
		"TotalWorkers":  len(snap.Workers),
		"Workers":       snap.Workers,
		"Patches":       snap.Patches,
	})
}

// handleEvents streams registry snapshots over SSE. The first snapshot is
// sent immediately; after that a poll ticker pushes updates and comment
// lines keep the connection warm.
func (o *Operator) handleEvents(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	writeSSE(c.Writer, "snapshot", o.exch.Snapshot())
	c.Writer.Flush()

	ctx := c.Request.Context()
	ticker := time.NewTicker(snapshotInterval)
	keepalive := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()
	defer keepalive.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-keepalive.C:
			fmt.Fprintf(c.Writer, ": keepalive %s\n\n", time.Now().UTC().Format(time.RFC3339))
			c.Writer.Flush()
		case <-ticker.C:
			writeSSE(c.Writer, "snapshot", o.exch.Snapshot())
			c.Writer.Flush()
		}
	}
}

// writeSSE writes a single SSE event to the writer.
func writeSSE(w io.Writer, event string, data interface{}) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, string(jsonData))
}
