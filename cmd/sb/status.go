package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/switchboard/internal/exchange"
	"golang.org/x/term"
)

func newStatusCmd() *cobra.Command {
	var (
		serverURL string
		watch     bool
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the station fleet",
		Long:  "Renders the operator's health snapshot as a table: stations, bound instances, and tool coverage. Use --watch for auto-refresh.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, serverURL, watch)
		},
	}

	cmd.Flags().StringVar(&serverURL, "server-url", "http://localhost:8000", "operator base URL")
	cmd.Flags().BoolVar(&watch, "watch", false, "auto-refresh every 2 seconds")
	return cmd
}

// healthResponse is the operator /health payload: the routing snapshot plus
// summary fields.
type healthResponse struct {
	Status        string `json:"status"`
	OnlineWorkers int    `json:"online_workers"`
	exchange.Snapshot
}

func runStatus(cmd *cobra.Command, serverURL string, watch bool) error {
	out := cmd.OutOrStdout()

	for {
		health, err := fetchHealth(serverURL)
		if err != nil {
			return err
		}

		rendered := formatStatus(health)
		if watch && term.IsTerminal(int(os.Stdout.Fd())) {
			if width, _, werr := term.GetSize(int(os.Stdout.Fd())); werr == nil && width > 0 {
				rendered = clipLines(rendered, width)
			}
			// Clear screen between refreshes.
			fmt.Fprint(out, "\033[2J\033[H")
		}
		fmt.Fprint(out, rendered)

		if !watch {
			return nil
		}
		time.Sleep(2 * time.Second)
	}
}

func fetchHealth(serverURL string) (*healthResponse, error) {
	hc := &http.Client{Timeout: 5 * time.Second}
	resp, err := hc.Get(strings.TrimRight(serverURL, "/") + "/health")
	if err != nil {
		return nil, fmt.Errorf("reach operator at %s: %w", serverURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("operator /health: status %d: %s",
			resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var health healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return nil, fmt.Errorf("decode /health: %w", err)
	}
	return &health, nil
}

func formatStatus(h *healthResponse) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Stations: %d online / %d registered    Instances bound: %d\n\n",
		h.OnlineWorkers, len(h.Workers), len(h.Patches))

	if len(h.Workers) == 0 {
		b.WriteString("No stations registered.\n")
		return b.String()
	}

	w := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "WORKER\tSTATUS\tTOOLS\tACTIVE\tLAST HEARTBEAT")
	for _, wk := range h.Workers {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
			wk.ID, wk.Status, strings.Join(wk.Tools, ","), wk.ActiveInstances,
			timeAgo(wk.LastHeartbeatAt))
	}
	w.Flush()

	if len(h.Patches) > 0 {
		b.WriteString("\n")
		pw := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
		fmt.Fprintln(pw, "INSTANCE\tTOOL\tWORKER\tAGE")
		for _, p := range h.Patches {
			fmt.Fprintf(pw, "%s\t%s\t%s\t%s\n", p.InstanceID, p.Tool, p.WorkerID, timeAgo(p.CreatedAt))
		}
		pw.Flush()
	}
	return b.String()
}

// timeAgo renders a timestamp as a relative age ("12s ago").
func timeAgo(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	default:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	}
}

// clipLines truncates each line to width so --watch refreshes don't wrap.
func clipLines(s string, width int) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		if len(line) > width {
			lines[i] = line[:width]
		}
	}
	return strings.Join(lines, "\n")
}
