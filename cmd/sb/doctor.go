package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/switchboard/internal/exchange"
)

func newDoctorCmd() *cobra.Command {
	var serverURL string

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check operator and station health",
		Long:  "Runs diagnostic checks against a live deployment: operator health, every registered station's health endpoint, and a create/release round-trip per routable tool.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoctor(cmd, serverURL)
		},
	}

	cmd.Flags().StringVar(&serverURL, "server-url", "http://localhost:8000", "operator base URL")
	return cmd
}

type checkResult struct {
	name   string
	status string // "PASS", "FAIL", "WARN"
	detail string
}

// doctorIdentities holds canned create identities for tools that require
// one. The github tool stores the repo at create time without touching the
// GitHub API, so any well-formed value works.
var doctorIdentities = map[string]map[string]interface{}{
	"github": {"repo": "octocat/hello-world"},
}

func runDoctor(cmd *cobra.Command, serverURL string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Switchboard Doctor")
	fmt.Fprintln(out, "==================")

	doc := &doctor{
		serverURL: strings.TrimRight(serverURL, "/"),
		hc:        &http.Client{Timeout: 10 * time.Second},
	}

	var results []checkResult

	// 1. Operator
	health, opResult := doc.checkOperator()
	results = append(results, opResult)

	if health != nil {
		// 2. Stations
		if len(health.Workers) == 0 {
			results = append(results, checkResult{"Stations", "WARN", "none registered"})
		}
		for _, wk := range health.Workers {
			results = append(results, doc.checkStation(wk))
		}

		// 3. Tool round-trips
		for _, toolName := range sortedTools(health.Tools) {
			results = append(results, doc.checkRoundTrip(toolName))
		}
	}

	passed, failed, warned := 0, 0, 0
	for _, r := range results {
		printCheckResult(out, r)
		switch r.status {
		case "PASS":
			passed++
		case "FAIL":
			failed++
		case "WARN":
			warned++
		}
	}

	fmt.Fprintf(out, "\n%d passed, %d failed, %d warning\n", passed, failed, warned)

	if failed > 0 {
		return fmt.Errorf("%d check(s) failed", failed)
	}
	return nil
}

type doctor struct {
	serverURL string
	hc        *http.Client
}

func (d *doctor) checkOperator() (*healthResponse, checkResult) {
	resp, err := d.hc.Get(d.serverURL + "/health")
	if err != nil {
		return nil, checkResult{"Operator", "FAIL", fmt.Sprintf("%s unreachable: %v", d.serverURL, err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, checkResult{"Operator", "FAIL", fmt.Sprintf("/health status %d", resp.StatusCode)}
	}
	var health healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return nil, checkResult{"Operator", "FAIL", fmt.Sprintf("decode /health: %v", err)}
	}
	return &health, checkResult{"Operator", "PASS",
		fmt.Sprintf("%s (%d station(s) online)", d.serverURL, health.OnlineWorkers)}
}

func (d *doctor) checkStation(wk exchange.Worker) checkResult {
	name := fmt.Sprintf("Station %s", wk.ID)
	if wk.Status != exchange.StatusOnline {
		return checkResult{name, "WARN",
			fmt.Sprintf("%s (last heartbeat %s)", wk.Status, timeAgo(wk.LastHeartbeatAt))}
	}

	resp, err := d.hc.Get(strings.TrimRight(wk.BaseURL, "/") + "/health")
	if err != nil {
		return checkResult{name, "FAIL", fmt.Sprintf("%s unreachable: %v", wk.BaseURL, err)}
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return checkResult{name, "FAIL", fmt.Sprintf("/health status %d", resp.StatusCode)}
	}
	return checkResult{name, "PASS", wk.BaseURL}
}

// checkRoundTrip creates a throwaway instance, executes it where a canned
// call exists, and always releases it. A 400 on create counts as WARN, not
// FAIL: the request made it through to the tool, which rejected the canned
// input.
func (d *doctor) checkRoundTrip(toolName string) checkResult {
	name := fmt.Sprintf("Tool %s", toolName)
	instanceID := fmt.Sprintf("doctor-%d", time.Now().UnixNano())

	createBody := map[string]interface{}{"instance_id": instanceID}
	if identity, ok := doctorIdentities[toolName]; ok {
		createBody["identity"] = identity
	}
	if _, status, err := d.postTool(toolName, "create", createBody); err != nil {
		if status == http.StatusBadRequest {
			return checkResult{name, "WARN", fmt.Sprintf("create rejected: %v", err)}
		}
		return checkResult{name, "FAIL", fmt.Sprintf("create: %v", err)}
	}

	detail := "create/release ok"
	if toolName == "arithmetic" {
		res, _, err := d.postTool(toolName, "execute", map[string]interface{}{
			"instance_id": instanceID,
			"parameters":  map[string]interface{}{"operation": "add", "operand1": 2, "operand2": 2},
		})
		if err != nil {
			d.postTool(toolName, "release", map[string]interface{}{"instance_id": instanceID})
			return checkResult{name, "FAIL", fmt.Sprintf("execute: %v", err)}
		}
		response, _ := res["response"].(string)
		detail = fmt.Sprintf("create/execute/release ok (%s)", response)
	}

	if _, _, err := d.postTool(toolName, "release", map[string]interface{}{"instance_id": instanceID}); err != nil {
		return checkResult{name, "FAIL", fmt.Sprintf("release: %v", err)}
	}
	return checkResult{name, "PASS", detail}
}

func (d *doctor) postTool(toolName, op string, body map[string]interface{}) (map[string]interface{}, int, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, 0, err
	}

	url := fmt.Sprintf("%s/tools/%s/%s", d.serverURL, toolName, op)
	resp, err := d.hc.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var out map[string]interface{}
	json.Unmarshal(raw, &out)
	return out, resp.StatusCode, nil
}

func sortedTools(tools map[string][]string) []string {
	names := make([]string, 0, len(tools))
	for name := range tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func printCheckResult(out io.Writer, r checkResult) {
	fmt.Fprintf(out, "[%s] %s: %s\n", r.status, r.name, r.detail)
}
