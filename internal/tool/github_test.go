package tool

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/google/go-github/v68/github"
)

// newSearchServer fakes the issue-search API and records the last query.
func newSearchServer(t *testing.T, status int, body string) (*GitHub, *string) {
	t.Helper()
	var lastQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/search/issues") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		lastQuery = r.URL.Query().Get("q")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)

	client := github.NewClient(nil)
	base, err := url.Parse(srv.URL + "/")
	if err != nil {
		t.Fatalf("parse base url: %v", err)
	}
	client.BaseURL = base
	return NewGitHubWithClient(client), &lastQuery
}

const issuesJSON = `{
	"total_count": 2,
	"incomplete_results": false,
	"items": [
		{"number": 42, "title": "flaky watcher test", "state": "open"},
		{"number": 7, "title": "parser panic on empty input", "state": "closed"}
	]
}`

func TestGitHub_ExecuteSearchesBoundRepo(t *testing.T) {
	g, lastQuery := newSearchServer(t, http.StatusOK, issuesJSON)
	if err := g.Create(context.Background(), "inst-1", map[string]interface{}{"repo": "zulandar/switchboard"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := g.Execute(context.Background(), "inst-1", map[string]interface{}{"query": "panic"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	if want := "repo:zulandar/switchboard panic"; *lastQuery != want {
		t.Errorf("search query = %q, want %q", *lastQuery, want)
	}
	if !strings.Contains(got.Response, "#42 [open] flaky watcher test") {
		t.Errorf("response missing issue line: %q", got.Response)
	}
	if got.RewardScore != 0.1 {
		t.Errorf("reward = %v, want 0.1", got.RewardScore)
	}
	if got.Metrics["total_count"] != 2 {
		t.Errorf("total_count = %v, want 2", got.Metrics["total_count"])
	}
	if got.Metrics["search_count"] != 1 {
		t.Errorf("search_count = %v, want 1", got.Metrics["search_count"])
	}
}

func TestGitHub_CreateRequiresRepo(t *testing.T) {
	g, _ := newSearchServer(t, http.StatusOK, issuesJSON)

	tests := []struct {
		name     string
		identity map[string]interface{}
	}{
		{name: "nil identity", identity: nil},
		{name: "missing repo", identity: map[string]interface{}{"seed": 1.0}},
		{name: "malformed repo", identity: map[string]interface{}{"repo": "switchboard"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := g.Create(context.Background(), "inst-1", tt.identity); err == nil {
				t.Error("expected create error")
			}
		})
	}
}

func TestGitHub_ExecuteMissingQuery(t *testing.T) {
	g, _ := newSearchServer(t, http.StatusOK, issuesJSON)
	if err := g.Create(context.Background(), "inst-1", map[string]interface{}{"repo": "a/b"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := g.Execute(context.Background(), "inst-1", map[string]interface{}{})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if got.Response != "error: missing query" {
		t.Errorf("response = %q, want missing query error", got.Response)
	}
	if got.RewardScore != -0.1 {
		t.Errorf("reward = %v, want -0.1", got.RewardScore)
	}
}

func TestGitHub_ExecuteUnknownInstance(t *testing.T) {
	g, _ := newSearchServer(t, http.StatusOK, issuesJSON)
	got, err := g.Execute(context.Background(), "ghost", map[string]interface{}{"query": "panic"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.HasPrefix(got.Response, "error: unknown instance") {
		t.Errorf("response = %q, want unknown instance error", got.Response)
	}
}

func TestGitHub_SearchFailureIsToolError(t *testing.T) {
	g, _ := newSearchServer(t, http.StatusInternalServerError, `{"message": "boom"}`)
	if err := g.Create(context.Background(), "inst-1", map[string]interface{}{"repo": "a/b"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := g.Execute(context.Background(), "inst-1", map[string]interface{}{"query": "panic"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.HasPrefix(got.Response, "error: search failed") {
		t.Errorf("response = %q, want search failure text", got.Response)
	}
	if got.RewardScore != -0.1 {
		t.Errorf("reward = %v, want -0.1", got.RewardScore)
	}
}

func TestGitHub_CalcRewardDecaysPerSearch(t *testing.T) {
	g, _ := newSearchServer(t, http.StatusOK, issuesJSON)
	if err := g.Create(context.Background(), "inst-1", map[string]interface{}{"repo": "a/b"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := g.Execute(context.Background(), "inst-1", map[string]interface{}{"query": "panic"}); err != nil {
			t.Fatalf("execute %d: %v", i, err)
		}
	}

	got, err := g.CalcReward(context.Background(), "inst-1")
	if err != nil {
		t.Fatalf("calc reward: %v", err)
	}
	if diff := got - 0.8; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("reward = %v, want 0.8", got)
	}

	if err := g.Release(context.Background(), "inst-1"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if got, _ := g.CalcReward(context.Background(), "inst-1"); got != 0.0 {
		t.Errorf("reward after release = %v, want 0.0", got)
	}
}
