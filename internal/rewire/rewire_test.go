package rewire

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

const toolsYAML = `tools:
  - class_name: bootcamp.tools.Arithmetic
    config:
      precision: 4
    tool_schema:
      type: function
      function:
        name: arithmetic
  - class_name: bootcamp.tools.GithubSearch
concurrency: 8
`

func parseDoc(t *testing.T, src string) Doc {
	t.Helper()
	var doc Doc
	if err := yaml.Unmarshal([]byte(src), &doc); err != nil {
		t.Fatalf("parse: %v", err)
	}
	return doc
}

func entry(t *testing.T, doc Doc, i int) map[string]interface{} {
	t.Helper()
	entries, err := toolEntries(doc)
	if err != nil {
		t.Fatalf("tool entries: %v", err)
	}
	m, ok := entries[i].(map[string]interface{})
	if !ok {
		t.Fatalf("tool %d is not a mapping", i)
	}
	return m
}

func TestRewrite_PointsToolsAtOperator(t *testing.T) {
	doc := parseDoc(t, toolsYAML)
	out, err := Rewrite(doc, Options{ServerURL: "http://10.0.0.1:8000/", TimeoutPerQuery: 120})
	if err != nil {
		t.Fatalf("rewrite: %v", err)
	}

	first := entry(t, out, 0)
	cfg := first["config"].(map[string]interface{})
	if got, want := cfg["mcp_server_url"], "http://10.0.0.1:8000/tools/Arithmetic"; got != want {
		t.Errorf("mcp_server_url = %v, want %v", got, want)
	}
	if got := cfg["timeout_per_query"]; got != 120 {
		t.Errorf("timeout_per_query = %v, want 120", got)
	}
	if got := first["class_name"]; got != DefaultProxyClass {
		t.Errorf("class_name = %v, want %v", got, DefaultProxyClass)
	}
	// Existing config keys survive.
	if got := cfg["precision"]; got != 4 {
		t.Errorf("precision = %v, want preserved 4", got)
	}
}

func TestRewrite_CreatesMissingConfig(t *testing.T) {
	doc := parseDoc(t, toolsYAML)
	out, err := Rewrite(doc, Options{ServerURL: "http://op:8000"})
	if err != nil {
		t.Fatalf("rewrite: %v", err)
	}

	second := entry(t, out, 1)
	cfg, ok := second["config"].(map[string]interface{})
	if !ok {
		t.Fatalf("config not created for entry without one")
	}
	if got, want := cfg["mcp_server_url"], "http://op:8000/tools/GithubSearch"; got != want {
		t.Errorf("mcp_server_url = %v, want %v", got, want)
	}
	if got := cfg["timeout_per_query"]; got != DefaultTimeoutPerQuery {
		t.Errorf("timeout_per_query = %v, want default %d", got, DefaultTimeoutPerQuery)
	}
}

func TestRewrite_DoesNotMutateInput(t *testing.T) {
	doc := parseDoc(t, toolsYAML)
	if _, err := Rewrite(doc, Options{ServerURL: "http://op:8000"}); err != nil {
		t.Fatalf("rewrite: %v", err)
	}

	first := entry(t, doc, 0)
	if got := first["class_name"]; got != "bootcamp.tools.Arithmetic" {
		t.Errorf("input class_name = %v, want untouched", got)
	}
	cfg := first["config"].(map[string]interface{})
	if _, ok := cfg["mcp_server_url"]; ok {
		t.Error("input config gained mcp_server_url")
	}
}

func TestRewrite_PreservesUnrelatedKeys(t *testing.T) {
	doc := parseDoc(t, toolsYAML)
	out, err := Rewrite(doc, Options{ServerURL: "http://op:8000"})
	if err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	if got := out["concurrency"]; got != 8 {
		t.Errorf("concurrency = %v, want preserved 8", got)
	}
	first := entry(t, out, 0)
	if _, ok := first["tool_schema"]; !ok {
		t.Error("tool_schema dropped by rewrite")
	}
}

func TestRewrite_Validation(t *testing.T) {
	doc := parseDoc(t, toolsYAML)
	if _, err := Rewrite(doc, Options{}); err == nil {
		t.Error("expected error for missing server url")
	}

	noClass := parseDoc(t, "tools:\n  - config: {}\n")
	if _, err := Rewrite(noClass, Options{ServerURL: "http://op:8000"}); err == nil {
		t.Error("expected error for tool without class_name")
	}
}

func TestToolNames(t *testing.T) {
	doc := parseDoc(t, toolsYAML)
	got := ToolNames(doc)
	want := []string{"Arithmetic", "GithubSearch"}
	if len(got) != len(want) {
		t.Fatalf("names = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("names[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestOutputPath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "tools.yaml", want: "tools_with_server_urls.yaml"},
		{in: "conf/bootcamp.yml", want: "conf/bootcamp_with_server_urls.yaml"},
		{in: "noext", want: "noext_with_server_urls.yaml"},
	}
	for _, tt := range tests {
		if got := OutputPath(tt.in); got != tt.want {
			t.Errorf("OutputPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLoadSave_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "tools.yaml")
	if err := os.WriteFile(in, []byte(toolsYAML), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}

	doc, err := Load(in)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	out, err := Rewrite(doc, Options{ServerURL: "http://op:8000"})
	if err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	dst := OutputPath(in)
	if err := Save(dst, out); err != nil {
		t.Fatalf("save: %v", err)
	}

	data, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if !strings.Contains(string(data), "http://op:8000/tools/Arithmetic") {
		t.Errorf("output missing proxy url:\n%s", data)
	}
}

func TestLoad_RequiresToolsList(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(path, []byte("concurrency: 8\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for document without tools list")
	}
}
