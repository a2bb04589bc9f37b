// Package rewire rewrites a tool-definition YAML so that every tool entry
// points at the operator's proxy endpoint instead of a local class. The
// transformation is pure: it takes a parsed document and returns a new one,
// leaving schemas and unrelated keys untouched.
package rewire

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultProxyClass is the class substituted for each tool's own, telling
// the consuming framework to call through the operator.
const DefaultProxyClass = "switchboard.client.ProxyTool"

// DefaultTimeoutPerQuery is the per-call timeout written into each tool's
// config, in seconds.
const DefaultTimeoutPerQuery = 600

// Doc is a parsed tool-definition file.
type Doc map[string]interface{}

// Options control the rewrite.
type Options struct {
	ServerURL       string // operator base URL, e.g. http://10.0.0.1:8000
	TimeoutPerQuery int    // seconds; DefaultTimeoutPerQuery when 0
	ProxyClass      string // DefaultProxyClass when empty
}

// Load reads and parses a tool-definition file, requiring a top-level
// "tools" list.
func Load(path string) (Doc, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("rewire: read %s: %w", path, err)
	}
	var doc Doc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("rewire: parse %s: %w", path, err)
	}
	if _, err := toolEntries(doc); err != nil {
		return nil, fmt.Errorf("rewire: %s: %w", path, err)
	}
	return doc, nil
}

// Save writes the document as YAML.
func Save(path string, doc Doc) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("rewire: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("rewire: write %s: %w", path, err)
	}
	return nil
}

// OutputPath derives the conventional output name next to the input:
// tools.yaml becomes tools_with_server_urls.yaml.
func OutputPath(input string) string {
	return strings.TrimSuffix(input, filepath.Ext(input)) + "_with_server_urls.yaml"
}

// Rewrite returns a new document in which every tool entry has
// config.mcp_server_url pointing at the operator's per-tool proxy path,
// config.timeout_per_query set, and class_name replaced by the proxy class.
func Rewrite(doc Doc, opts Options) (Doc, error) {
	if strings.TrimSpace(opts.ServerURL) == "" {
		return nil, fmt.Errorf("rewire: server url is required")
	}
	if opts.TimeoutPerQuery <= 0 {
		opts.TimeoutPerQuery = DefaultTimeoutPerQuery
	}
	if opts.ProxyClass == "" {
		opts.ProxyClass = DefaultProxyClass
	}
	base := strings.TrimRight(opts.ServerURL, "/")

	out, err := deepCopy(doc)
	if err != nil {
		return nil, err
	}
	entries, err := toolEntries(out)
	if err != nil {
		return nil, fmt.Errorf("rewire: %w", err)
	}
	for i, entry := range entries {
		m, ok := entry.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("rewire: tool %d is not a mapping", i)
		}
		className, _ := m["class_name"].(string)
		if className == "" {
			return nil, fmt.Errorf("rewire: tool %d has no class_name", i)
		}

		cfg, ok := m["config"].(map[string]interface{})
		if !ok {
			cfg = make(map[string]interface{})
			m["config"] = cfg
		}
		cfg["mcp_server_url"] = base + "/tools/" + toolName(className)
		cfg["timeout_per_query"] = opts.TimeoutPerQuery
		m["class_name"] = opts.ProxyClass
	}
	return out, nil
}

// ToolNames lists the tool names addressed by the document, in order.
func ToolNames(doc Doc) []string {
	entries, err := toolEntries(doc)
	if err != nil {
		return nil
	}
	var names []string
	for _, entry := range entries {
		m, ok := entry.(map[string]interface{})
		if !ok {
			continue
		}
		if className, _ := m["class_name"].(string); className != "" {
			names = append(names, toolName(className))
		}
	}
	return names
}

// toolName is the last dot segment of a class path.
func toolName(className string) string {
	parts := strings.Split(className, ".")
	return parts[len(parts)-1]
}

func toolEntries(doc Doc) ([]interface{}, error) {
	raw, ok := doc["tools"]
	if !ok {
		return nil, fmt.Errorf("document has no 'tools' list")
	}
	entries, ok := raw.([]interface{})
	if !ok {
		return nil, fmt.Errorf("'tools' is not a list")
	}
	return entries, nil
}

// deepCopy round-trips through YAML so the input document is never mutated.
func deepCopy(doc Doc) (Doc, error) {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("rewire: copy: %w", err)
	}
	var out Doc
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("rewire: copy: %w", err)
	}
	return out, nil
}
