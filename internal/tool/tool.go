// Package tool defines the contract for station-hosted tools and the
// built-in implementations.
package tool

import (
	"context"
	"fmt"
	"sort"
)

// Result is what one tool execution returns to the caller: the textual
// response the model sees, a scalar reward signal, and free-form metrics.
// Tool-level input errors travel inside Result (error text, negative
// reward) so the model can observe and recover from them; the error return
// is reserved for infrastructure failures.
type Result struct {
	Response    string                 `json:"response"`
	RewardScore float64                `json:"reward_score"`
	Metrics     map[string]interface{} `json:"metrics"`
}

// Tool is one stateful capability hosted by a station. Implementations own
// their per-instance state and must be safe for concurrent use. Routing
// guarantees (one worker per instance) belong to the operator; a tool only
// ever sees instances it created itself.
type Tool interface {
	// Name is the tool name advertised at registration and used in URLs.
	Name() string
	// Create initializes state for an instance. The identity payload is
	// opaque session context (problem instance, ground truth) from the
	// caller; each tool decides what it needs from it.
	Create(ctx context.Context, instanceID string, identity map[string]interface{}) error
	// Execute runs one call against an existing instance.
	Execute(ctx context.Context, instanceID string, params map[string]interface{}) (Result, error)
	// CalcReward scores the instance's session so far. Unknown instances
	// score 0.0.
	CalcReward(ctx context.Context, instanceID string) (float64, error)
	// Release drops the instance's state. Releasing an unknown instance is
	// a no-op.
	Release(ctx context.Context, instanceID string) error
}

// Set is a lookup table of tools by name, built once at station startup.
type Set map[string]Tool

// NewSet indexes the given tools, rejecting duplicate names.
func NewSet(tools ...Tool) (Set, error) {
	s := make(Set, len(tools))
	for _, t := range tools {
		if _, ok := s[t.Name()]; ok {
			return nil, fmt.Errorf("tool: duplicate tool %q", t.Name())
		}
		s[t.Name()] = t
	}
	return s, nil
}

// Names returns the tool names sorted for registration payloads.
func (s Set) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
