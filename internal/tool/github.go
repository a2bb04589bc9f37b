package tool

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/google/go-github/v68/github"
	"golang.org/x/oauth2"
)

// GitHub is a stateful issue-search tool. Each instance binds to one
// repository (taken from the create identity) and counts its searches so
// the session reward can decay with effort, like the arithmetic tool.
type GitHub struct {
	client    *github.Client
	mu        sync.Mutex
	instances map[string]*githubState
}

type githubState struct {
	repo     string
	searches int
}

// NewGitHub builds the tool with an oauth2-authenticated client when a
// token is configured, or an anonymous client (rate-limited by GitHub)
// otherwise.
func NewGitHub(token string) *GitHub {
	var hc *http.Client
	if token != "" {
		hc = oauth2.NewClient(context.Background(),
			oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
	}
	return NewGitHubWithClient(github.NewClient(hc))
}

// NewGitHubWithClient injects a prebuilt client; tests point its BaseURL at
// an httptest server.
func NewGitHubWithClient(client *github.Client) *GitHub {
	return &GitHub{client: client, instances: make(map[string]*githubState)}
}

// Name implements Tool.
func (g *GitHub) Name() string { return "github" }

// Create binds the instance to the repository named in the identity.
func (g *GitHub) Create(_ context.Context, instanceID string, identity map[string]interface{}) error {
	repo, _ := identity["repo"].(string)
	if !strings.Contains(repo, "/") {
		return fmt.Errorf("github: identity.repo must be \"owner/name\", got %q", repo)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.instances[instanceID] = &githubState{repo: repo}
	return nil
}

// Execute searches issues in the bound repository for params {query}.
func (g *GitHub) Execute(ctx context.Context, instanceID string, params map[string]interface{}) (Result, error) {
	query, _ := params["query"].(string)
	if strings.TrimSpace(query) == "" {
		return errResult("error: missing query"), nil
	}

	g.mu.Lock()
	st, ok := g.instances[instanceID]
	if !ok {
		g.mu.Unlock()
		return Result{
			Response:    fmt.Sprintf("error: unknown instance %s", instanceID),
			RewardScore: -0.1,
			Metrics:     map[string]interface{}{"error": "unknown instance"},
		}, nil
	}
	repo := st.repo
	g.mu.Unlock()

	res, _, err := g.client.Search.Issues(ctx, fmt.Sprintf("repo:%s %s", repo, query),
		&github.SearchOptions{ListOptions: github.ListOptions{PerPage: 5}})
	if err != nil {
		return Result{
			Response:    fmt.Sprintf("error: search failed: %v", err),
			RewardScore: -0.1,
			Metrics:     map[string]interface{}{"error": err.Error()},
		}, nil
	}

	// The instance may have been released while the search was in flight.
	searches := 0
	g.mu.Lock()
	if st, ok := g.instances[instanceID]; ok {
		st.searches++
		searches = st.searches
	}
	g.mu.Unlock()

	var b strings.Builder
	fmt.Fprintf(&b, "%d issues in %s match %q", res.GetTotal(), repo, query)
	for _, issue := range res.Issues {
		fmt.Fprintf(&b, "\n#%d [%s] %s", issue.GetNumber(), issue.GetState(), issue.GetTitle())
	}
	return Result{
		Response:    b.String(),
		RewardScore: 0.1,
		Metrics: map[string]interface{}{
			"total_count":  res.GetTotal(),
			"returned":     len(res.Issues),
			"search_count": searches,
		},
	}, nil
}

// CalcReward decays from 1.0 by 0.1 per search beyond the first, clamped to
// [0, 1]. Unknown instances score 0.
func (g *GitHub) CalcReward(_ context.Context, instanceID string) (float64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	st, ok := g.instances[instanceID]
	if !ok {
		return 0.0, nil
	}
	reward := 1.0 - float64(st.searches-1)*0.1
	if reward < 0 {
		reward = 0
	}
	if reward > 1 {
		reward = 1
	}
	return reward, nil
}

// Release implements Tool.
func (g *GitHub) Release(_ context.Context, instanceID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.instances, instanceID)
	return nil
}
