package search

import "context"

// Result is a single key hit returned to the caller.
type Result struct {
	KeyID     string `json:"keyId"`
	Namespace string `json:"namespace"`
	Name      string `json:"name"`
	Snippet   string `json:"snippet"`
}

// Query describes a key search inside one branch.
type Query struct {
	Text     string
	BranchID string
	Limit    int
	Offset   int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a key search.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Result, int, error)
	Healthy() bool
}

// KeyRecord is the data we index for a translation key. Values maps
// language to translated text.
type KeyRecord struct {
	ID        string            `json:"id"`
	BranchID  string            `json:"branchId"`
	ProjectID string            `json:"projectId"`
	Namespace string            `json:"namespace"`
	Name      string            `json:"name"`
	Values    map[string]string `json:"values"`
}

const defaultLimit = 20

func (q Query) limit() int {
	if q.Limit <= 0 {
		return defaultLimit
	}
	if q.Limit > 100 {
		return 100
	}
	return q.Limit
}

func (q Query) offset() int {
	if q.Offset < 0 {
		return 0
	}
	return q.Offset
}
