// Package search provides full-text search over documents. Meilisearch is
// the primary engine; PostgreSQL full-text search is the always-available
// fallback.
package search

// Result is a single search hit returned to the caller.
type Result struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Snippet    string `json:"snippet"`
	AuthorID   string `json:"authorId"`
	Visibility string `json:"visibility"`
}

// Query describes a search request. UserID scopes results to documents the
// user may view.
type Query struct {
	Text   string
	UserID string
	Limit  int
	Offset int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// DocumentRecord is the data we index for a document. SharedWith lists the
// user IDs with an explicit share so the engine can filter by access.
type DocumentRecord struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	Content    string   `json:"content"`
	AuthorID   string   `json:"authorId"`
	Visibility string   `json:"visibility"`
	SharedWith []string `json:"sharedWith"`
}
