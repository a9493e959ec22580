// Package search indexes and queries tasks. Meilisearch is the primary
// backend with Postgres full-text search as the always-available fallback.
package search

// Query is one task search request. DashboardIDs restricts results to the
// caller's accessible dashboards; an empty slice means no results, not all.
type Query struct {
	Text         string
	DashboardIDs []string
	Limit        int
	Offset       int
}

// Result is a single hit.
type Result struct {
	TaskID      int64  `json:"taskId"`
	DashboardID string `json:"dashboardId"`
	Name        string `json:"name"`
	Snippet     string `json:"snippet"`
}

// Response is the search envelope returned to the API layer.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// TaskRecord is the indexed shape of a task.
type TaskRecord struct {
	ID          string `json:"id"`
	TaskID      int64  `json:"taskId"`
	DashboardID string `json:"dashboardId"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Type        string `json:"type"`
	Gate        string `json:"gate"`
}
