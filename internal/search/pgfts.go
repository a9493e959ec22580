package search

import (
	"context"
	"database/sql"
	"fmt"
)

// PGFTS searches tasks with Postgres full-text search. It needs no extra
// infrastructure and serves as the fallback when Meilisearch is down.
type PGFTS struct {
	db *sql.DB
}

func NewPGFTS(db *sql.DB) *PGFTS {
	return &PGFTS{db: db}
}

func (p *PGFTS) Search(ctx context.Context, q Query) ([]Result, int, error) {
	if len(q.DashboardIDs) == 0 {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit == 0 {
		limit = 20
	}

	rows, err := p.db.QueryContext(ctx, `
		SELECT t.id, t.dashboard_id, t.name,
		       ts_headline('simple', t.description,
		                   websearch_to_tsquery('simple', $1),
		                   'StartSel=<mark>, StopSel=</mark>, MaxWords=30') AS snippet,
		       COUNT(*) OVER () AS total
		FROM tasks t
		WHERE t.dashboard_id = ANY($2)
		  AND (
		        to_tsvector('simple', t.name || ' ' || t.description || ' ' || t.task_type || ' ' || t.gate)
		          @@ websearch_to_tsquery('simple', $1)
		     OR t.name ILIKE '%' || $1 || '%'
		  )
		ORDER BY ts_rank(to_tsvector('simple', t.name || ' ' || t.description),
		                 websearch_to_tsquery('simple', $1)) DESC, t.id ASC
		LIMIT $3 OFFSET $4`,
		q.Text, q.DashboardIDs, limit, q.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts search: %w", err)
	}
	defer rows.Close()

	var results []Result
	total := 0
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.TaskID, &r.DashboardID, &r.Name, &r.Snippet, &total); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("pgfts rows: %w", err)
	}
	return results, total, nil
}
