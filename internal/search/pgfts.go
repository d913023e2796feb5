package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true. If Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search runs plainto_tsquery over title and content with ts_headline
// snippets, restricted to documents the user may view.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	where := `to_tsvector('english', d.title || ' ' || d.content) @@ plainto_tsquery('english', $1)
		AND (d.author_id = $2 OR d.visibility = 'public'
			OR EXISTS (SELECT 1 FROM document_shares s WHERE s.document_id = d.id AND s.user_id = $2))`
	args := []any{q.Text, q.UserID}

	countSQL := "SELECT count(*) FROM documents d WHERE " + where

	dataSQL := fmt.Sprintf(`
		SELECT d.id, d.title,
			ts_headline('english', d.content, plainto_tsquery('english', $1), 'MaxFragments=1,MaxWords=30') AS snippet,
			d.author_id, d.visibility
		FROM documents d
		WHERE %s
		ORDER BY ts_rank(to_tsvector('english', d.title || ' ' || d.content), plainto_tsquery('english', $1)) DESC
		LIMIT %d OFFSET %d`, where, limit, offset)

	ctx := context.Background()

	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ID, &r.Title, &r.Snippet, &r.AuthorID, &r.Visibility); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		results = append(results, r)
	}
	return results, total, rows.Err()
}

// LoadAllRecords returns every document with its share list for full
// reindexing into Meilisearch.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]DocumentRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT d.id, d.title, d.content, d.author_id, d.visibility,
			coalesce(array_to_string(array_agg(s.user_id) FILTER (WHERE s.user_id IS NOT NULL), ','), '')
		FROM documents d
		LEFT JOIN document_shares s ON s.document_id = d.id
		GROUP BY d.id
	`)
	if err != nil {
		return nil, fmt.Errorf("load documents: %w", err)
	}
	defer rows.Close()

	documents := make([]DocumentRecord, 0)
	for rows.Next() {
		var d DocumentRecord
		var sharedWith string
		if err := rows.Scan(&d.ID, &d.Title, &d.Content, &d.AuthorID, &d.Visibility, &sharedWith); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		if sharedWith != "" {
			d.SharedWith = strings.Split(sharedWith, ",")
		} else {
			d.SharedWith = []string{}
		}
		documents = append(documents, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return documents, nil
}
