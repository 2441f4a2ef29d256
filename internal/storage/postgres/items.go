package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/techradar/internal/radar"
)

const selectExistingItemsSQL = `SELECT url, id FROM fetched_items WHERE url = ANY($1)`

const insertItemSQL = `
INSERT INTO fetched_items (
	id, run_id, category, source_id, title, url, published_at,
	snippet, content_type_hint, signals, score, raw
) VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, NULLIF($8, ''), NULLIF($9, ''), $10, $11, $12)
ON CONFLICT (url) DO NOTHING`

// FindExistingItems maps already stored URLs to their item IDs.
func (s *Store) FindExistingItems(ctx context.Context, urls []string) (map[string]string, error) {
	out := make(map[string]string)
	if len(urls) == 0 {
		return out, nil
	}
	rows, err := s.pool.Query(ctx, selectExistingItemsSQL, urls)
	if err != nil {
		return nil, fmt.Errorf("find existing items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var url, id string
		if err := rows.Scan(&url, &id); err != nil {
			return nil, fmt.Errorf("scan existing item: %w", err)
		}
		out[url] = id
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("find existing items: %w", err)
	}
	return out, nil
}

// BulkInsertItems stores items in one transaction, skipping URLs that already exist.
// It returns how many rows were created.
func (s *Store) BulkInsertItems(ctx context.Context, items []radar.FetchedItem) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}
	created := 0
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		for _, item := range items {
			raw, err := json.Marshal(item.Raw)
			if err != nil {
				return fmt.Errorf("marshal raw for %s: %w", item.URL, err)
			}
			tag, err := tx.Exec(ctx, insertItemSQL,
				item.ID, item.RunID, string(item.Category), item.SourceID, item.Title, item.URL,
				item.PublishedAt, item.Snippet, string(item.ContentTypeHint), signalStrings(item.Signals),
				item.Score, raw,
			)
			if err != nil {
				return fmt.Errorf("insert item %s: %w", item.URL, err)
			}
			created += int(tag.RowsAffected())
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return created, nil
}

func signalStrings(signals []radar.Signal) []string {
	out := make([]string, len(signals))
	for i, sig := range signals {
		out[i] = string(sig)
	}
	return out
}
