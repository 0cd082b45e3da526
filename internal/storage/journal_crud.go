package storage

import (
	"context"
	"fmt"
)

// InsertJournalEntry stores one journal row.
func (p *PostgresClient) InsertJournalEntry(ctx context.Context, e JournalEntry) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO autopilot_journal (id, engagement_id, kind, course, heading, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, e.ID, e.EngagementID, string(e.Kind), e.Course, e.Heading, e.Detail, e.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to insert journal entry: %w", err)
	}
	return nil
}

// RecentJournalEntries returns the newest entries first.
func (p *PostgresClient) RecentJournalEntries(ctx context.Context, limit int) ([]JournalEntry, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, engagement_id, kind, course, heading, detail, created_at
		FROM autopilot_journal
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}
	defer rows.Close()

	var entries []JournalEntry
	for rows.Next() {
		var (
			e    JournalEntry
			kind string
		)
		if err := rows.Scan(&e.ID, &e.EngagementID, &kind, &e.Course, &e.Heading, &e.Detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan journal entry: %w", err)
		}
		e.Kind = EntryKind(kind)
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read journal: %w", err)
	}

	return entries, nil
}
