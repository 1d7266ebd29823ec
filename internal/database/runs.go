package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Run statuses.
const (
	StatusSuccess   = "success"
	StatusPartial   = "partial"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// IndexRun is one bootstrap or update of one server. Entries counts folders
// for film servers and lot paths for scan servers; Leaves counts film leaf
// paths (zero for film servers).
type IndexRun struct {
	ID               string    `json:"id"`
	Server           string    `json:"server"`
	Role             string    `json:"role"`
	Mode             string    `json:"mode"`
	Status           string    `json:"status"`
	StartedAt        time.Time `json:"startedAt"`
	FinishedAt       time.Time `json:"finishedAt"`
	DurationMs       int64     `json:"durationMs"`
	Entries          int       `json:"entries"`
	Leaves           int       `json:"leaves"`
	NewEntries       int64     `json:"newEntries"`
	NewLeaves        int64     `json:"newLeaves"`
	ListingFailures  int64     `json:"listingFailures"`
	MetadataFailures int64     `json:"metadataFailures"`
	Error            string    `json:"error,omitempty"`
}

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return uuid.NewString()
}

// RecordRun inserts a run. An empty ID is filled in.
func (d *Database) RecordRun(ctx context.Context, r IndexRun) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("record_run", start, err) }()

	if r.ID == "" {
		r.ID = NewRunID()
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = d.db.ExecContext(ctx, `
		INSERT INTO index_runs (
			id, server, role, mode, status, started_at, finished_at, duration_ms,
			entries, leaves, new_entries, new_leaves, listing_failures, metadata_failures, error
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Server, r.Role, r.Mode, r.Status,
		r.StartedAt.UnixMilli(), r.FinishedAt.UnixMilli(), r.DurationMs,
		r.Entries, r.Leaves, r.NewEntries, r.NewLeaves, r.ListingFailures, r.MetadataFailures, r.Error,
	)
	if err != nil {
		return fmt.Errorf("record run %s: %w", r.ID, err)
	}
	return nil
}

// RecentRuns returns the latest runs, newest first. An empty server returns
// runs for all servers.
func (d *Database) RecentRuns(ctx context.Context, server string, limit int) ([]IndexRun, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("recent_runs", start, err) }()

	if limit <= 0 || limit > 1000 {
		limit = 50
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	query := `
		SELECT id, server, role, mode, status, started_at, finished_at, duration_ms,
			entries, leaves, new_entries, new_leaves, listing_failures, metadata_failures, error
		FROM index_runs`
	args := []any{}
	if server != "" {
		query += ` WHERE server = ?`
		args = append(args, server)
	}
	query += ` ORDER BY started_at DESC, id LIMIT ?`
	args = append(args, limit)

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []IndexRun
	for rows.Next() {
		var r IndexRun
		var startedMs, finishedMs int64
		if err = rows.Scan(&r.ID, &r.Server, &r.Role, &r.Mode, &r.Status, &startedMs, &finishedMs, &r.DurationMs,
			&r.Entries, &r.Leaves, &r.NewEntries, &r.NewLeaves, &r.ListingFailures, &r.MetadataFailures, &r.Error); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.StartedAt = time.UnixMilli(startedMs)
		r.FinishedAt = time.UnixMilli(finishedMs)
		runs = append(runs, r)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// LastRun returns the most recent run for server with the given mode, or
// nil if there is none.
func (d *Database) LastRun(ctx context.Context, server, mode string) (*IndexRun, error) {
	runs, err := d.RecentRuns(ctx, server, 100)
	if err != nil {
		return nil, err
	}
	for i := range runs {
		if runs[i].Mode == mode {
			return &runs[i], nil
		}
	}
	return nil, nil
}
