package history

import (
	"database/sql"
	"fmt"
	"time"
)

// BeginRun inserts a new sync run and returns its id.
func (s *Store) BeginRun(markets string) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO sync_runs (started_at, markets) VALUES (?, ?)`,
		time.Now().Format(time.RFC3339), markets,
	)
	if err != nil {
		return 0, wrapSchemaErr(fmt.Errorf("failed to insert sync run: %w", err))
	}
	return res.LastInsertId()
}

// FinishRun records the final counters for a run.
func (s *Store) FinishRun(runID int64, extensions, downloads, deletes int) error {
	_, err := s.db.Exec(
		`UPDATE sync_runs
		 SET finished_at = ?, extension_count = ?, download_count = ?, delete_count = ?
		 WHERE id = ?`,
		time.Now().Format(time.RFC3339), extensions, downloads, deletes, runID,
	)
	if err != nil {
		return wrapSchemaErr(fmt.Errorf("failed to finish sync run %d: %w", runID, err))
	}
	return nil
}

// AddEvent records one per-extension outcome for a run.
func (s *Store) AddEvent(runID int64, extension, market, kind, detail string) error {
	_, err := s.db.Exec(
		`INSERT INTO sync_events (run_id, extension, market, kind, detail, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		runID, extension, market, kind, detail, time.Now().Format(time.RFC3339),
	)
	if err != nil {
		return wrapSchemaErr(fmt.Errorf("failed to insert sync event: %w", err))
	}
	return nil
}

// RecentRuns returns the most recent runs, newest first.
func (s *Store) RecentRuns(limit int) ([]*Run, error) {
	rows, err := s.db.Query(
		`SELECT id, started_at, finished_at, markets, extension_count, download_count, delete_count
		 FROM sync_runs ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, wrapSchemaErr(fmt.Errorf("failed to list sync runs: %w", err))
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		var r Run
		var started string
		var finished sql.NullString
		if err := rows.Scan(&r.ID, &started, &finished, &r.Markets,
			&r.ExtensionCount, &r.DownloadCount, &r.DeleteCount); err != nil {
			return nil, fmt.Errorf("failed to scan sync run: %w", err)
		}
		if r.StartedAt, err = time.Parse(time.RFC3339, started); err != nil {
			return nil, fmt.Errorf("failed to parse started_at: %w", err)
		}
		if finished.Valid {
			if r.FinishedAt, err = time.Parse(time.RFC3339, finished.String); err != nil {
				return nil, fmt.Errorf("failed to parse finished_at: %w", err)
			}
		}
		runs = append(runs, &r)
	}
	return runs, rows.Err()
}

// EventsForRun returns a run's events in insertion order.
func (s *Store) EventsForRun(runID int64) ([]*Event, error) {
	rows, err := s.db.Query(
		`SELECT id, run_id, extension, market, kind, detail, created_at
		 FROM sync_events WHERE run_id = ? ORDER BY id`, runID,
	)
	if err != nil {
		return nil, wrapSchemaErr(fmt.Errorf("failed to list sync events: %w", err))
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		var e Event
		var market, detail sql.NullString
		var created string
		if err := rows.Scan(&e.ID, &e.RunID, &e.Extension, &market, &e.Kind, &detail, &created); err != nil {
			return nil, fmt.Errorf("failed to scan sync event: %w", err)
		}
		e.Market = market.String
		e.Detail = detail.String
		if e.CreatedAt, err = time.Parse(time.RFC3339, created); err != nil {
			return nil, fmt.Errorf("failed to parse created_at: %w", err)
		}
		events = append(events, &e)
	}
	return events, rows.Err()
}
