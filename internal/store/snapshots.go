package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"printwatch/internal/fetch"
)

// ErrNoRuns is returned by LastRun when a user has no capture history.
var ErrNoRuns = errors.New("no capture runs recorded")

// SaveRun persists one capture run in a single transaction: the run row,
// an insert-if-absent identity row per item, one item snapshot per item,
// and one comment snapshot per fetched comment. If anything fails the
// transaction rolls back and no row of the run becomes visible.
//
// Items missing from threads are stored with an empty thread; the
// orchestrator guarantees one entry per item, so that only happens for
// degraded fetches.
func (s *Store) SaveRun(ctx context.Context, capturedAt time.Time, userURL string, items []fetch.Item, threads map[string]fetch.Thread) error {
	ts := capturedAt.UTC().UnixNano()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO capture_runs (captured_at, user_url) VALUES (?, ?)`,
		ts, userURL,
	); err != nil {
		return fmt.Errorf("insert capture run: %w", err)
	}

	for _, item := range items {
		// Identity rows keep their first-sighted name; later runs only
		// record the current name on the snapshot row.
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO items (url, name) VALUES (?, ?) ON CONFLICT(url) DO NOTHING`,
			item.URL, item.Name,
		); err != nil {
			return fmt.Errorf("upsert item %s: %w", item.URL, err)
		}

		th := threads[item.URL]
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO item_snapshots (captured_at, item_url, name, favourites, total_comments)
			 VALUES (?, ?, ?, ?, ?)`,
			ts, item.URL, item.Name, item.Favourites, th.TotalComments,
		); err != nil {
			return fmt.Errorf("insert item snapshot %s: %w", item.URL, err)
		}

		for _, c := range th.Comments {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO comment_snapshots (captured_at, item_url, comment_id, author, created_at, message_text)
				 VALUES (?, ?, ?, ?, ?, ?)`,
				ts, item.URL, c.ID, c.Author, c.CreatedAt.UTC().UnixNano(), c.MessageText,
			); err != nil {
				return fmt.Errorf("insert comment %s on %s: %w", c.ID, item.URL, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit capture run: %w", err)
	}
	return nil
}

// DeleteRun atomically removes every comment snapshot, item snapshot and
// run row sharing the given capture instant, and returns the exact
// per-entity counts. An unknown instant is a no-op with zero counts.
func (s *Store) DeleteRun(ctx context.Context, capturedAt time.Time) (DeleteCounts, error) {
	ts := capturedAt.UTC().UnixNano()
	var counts DeleteCounts

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return counts, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM comment_snapshots WHERE captured_at = ?`, ts)
	if err != nil {
		return counts, fmt.Errorf("delete comment snapshots: %w", err)
	}
	if counts.Comments, err = res.RowsAffected(); err != nil {
		return counts, err
	}

	res, err = tx.ExecContext(ctx, `DELETE FROM item_snapshots WHERE captured_at = ?`, ts)
	if err != nil {
		return counts, fmt.Errorf("delete item snapshots: %w", err)
	}
	if counts.Items, err = res.RowsAffected(); err != nil {
		return counts, err
	}

	res, err = tx.ExecContext(ctx, `DELETE FROM capture_runs WHERE captured_at = ?`, ts)
	if err != nil {
		return counts, fmt.Errorf("delete capture run: %w", err)
	}
	if counts.Runs, err = res.RowsAffected(); err != nil {
		return counts, err
	}

	if err := tx.Commit(); err != nil {
		return DeleteCounts{}, fmt.Errorf("commit delete: %w", err)
	}
	return counts, nil
}

// ListRuns returns all capture instants in ascending order, optionally
// filtered to one user. An empty userURL lists every user's runs.
func (s *Store) ListRuns(ctx context.Context, userURL string) ([]time.Time, error) {
	q := builder().
		Select("captured_at").
		From("capture_runs").
		OrderBy("captured_at ASC")
	if userURL != "" {
		q = q.Where(sq.Eq{"user_url": userURL})
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list runs query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []time.Time
	for rows.Next() {
		var ts int64
		if err := rows.Scan(&ts); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, time.Unix(0, ts).UTC())
	}
	return runs, rows.Err()
}

// LastRun returns the most recent capture instant for a user, or
// ErrNoRuns if the user has never been captured.
func (s *Store) LastRun(ctx context.Context, userURL string) (time.Time, error) {
	query, args, err := builder().
		Select("captured_at").
		From("capture_runs").
		Where(sq.Eq{"user_url": userURL}).
		OrderBy("captured_at DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return time.Time{}, fmt.Errorf("build last run query: %w", err)
	}

	var ts int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&ts); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, ErrNoRuns
		}
		return time.Time{}, fmt.Errorf("last run for %s: %w", userURL, err)
	}
	return time.Unix(0, ts).UTC(), nil
}

// LatestState returns the item snapshots of the user's most recent run,
// each paired with its identity row, ordered by snapshot name. The slice
// is empty when the user has no runs.
func (s *Store) LatestState(ctx context.Context, userURL string) ([]ItemState, error) {
	last, err := s.LastRun(ctx, userURL)
	if err != nil {
		if errors.Is(err, ErrNoRuns) {
			return nil, nil
		}
		return nil, err
	}

	query, args, err := builder().
		Select("i.url", "i.name", "s.name", "s.favourites", "s.total_comments").
		From("item_snapshots s").
		Join("items i ON i.url = s.item_url").
		Where(sq.Eq{"s.captured_at": last.UnixNano()}).
		OrderBy("s.name ASC", "s.item_url ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build latest state query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("latest state for %s: %w", userURL, err)
	}
	defer rows.Close()

	var states []ItemState
	for rows.Next() {
		st := ItemState{Snapshot: ItemSnapshot{CapturedAt: last}}
		if err := rows.Scan(
			&st.Item.URL, &st.Item.Name,
			&st.Snapshot.Name, &st.Snapshot.Favourites, &st.Snapshot.TotalComments,
		); err != nil {
			return nil, fmt.Errorf("scan item state: %w", err)
		}
		st.Snapshot.ItemURL = st.Item.URL
		states = append(states, st)
	}
	return states, rows.Err()
}
