package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// NoRunOnDateError is the distinguished outcome of resolving a report
// boundary for a calendar date on which the user has no capture run.
type NoRunOnDateError struct {
	UserURL string
	Date    time.Time
}

func (e *NoRunOnDateError) Error() string {
	return fmt.Sprintf("no snapshot for %s on %s", e.UserURL, e.Date.Format("2006-01-02"))
}

// ResolveRunOnDate returns the user's latest capture instant whose UTC
// calendar date equals day. If no run exists on that date it returns a
// *NoRunOnDateError.
func (s *Store) ResolveRunOnDate(ctx context.Context, userURL string, day time.Time) (time.Time, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)

	query, args, err := builder().
		Select("captured_at").
		From("capture_runs").
		Where(sq.Eq{"user_url": userURL}).
		Where(sq.GtOrEq{"captured_at": start.UnixNano()}).
		Where(sq.Lt{"captured_at": end.UnixNano()}).
		OrderBy("captured_at DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return time.Time{}, fmt.Errorf("build resolve run query: %w", err)
	}

	var ts int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&ts); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, &NoRunOnDateError{UserURL: userURL, Date: start}
		}
		return time.Time{}, fmt.Errorf("resolve run for %s on %s: %w", userURL, start.Format("2006-01-02"), err)
	}
	return time.Unix(0, ts).UTC(), nil
}

// NewActivity compares comment-snapshot counts between two capture
// instants and returns one row per end-run item whose count grew,
// ordered by item name ascending (item URL breaks name ties).
//
// The delta is a raw count difference, not an identity-based set
// difference: comments removed or edited between the two instants can
// make it under- or over-state genuinely new comments. Items absent from
// the start run count from zero.
func (s *Store) NewActivity(ctx context.Context, startRun, endRun time.Time) ([]ActivityRow, error) {
	startTS := startRun.UTC().UnixNano()
	endTS := endRun.UTC().UnixNano()

	countAt := `(SELECT COUNT(*) FROM comment_snapshots c
		WHERE c.captured_at = ? AND c.item_url = s.item_url)`

	query, args, err := builder().
		Select("s.item_url", "s.name").
		Column(sq.Alias(sq.Expr(countAt, startTS), "start_count")).
		Column(sq.Alias(sq.Expr(countAt, endTS), "end_count")).
		From("item_snapshots s").
		Where(sq.Eq{"s.captured_at": endTS}).
		OrderBy("s.name ASC", "s.item_url ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build activity query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query new activity: %w", err)
	}
	defer rows.Close()

	var report []ActivityRow
	for rows.Next() {
		var (
			url, name            string
			startCount, endCount int
		)
		if err := rows.Scan(&url, &name, &startCount, &endCount); err != nil {
			return nil, fmt.Errorf("scan activity row: %w", err)
		}
		if delta := endCount - startCount; delta > 0 {
			report = append(report, ActivityRow{
				ItemURL:       url,
				ItemName:      name,
				NewComments:   delta,
				CommentsAtEnd: endCount,
			})
		}
	}
	return report, rows.Err()
}
