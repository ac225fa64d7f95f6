package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"printwatch/internal/fetch"
)

// saveRunWithComments stores a run where each item carries the given
// comment IDs, so successive runs can share a history.
func saveRunWithComments(t *testing.T, s *Store, ts time.Time, user string, items map[string][]string) {
	t.Helper()
	var list []fetch.Item
	threads := make(map[string]fetch.Thread)
	for url, ids := range items {
		list = append(list, fetch.Item{URL: url, Name: "Item " + url})
		th := fetch.Thread{TotalComments: len(ids)}
		for _, id := range ids {
			th.Comments = append(th.Comments, fetch.Comment{ID: id, Author: "alice", MessageText: "hi", CreatedAt: ts})
		}
		threads[url] = th
	}
	require.NoError(t, s.SaveRun(context.Background(), ts, user, list, threads))
}

func ids(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = time.Duration(i).String()
	}
	return out
}

func TestResolveRunOnDate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	user := "https://example.com/user/u1"

	morning := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	evening := time.Date(2026, 8, 1, 21, 30, 0, 0, time.UTC)
	nextDay := time.Date(2026, 8, 2, 0, 0, 0, 1, time.UTC)
	saveSimpleRun(t, s, morning, user, map[string]int{"a": 0})
	saveSimpleRun(t, s, evening, user, map[string]int{"a": 0})
	saveSimpleRun(t, s, nextDay, user, map[string]int{"a": 0})

	got, err := s.ResolveRunOnDate(ctx, user, time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, got.Equal(evening), "the latest run on the date wins")

	// Any instant within the day resolves to the same run.
	got, err = s.ResolveRunOnDate(ctx, user, time.Date(2026, 8, 1, 23, 59, 59, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, got.Equal(evening))
}

func TestResolveRunOnDate_NoRunThatDay(t *testing.T) {
	s := newTestStore(t)
	user := "https://example.com/user/u1"
	saveSimpleRun(t, s, time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC), user, map[string]int{"a": 0})

	_, err := s.ResolveRunOnDate(context.Background(), user, time.Date(2026, 8, 2, 0, 0, 0, 0, time.UTC))
	var noRun *NoRunOnDateError
	require.ErrorAs(t, err, &noRun)
	assert.Equal(t, user, noRun.UserURL)
	assert.Equal(t, "2026-08-02", noRun.Date.Format("2006-01-02"))
}

func TestResolveRunOnDate_OtherUserIgnored(t *testing.T) {
	s := newTestStore(t)
	day := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	saveSimpleRun(t, s, day.Add(9*time.Hour), "https://example.com/user/other", map[string]int{"a": 0})

	_, err := s.ResolveRunOnDate(context.Background(), "https://example.com/user/u1", day)
	var noRun *NoRunOnDateError
	assert.ErrorAs(t, err, &noRun)
}

func TestNewActivity_CountDelta(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	user := "https://example.com/user/u1"

	day1 := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	day5 := day1.Add(4 * 24 * time.Hour)
	saveRunWithComments(t, s, day1, user, map[string][]string{
		"https://example.com/view/a": ids(2),
		"https://example.com/view/b": ids(3),
	})
	saveRunWithComments(t, s, day5, user, map[string][]string{
		"https://example.com/view/a": ids(2),
		"https://example.com/view/b": ids(7),
	})

	rows, err := s.NewActivity(ctx, day1, day5)
	require.NoError(t, err)
	require.Len(t, rows, 1, "items with no new comments are excluded")
	assert.Equal(t, ActivityRow{
		ItemURL:       "https://example.com/view/b",
		ItemName:      "Item https://example.com/view/b",
		NewComments:   4,
		CommentsAtEnd: 7,
	}, rows[0])
}

func TestNewActivity_NewItemStartsAtZero(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	user := "https://example.com/user/u1"

	start := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)
	saveRunWithComments(t, s, start, user, map[string][]string{
		"https://example.com/view/a": ids(1),
	})
	saveRunWithComments(t, s, end, user, map[string][]string{
		"https://example.com/view/a":   ids(1),
		"https://example.com/view/new": ids(2),
	})

	rows, err := s.NewActivity(ctx, start, end)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "https://example.com/view/new", rows[0].ItemURL)
	assert.Equal(t, 2, rows[0].NewComments)
	assert.Equal(t, 2, rows[0].CommentsAtEnd)
}

func TestNewActivity_NoNewComments(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	user := "https://example.com/user/u1"

	start := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)
	saveRunWithComments(t, s, start, user, map[string][]string{"a": ids(3)})
	saveRunWithComments(t, s, end, user, map[string][]string{"a": ids(3)})

	rows, err := s.NewActivity(ctx, start, end)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestNewActivity_OrderedByName(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	user := "https://example.com/user/u1"

	start := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)

	startItems := map[string][]string{"z": nil, "m": nil, "a": nil}
	endItems := map[string][]string{"z": ids(1), "m": ids(1), "a": ids(1)}
	saveRunWithComments(t, s, start, user, startItems)
	saveRunWithComments(t, s, end, user, endItems)

	rows, err := s.NewActivity(ctx, start, end)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Item a", rows[0].ItemName)
	assert.Equal(t, "Item m", rows[1].ItemName)
	assert.Equal(t, "Item z", rows[2].ItemName)
}
