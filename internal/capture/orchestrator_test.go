package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"printwatch/internal/fetch"
)

// fakeFetcher is a scriptable fetch.Fetcher for orchestrator tests.
type fakeFetcher struct {
	items   []fetch.Item
	listErr error

	mu         sync.Mutex
	threads    map[string]fetch.Thread
	threadErrs map[string]error
	delay      time.Duration

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
	fetched     []string
}

func (f *fakeFetcher) ListItems(ctx context.Context, userURL string) ([]fetch.Item, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.items, nil
}

func (f *fakeFetcher) FetchThread(ctx context.Context, itemURL string) (fetch.Thread, error) {
	n := f.inFlight.Add(1)
	for {
		max := f.maxInFlight.Load()
		if n <= max || f.maxInFlight.CompareAndSwap(max, n) {
			break
		}
	}
	defer f.inFlight.Add(-1)

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return fetch.Thread{}, ctx.Err()
		}
	}

	f.mu.Lock()
	f.fetched = append(f.fetched, itemURL)
	f.mu.Unlock()

	if err := f.threadErrs[itemURL]; err != nil {
		return fetch.Thread{}, err
	}
	return f.threads[itemURL], nil
}

func someItems(n int) []fetch.Item {
	items := make([]fetch.Item, n)
	for i := range items {
		items[i] = fetch.Item{
			URL:        fmt.Sprintf("https://example.com/view/bp-%d", i),
			Name:       fmt.Sprintf("Blueprint %d", i),
			Favourites: i,
		}
	}
	return items
}

func TestRun_ListingFailureIsFatal(t *testing.T) {
	boom := errors.New("navigation timeout")
	f := &fakeFetcher{listErr: boom}
	o := New(f, 2, time.Second, zerolog.Nop())

	res, err := o.Run(context.Background(), "https://example.com/user/abc")
	require.Error(t, err)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, boom)
	// The user URL must survive for retry context.
	assert.Contains(t, err.Error(), "https://example.com/user/abc")
	assert.Empty(t, f.fetched, "no thread fetch should run after a listing failure")
}

func TestRun_EmptyListingIsFatal(t *testing.T) {
	f := &fakeFetcher{items: nil}
	o := New(f, 2, time.Second, zerolog.Nop())

	_, err := o.Run(context.Background(), "https://example.com/user/abc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty listing")
}

func TestRun_OneThreadPerItem(t *testing.T) {
	items := someItems(4)
	f := &fakeFetcher{
		items: items,
		threads: map[string]fetch.Thread{
			items[0].URL: {TotalComments: 3, Comments: []fetch.Comment{{ID: "1"}, {ID: "2"}, {ID: "3"}}},
			items[2].URL: {TotalComments: 1, Comments: []fetch.Comment{{ID: "9"}}},
		},
	}
	o := New(f, 3, time.Second, zerolog.Nop())

	res, err := o.Run(context.Background(), "https://example.com/user/abc")
	require.NoError(t, err)
	require.Len(t, res.Threads, len(items), "result must hold exactly one thread entry per listed item")
	for _, item := range items {
		_, ok := res.Threads[item.URL]
		assert.True(t, ok, "missing thread entry for %s", item.URL)
	}
	assert.Equal(t, 3, res.Threads[items[0].URL].TotalComments)
	assert.Equal(t, 0, res.Threads[items[1].URL].TotalComments)
}

func TestRun_ThreadFailureDegradesToEmpty(t *testing.T) {
	items := someItems(3)
	f := &fakeFetcher{
		items: items,
		threads: map[string]fetch.Thread{
			items[0].URL: {TotalComments: 2, Comments: []fetch.Comment{{ID: "a"}, {ID: "b"}}},
			items[2].URL: {TotalComments: 5, Comments: []fetch.Comment{{ID: "c"}}},
		},
		threadErrs: map[string]error{
			items[1].URL: errors.New("disqus iframe not found"),
		},
	}
	o := New(f, 2, time.Second, zerolog.Nop())

	res, err := o.Run(context.Background(), "https://example.com/user/abc")
	require.NoError(t, err, "a single failed thread must not abort the run")

	degraded := res.Threads[items[1].URL]
	assert.Equal(t, 0, degraded.TotalComments)
	assert.Empty(t, degraded.Comments)

	// Siblings are unaffected.
	assert.Equal(t, 2, res.Threads[items[0].URL].TotalComments)
	assert.Equal(t, 5, res.Threads[items[2].URL].TotalComments)
}

func TestRun_ThreadTimeoutDegradesToEmpty(t *testing.T) {
	items := someItems(2)
	f := &fakeFetcher{
		items: items,
		delay: 200 * time.Millisecond,
		threads: map[string]fetch.Thread{
			items[0].URL: {TotalComments: 1},
			items[1].URL: {TotalComments: 1},
		},
	}
	// Per-fetch timeout well below the fake's delay.
	o := New(f, 2, 20*time.Millisecond, zerolog.Nop())

	res, err := o.Run(context.Background(), "https://example.com/user/abc")
	require.NoError(t, err)
	for _, item := range items {
		assert.Equal(t, fetch.Thread{}, res.Threads[item.URL])
	}
}

func TestRun_BoundedConcurrency(t *testing.T) {
	const (
		limit     = 2
		itemCount = 5
		perFetch  = 100 * time.Millisecond
	)
	f := &fakeFetcher{items: someItems(itemCount), delay: perFetch}
	o := New(f, limit, time.Minute, zerolog.Nop())

	start := time.Now()
	res, err := o.Run(context.Background(), "https://example.com/user/abc")
	elapsed := time.Since(start)

	require.NoError(t, err)
	require.Len(t, res.Threads, itemCount)

	assert.LessOrEqual(t, f.maxInFlight.Load(), int32(limit), "fetches in flight must never exceed the limit")

	// ceil(5/2) slots of fixed-duration work: at least 3 batches, and
	// strictly faster than fully sequential.
	assert.GreaterOrEqual(t, elapsed, 3*perFetch)
	assert.Less(t, elapsed, time.Duration(itemCount)*perFetch)
}

func TestNew_Defaults(t *testing.T) {
	o := New(&fakeFetcher{}, 0, 0, zerolog.Nop())
	assert.Equal(t, DefaultConcurrency, o.concurrency)
	assert.Equal(t, DefaultThreadTimeout, o.threadTimeout)
}
