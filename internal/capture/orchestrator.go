// Package capture drives the fetcher for one snapshot run: a single
// listing call followed by per-item thread fetches under a fixed
// concurrency cap.
package capture

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"printwatch/internal/fetch"
)

const (
	// DefaultConcurrency is the number of thread fetches allowed in
	// flight at once when no explicit cap is given.
	DefaultConcurrency = 6

	// DefaultThreadTimeout bounds a single thread fetch.
	DefaultThreadTimeout = 60 * time.Second
)

// Result is the complete output of one capture run. Threads holds
// exactly one entry per listed item, keyed by item URL; items whose
// thread fetch failed map to the empty Thread.
type Result struct {
	Items   []fetch.Item
	Threads map[string]fetch.Thread
}

// Orchestrator runs capture fetches. The concurrency cap and per-fetch
// timeout are fixed at construction so the component stays reentrant;
// they are never read from process-wide state.
type Orchestrator struct {
	fetcher       fetch.Fetcher
	concurrency   int
	threadTimeout time.Duration
	log           zerolog.Logger
}

// New creates an orchestrator. A concurrency below 1 falls back to
// DefaultConcurrency; a non-positive timeout falls back to
// DefaultThreadTimeout. Sequential fetching is concurrency = 1.
func New(f fetch.Fetcher, concurrency int, threadTimeout time.Duration, log zerolog.Logger) *Orchestrator {
	if concurrency < 1 {
		concurrency = DefaultConcurrency
	}
	if threadTimeout <= 0 {
		threadTimeout = DefaultThreadTimeout
	}
	return &Orchestrator{
		fetcher:       f,
		concurrency:   concurrency,
		threadTimeout: threadTimeout,
		log:           log,
	}
}

// Run performs one capture fetch for a user.
//
// The listing call is sequential and fatal on failure: the error
// propagates with the user URL attached and nothing else is fetched.
// An empty listing is treated the same way, so a half-rendered page
// never records a run that claims the user published nothing.
//
// Thread fetches then run concurrently, at most the configured cap in
// flight. A failed or timed-out thread fetch degrades to the empty
// Thread and is logged; it never aborts sibling fetches or the run.
func (o *Orchestrator) Run(ctx context.Context, userURL string) (*Result, error) {
	items, err := o.fetcher.ListItems(ctx, userURL)
	if err != nil {
		return nil, fmt.Errorf("list items for %s: %w", userURL, err)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("list items for %s: empty listing", userURL)
	}

	threads := make(map[string]fetch.Thread, len(items))
	var mu sync.Mutex

	g := new(errgroup.Group)
	g.SetLimit(o.concurrency)
	for _, item := range items {
		g.Go(func() error {
			th := o.fetchThread(ctx, item.URL)
			mu.Lock()
			threads[item.URL] = th
			mu.Unlock()
			return nil
		})
	}
	// Thread fetch failures degrade instead of erroring, so Wait only
	// synchronizes.
	_ = g.Wait()

	return &Result{Items: items, Threads: threads}, nil
}

func (o *Orchestrator) fetchThread(ctx context.Context, itemURL string) fetch.Thread {
	ctx, cancel := context.WithTimeout(ctx, o.threadTimeout)
	defer cancel()

	th, err := o.fetcher.FetchThread(ctx, itemURL)
	if err != nil {
		o.log.Warn().Str("item_url", itemURL).Err(err).Msg("thread fetch failed, recording empty thread")
		return fetch.Thread{}
	}
	return th
}
