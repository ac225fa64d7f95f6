// Package scraper extracts content listings and Disqus comment threads
// from FactorioPrints pages with a headless Chrome browser.
package scraper

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog"

	"printwatch/internal/fetch"
)

const (
	// scrollPause is how long lazy-load scripts get to run after each
	// scroll step on the user page.
	scrollPause = 800 * time.Millisecond

	// maxIdleRounds is how many consecutive scrolls with a stable card
	// count mean the listing is fully loaded.
	maxIdleRounds = 3
)

// Scraper fetches pages with chromedp. It implements fetch.Fetcher.
type Scraper struct {
	headless    bool
	pageTimeout time.Duration
	log         zerolog.Logger
}

// New creates a new scraper. pageTimeout bounds each page visit.
func New(headless bool, pageTimeout time.Duration, log zerolog.Logger) *Scraper {
	if pageTimeout <= 0 {
		pageTimeout = time.Minute
	}
	return &Scraper{headless: headless, pageTimeout: pageTimeout, log: log}
}

// newPage creates a browser context bounded by the page timeout. The
// returned cancel releases the browser.
func (s *Scraper) newPage(ctx context.Context) (context.Context, context.CancelFunc) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, browserOptions(s.headless)...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	browserCtx, timeoutCancel := context.WithTimeout(browserCtx, s.pageTimeout)

	cancel := func() {
		timeoutCancel()
		browserCancel()
		allocCancel()
	}
	return browserCtx, cancel
}

// rawCard is the data extracted from one listing card via JavaScript.
type rawCard struct {
	Href       string `json:"href"`
	Name       string `json:"name"`
	Favourites string `json:"favourites"`
}

// ListItems loads the user page, scrolls until the lazy-loaded listing
// stops growing, and returns every content card found.
func (s *Scraper) ListItems(ctx context.Context, userURL string) ([]fetch.Item, error) {
	pageCtx, cancel := s.newPage(ctx)
	defer cancel()

	if err := chromedp.Run(pageCtx,
		chromedp.Navigate(userURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return nil, fmt.Errorf("failed to load user page %s: %w", userURL, err)
	}

	if err := s.scrollUntilLoaded(pageCtx); err != nil {
		return nil, fmt.Errorf("failed to scroll user page %s: %w", userURL, err)
	}

	var cards []rawCard
	// The card link holds the relative /view/<id> URL, the name lives in
	// p > a > span, and favourites is the first token of the <p> text.
	extractJS := `
		(function() {
			const results = [];
			document.querySelectorAll('` + ItemCard + `').forEach(card => {
				const anchor = card.querySelector('a');
				const nameEl = card.querySelector('p a span');
				const p = card.querySelector('p');
				results.push({
					href: anchor?.getAttribute('href') || '',
					name: nameEl?.textContent?.trim() || '',
					favourites: p?.innerText?.trim()?.split(' ')[0] || '0',
				});
			});
			return results;
		})()
	`
	if err := chromedp.Run(pageCtx, chromedp.Evaluate(extractJS, &cards)); err != nil {
		return nil, fmt.Errorf("failed to extract listing from %s: %w", userURL, err)
	}

	base, err := url.Parse(userURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse user URL %s: %w", userURL, err)
	}

	items := make([]fetch.Item, 0, len(cards))
	for _, c := range cards {
		if c.Href == "" {
			continue
		}
		ref, err := url.Parse(c.Href)
		if err != nil {
			s.log.Warn().Str("href", c.Href).Msg("skipping card with unparseable link")
			continue
		}
		favourites, err := strconv.Atoi(strings.TrimSpace(c.Favourites))
		if err != nil {
			favourites = 0
		}
		items = append(items, fetch.Item{
			URL:        base.ResolveReference(ref).String(),
			Name:       c.Name,
			Favourites: favourites,
		})
	}

	s.log.Debug().Str("user_url", userURL).Int("items", len(items)).Msg("listing extracted")
	return items, nil
}

// scrollUntilLoaded scrolls a viewport height at a time until the card
// count stays stable for maxIdleRounds consecutive rounds. Works even
// when the site keeps a websocket open, so waiting for network idle
// would hang forever.
func (s *Scraper) scrollUntilLoaded(ctx context.Context) error {
	lastCount := 0
	idleRounds := 0

	for {
		if err := chromedp.Run(ctx,
			chromedp.Evaluate(`window.scrollBy(0, window.innerHeight)`, nil),
		); err != nil {
			return err
		}

		select {
		case <-time.After(scrollPause):
		case <-ctx.Done():
			return ctx.Err()
		}

		var count int
		if err := chromedp.Run(ctx,
			chromedp.Evaluate(`document.querySelectorAll('`+ItemCard+`').length`, &count),
		); err != nil {
			return err
		}

		if count == lastCount {
			idleRounds++
			if idleRounds >= maxIdleRounds {
				return nil
			}
		} else {
			idleRounds = 0
			lastCount = count
		}
	}
}
