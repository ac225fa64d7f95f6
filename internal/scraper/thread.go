package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"

	"printwatch/internal/fetch"
)

const (
	// iframeScrollTimeout bounds scrolling for the lazily injected
	// Disqus iframe on pages that never embed one.
	iframeScrollTimeout = 30 * time.Second

	// iframeScrollPause lets the embed script fire between scroll steps.
	iframeScrollPause = 300 * time.Millisecond

	// createdAtLayout is the naive-UTC format Disqus uses for post dates.
	createdAtLayout = "2006-01-02T15:04:05"
)

// FetchThread loads an item page, scrolls until the Disqus iframe is
// injected, and reads the thread data blob embedded inside it. A page
// with no Disqus embed yields an empty thread, not an error.
func (s *Scraper) FetchThread(ctx context.Context, itemURL string) (fetch.Thread, error) {
	pageCtx, cancel := s.newPage(ctx)
	defer cancel()

	if err := chromedp.Run(pageCtx,
		chromedp.Navigate(itemURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return fetch.Thread{}, fmt.Errorf("failed to load item page %s: %w", itemURL, err)
	}

	found, err := s.scrollUntilIframe(pageCtx)
	if err != nil {
		return fetch.Thread{}, fmt.Errorf("failed while scrolling %s: %w", itemURL, err)
	}
	if !found {
		s.log.Debug().Str("item_url", itemURL).Msg("no comment iframe on page")
		return fetch.Thread{}, nil
	}

	info, err := s.findDisqusTarget(pageCtx)
	if err != nil {
		return fetch.Thread{}, fmt.Errorf("failed to locate comment iframe for %s: %w", itemURL, err)
	}

	iframeCtx, iframeCancel := chromedp.NewContext(pageCtx, chromedp.WithTargetID(info.TargetID))
	defer iframeCancel()

	var raw string
	if err := chromedp.Run(iframeCtx,
		chromedp.WaitReady(DisqusThreadData, chromedp.ByQuery),
		chromedp.Text(DisqusThreadData, &raw, chromedp.ByQuery),
	); err != nil {
		return fetch.Thread{}, fmt.Errorf("failed to read thread data for %s: %w", itemURL, err)
	}

	th, err := parseThreadBlob(raw)
	if err != nil {
		return fetch.Thread{}, fmt.Errorf("failed to parse thread data for %s: %w", itemURL, err)
	}
	return th, nil
}

// scrollUntilIframe scrolls half a viewport at a time until the Disqus
// iframe appears in the DOM. Returns false if it never does.
func (s *Scraper) scrollUntilIframe(ctx context.Context) (bool, error) {
	deadline := time.Now().Add(iframeScrollTimeout)

	for time.Now().Before(deadline) {
		var present bool
		if err := chromedp.Run(ctx,
			chromedp.Evaluate(`document.querySelector("`+DisqusIframe+`") !== null`, &present),
		); err != nil {
			return false, err
		}
		if present {
			return true, nil
		}

		if err := chromedp.Run(ctx,
			chromedp.Evaluate(`window.scrollBy(0, window.innerHeight / 2)`, nil),
		); err != nil {
			return false, err
		}

		select {
		case <-time.After(iframeScrollPause):
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
	return false, nil
}

// findDisqusTarget polls the browser's target list for the Disqus
// iframe. The iframe element lands in the DOM slightly before its
// target is attachable, so a short retry loop is needed.
func (s *Scraper) findDisqusTarget(ctx context.Context) (*target.Info, error) {
	deadline := time.Now().Add(5 * time.Second)

	for {
		infos, err := chromedp.Targets(ctx)
		if err != nil {
			return nil, err
		}
		for _, info := range infos {
			if info.Type == "iframe" && strings.Contains(info.URL, "disqus.com") {
				return info, nil
			}
		}

		if time.Now().After(deadline) {
			return nil, fmt.Errorf("no disqus iframe target")
		}
		select {
		case <-time.After(200 * time.Millisecond):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// threadDataRE peels the JS assignment wrapper off the blob. The node
// can hold either bare JSON or "var threadData = {...};".
var threadDataRE = regexp.MustCompile(`(?s)=\s*(\{.*\})\s*;?\s*$`)

// flexID is a Disqus identifier that arrives as either a JSON string or
// a JSON number. Numbers are kept verbatim so large IDs survive intact.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	if string(b) == "null" {
		*f = ""
		return nil
	}
	*f = flexID(b)
	return nil
}

type disqusAuthor struct {
	Username string `json:"username"`
	Name     string `json:"name"`
	ID       flexID `json:"id"`
}

type disqusPost struct {
	ID        flexID       `json:"id"`
	Author    disqusAuthor `json:"author"`
	Parent    *flexID      `json:"parent"`
	CreatedAt string       `json:"createdAt"`
	Message   string       `json:"message"`
	Likes     int          `json:"likes"`
	Dislikes  int          `json:"dislikes"`
	Depth     int          `json:"depth"`
}

type threadBlob struct {
	Cursor struct {
		Total int `json:"total"`
	} `json:"cursor"`
	Response struct {
		Posts []disqusPost `json:"posts"`
	} `json:"response"`
}

// parseThreadBlob decodes the raw text of the thread data node.
// Malformed posts are skipped rather than failing the whole thread.
func parseThreadBlob(raw string) (fetch.Thread, error) {
	blob := strings.TrimSpace(raw)
	if m := threadDataRE.FindStringSubmatch(blob); m != nil {
		blob = m[1]
	}
	// The blob sometimes carries literal backslash-n sequences.
	blob = strings.ReplaceAll(blob, `\n`, " ")

	var data threadBlob
	if err := json.Unmarshal([]byte(blob), &data); err != nil {
		return fetch.Thread{}, fmt.Errorf("decode thread blob: %w", err)
	}

	th := fetch.Thread{TotalComments: data.Cursor.Total}
	for _, post := range data.Response.Posts {
		c, ok := normalizePost(post)
		if !ok {
			continue
		}
		th.Comments = append(th.Comments, c)
	}
	return th, nil
}

// normalizePost converts a Disqus post into a comment. Posts without an
// ID are reported as not ok.
func normalizePost(post disqusPost) (fetch.Comment, bool) {
	if post.ID == "" {
		return fetch.Comment{}, false
	}

	// Disqus may give only a display name, or an empty author object for
	// deleted users.
	author := post.Author.Username
	if author == "" {
		author = post.Author.Name
	}
	if author == "" && post.Author.ID != "" {
		author = "user_" + string(post.Author.ID)
	}
	if author == "" {
		author = "unknown"
	}

	createdAt := time.Now().UTC()
	if post.CreatedAt != "" {
		if parsed, err := time.Parse(createdAtLayout, post.CreatedAt); err == nil {
			createdAt = parsed.UTC()
		}
	}

	var parentID *string
	if post.Parent != nil && *post.Parent != "" {
		id := string(*post.Parent)
		parentID = &id
	}

	return fetch.Comment{
		ID:          string(post.ID),
		Author:      author,
		ParentID:    parentID,
		CreatedAt:   createdAt,
		MessageHTML: post.Message,
		MessageText: htmlToText(post.Message),
		Likes:       post.Likes,
		Dislikes:    post.Dislikes,
		Depth:       post.Depth,
	}, true
}

// htmlToText strips markup from a comment body, joining text nodes with
// single spaces.
func htmlToText(s string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.Join(strings.Fields(s), " ")
	}

	var b strings.Builder
	var walk func(sel *goquery.Selection)
	walk = func(sel *goquery.Selection) {
		sel.Contents().Each(func(_ int, c *goquery.Selection) {
			if goquery.NodeName(c) == "#text" {
				b.WriteString(c.Text())
				b.WriteByte(' ')
			} else {
				walk(c)
			}
		})
	}
	walk(doc.Selection)

	return strings.Join(strings.Fields(b.String()), " ")
}
