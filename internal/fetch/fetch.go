// Package fetch defines the boundary between the capture engine and the
// remote site. Implementations live elsewhere (internal/scraper); the
// capture orchestrator and the snapshot store only ever see these types.
package fetch

import (
	"context"
	"time"
)

// Item is one piece of published content as it appears in the creator's
// listing. The URL is the item's canonical identity.
type Item struct {
	URL        string `json:"url"`
	Name       string `json:"name"`
	Favourites int    `json:"favourites"`
}

// Comment is a single post in an item's discussion thread.
type Comment struct {
	ID          string    `json:"id"`
	Author      string    `json:"author"`
	ParentID    *string   `json:"parent_id"` // nil for top-level comments
	CreatedAt   time.Time `json:"created_at"`
	MessageHTML string    `json:"message_html"`
	MessageText string    `json:"message_text"`
	Likes       int       `json:"likes"`
	Dislikes    int       `json:"dislikes"`
	Depth       int       `json:"depth"`
}

// Thread is the discussion attached to one item. The zero value is the
// defined empty result a failed thread fetch degrades to.
type Thread struct {
	TotalComments int       `json:"total_comments"`
	Comments      []Comment `json:"comments"`
}

// Fetcher retrieves a creator's content from the remote site.
//
// ListItems returns the creator's current items in listing order; any
// failure (network, navigation, page parse) is returned as an error.
//
// FetchThread returns the discussion thread for one item. Errors from
// FetchThread are advisory: the caller is expected to log the cause and
// substitute the empty Thread rather than abort.
type Fetcher interface {
	ListItems(ctx context.Context, userURL string) ([]Item, error)
	FetchThread(ctx context.Context, itemURL string) (Thread, error)
}
