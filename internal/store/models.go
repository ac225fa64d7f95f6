package store

import "time"

// ContentItem is the identity row for one piece of published content,
// shared across runs. The name is the one observed when the item was
// first sighted; later captures do not overwrite it.
type ContentItem struct {
	URL  string `json:"url"`
	Name string `json:"name"`
}

// ItemSnapshot is the observed state of one item at one capture instant.
type ItemSnapshot struct {
	CapturedAt    time.Time `json:"captured_at"`
	ItemURL       string    `json:"item_url"`
	Name          string    `json:"name"` // name at capture time
	Favourites    int       `json:"favourites"`
	TotalComments int       `json:"total_comments"`
}

// ItemState pairs an item snapshot with its owning identity row, as
// returned by LatestState.
type ItemState struct {
	Item     ContentItem  `json:"item"`
	Snapshot ItemSnapshot `json:"snapshot"`
}

// ActivityRow is one line of the new-activity report: an item from the
// end run whose comment count grew between the two instants.
type ActivityRow struct {
	ItemURL       string `json:"item_url"`
	ItemName      string `json:"item_name"`
	NewComments   int    `json:"num_new_comments"`
	CommentsAtEnd int    `json:"comments_at_end"`
}

// DeleteCounts reports exactly how many rows a DeleteRun removed per
// entity.
type DeleteCounts struct {
	Comments int64 `json:"comments_deleted"`
	Items    int64 `json:"items_deleted"`
	Runs     int64 `json:"runs_deleted"`
}
