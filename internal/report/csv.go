// Package report renders new-activity query results for the CLI.
package report

import (
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"

	"printwatch/internal/store"
)

// CSV renders activity rows as a CSV document with a fixed header. Item
// names containing commas or quotes are quoted per RFC 4180.
func CSV(rows []store.ActivityRow) (string, error) {
	var b strings.Builder
	w := csv.NewWriter(&b)

	if err := w.Write([]string{"item_url", "item_name", "num_new_comments", "comments_at_end"}); err != nil {
		return "", fmt.Errorf("write csv header: %w", err)
	}
	for _, row := range rows {
		record := []string{
			row.ItemURL,
			row.ItemName,
			strconv.Itoa(row.NewComments),
			strconv.Itoa(row.CommentsAtEnd),
		}
		if err := w.Write(record); err != nil {
			return "", fmt.Errorf("write csv row for %s: %w", row.ItemURL, err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("flush csv: %w", err)
	}
	return b.String(), nil
}
