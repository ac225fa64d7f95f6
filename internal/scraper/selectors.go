package scraper

// FactorioPrints DOM selectors
// These are isolated here because the site can change its DOM
// Update these when scraping breaks

const (
	// User page selectors
	ItemCard     = `.blueprint-thumbnail`
	ItemCardLink = `a[href^='/view/']`

	// Comment thread selectors
	DisqusIframe     = `iframe[src*='disqus.com']`
	DisqusThreadData = `#disqus-threadData`
)
