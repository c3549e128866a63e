// Package catalog walks paginated category listings and yields book
// detail-page links.
package catalog

import (
	"bytes"
	"context"
	"fmt"
	"iter"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"tululu-library/config"
	"tululu-library/fetch"
)

// RangeError reports a page range that is empty after clamping to the
// category's real page count. It is fatal to a run.
type RangeError struct {
	Start      int
	End        int
	TotalPages int
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("bad page range: start=%d end=%d (category has %d pages)", e.Start, e.End, e.TotalPages)
}

// Walker produces book links from one category listing.
type Walker struct {
	fetcher *fetch.Fetcher
	root    *url.URL
	include bool
}

// NewWalker builds a walker over cfg.CategoryURL.
func NewWalker(fetcher *fetch.Fetcher, cfg *config.Config) (*Walker, error) {
	root, err := url.Parse(cfg.CategoryURL)
	if err != nil {
		return nil, fmt.Errorf("parse category url: %w", err)
	}
	return &Walker{fetcher: fetcher, root: root, include: cfg.IncludeEndPage}, nil
}

// TotalPages fetches the category root once and reads the highest page
// number shown in its pagination control.
func (w *Walker) TotalPages(ctx context.Context) (int, error) {
	body, err := w.fetcher.FetchPage(ctx, w.root.String())
	if err != nil {
		return 0, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("parse category page: %w", err)
	}

	pages := doc.Find(".npage")
	if pages.Length() == 0 {
		return 0, fmt.Errorf("category page has no pagination control")
	}
	last := strings.TrimSpace(pages.Last().Text())
	total, err := strconv.Atoi(last)
	if err != nil {
		return 0, fmt.Errorf("pagination control %q is not a number: %w", last, err)
	}
	return total, nil
}

// ResolveRange clamps the requested range to the category's page count and
// returns the half-open interval [first, stop) of pages to visit. The end
// page itself is excluded unless the walker was configured inclusive. A
// range that is empty after clamping is a RangeError, reported here rather
// than mid-iteration.
func (w *Walker) ResolveRange(ctx context.Context, start, end int) (first, stop int, err error) {
	total, err := w.TotalPages(ctx)
	if err != nil {
		return 0, 0, err
	}

	if end > total {
		end = total
	}
	if end < start {
		return 0, 0, &RangeError{Start: start, End: end, TotalPages: total}
	}

	stop = end
	if w.include {
		stop = end + 1
	}
	return start, stop, nil
}

// Links lazily yields book links from pages [first, stop), in page order
// then in-page document order. Each pull may perform network I/O; a
// failing category page yields one error and the walk moves on to the next
// page. The sequence is finite and cannot be rewound without re-issuing
// requests. Duplicate links across pages are not filtered.
func (w *Walker) Links(ctx context.Context, first, stop int) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for page := first; page < stop; page++ {
			links, err := w.pageLinks(ctx, page)
			if err != nil {
				if !yield("", fmt.Errorf("category page %d: %w", page, err)) {
					return
				}
				continue
			}
			for _, link := range links {
				if !yield(link, nil) {
					return
				}
			}
		}
	}
}

func (w *Walker) pageLinks(ctx context.Context, page int) ([]string, error) {
	pageURL := w.root.ResolveReference(&url.URL{Path: strconv.Itoa(page)}).String()
	body, err := w.fetcher.FetchPage(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	var links []string
	doc.Find("table.d_book div.bookimage a").Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		// Hrefs resolve against the category root, not the listing page.
		links = append(links, w.root.ResolveReference(ref).String())
	})
	return links, nil
}
