// Package parser extracts book metadata from detail-page HTML. Extraction
// is a pure transformation of already-fetched bytes; no network calls
// happen here.
package parser

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"tululu-library/models"
)

// The site labels its plain-text download anchor with this title attribute.
const txtLinkTitle = "скачать книгу txt"

// ExtractionError reports a page that lacks structure extraction relies on.
type ExtractionError struct {
	URL    string
	Reason string
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s: %s", e.URL, e.Reason)
}

// Options tune extraction behavior.
type Options struct {
	// AllowMissingText keeps books that have no text-download link instead
	// of failing extraction; such books get an empty TextURL.
	AllowMissingText bool
}

// Extract parses a book detail page into a Book. URLs are resolved against
// pageURL rather than a fixed base because book pages are served from
// varying mirror hosts.
func Extract(html []byte, pageURL string, opts Options) (*models.Book, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, &ExtractionError{URL: pageURL, Reason: fmt.Sprintf("bad page url: %v", err)}
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, &ExtractionError{URL: pageURL, Reason: fmt.Sprintf("parse html: %v", err)}
	}

	heading := doc.Find("h1").First()
	if heading.Length() == 0 {
		return nil, &ExtractionError{URL: pageURL, Reason: "no heading"}
	}
	title, author, ok := splitHeading(heading.Text())
	if !ok {
		return nil, &ExtractionError{URL: pageURL, Reason: `heading has no "::" separator`}
	}

	book := &models.Book{
		Title:    title,
		Author:   author,
		PageURL:  pageURL,
		Genres:   []string{},
		Comments: []string{},
	}

	txtHref, found := findTextLink(doc)
	if !found && !opts.AllowMissingText {
		return nil, &ExtractionError{URL: pageURL, Reason: "no text download link"}
	}
	if found {
		book.TextURL = resolve(base, txtHref)
	}

	if src, ok := doc.Find(".d_book a img").First().Attr("src"); ok {
		book.ImageURL = resolve(base, src)
		segments := strings.Split(src, "/")
		book.ImageFilename = segments[len(segments)-1]
	}

	doc.Find(".texts .black").Each(func(_ int, s *goquery.Selection) {
		book.Comments = append(book.Comments, s.Text())
	})
	doc.Find("span.d_book a").Each(func(_ int, s *goquery.Selection) {
		book.Genres = append(book.Genres, s.Text())
	})

	return book, nil
}

func splitHeading(text string) (title, author string, ok bool) {
	parts := strings.SplitN(text, "::", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	title = strings.TrimSpace(parts[0])
	author = strings.TrimSpace(parts[1])
	if title == "" || author == "" {
		return "", "", false
	}
	return title, author, true
}

// findTextLink locates the plain-text download anchor: first by its title
// attribute, then by the legacy position inside the .d_book table (third
// anchor from the end).
func findTextLink(doc *goquery.Document) (string, bool) {
	var href string
	var found bool
	doc.Find("a[title]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		title, _ := s.Attr("title")
		if strings.Contains(strings.ToLower(title), txtLinkTitle) {
			href, found = s.Attr("href")
			return !found
		}
		return true
	})
	if found {
		return href, true
	}

	anchors := doc.Find(".d_book tr a")
	if anchors.Length() < 3 {
		return "", false
	}
	return anchors.Eq(anchors.Length() - 3).Attr("href")
}

func resolve(base *url.URL, ref string) string {
	parsed, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(parsed).String()
}
