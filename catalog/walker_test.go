package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/jarcoal/httpmock"

	"tululu-library/config"
	"tululu-library/fetch"
)

const categoryRoot = "http://books.example/l55/"

func newTestWalker(t *testing.T, include bool) (*Walker, *httpmock.MockTransport) {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.CategoryURL = categoryRoot
	cfg.IncludeEndPage = include
	cfg.PageCacheSize = 0

	fetcher, err := fetch.New(cfg)
	if err != nil {
		t.Fatalf("new fetcher: %v", err)
	}
	transport := httpmock.NewMockTransport()
	fetcher.SetTransport(transport)

	w, err := NewWalker(fetcher, cfg)
	if err != nil {
		t.Fatalf("new walker: %v", err)
	}
	return w, transport
}

func buildCategoryPage(totalPages int, hrefs ...string) string {
	var b strings.Builder
	b.WriteString(`<html><body><table class="d_book">`)
	for _, href := range hrefs {
		fmt.Fprintf(&b, `<tr><td><div class="bookimage"><a href="%s"><img src="/shots/x.jpg"></a></div></td></tr>`, href)
	}
	b.WriteString("</table>")
	for i := 1; i <= totalPages; i++ {
		fmt.Fprintf(&b, `<a class="npage" href="/l55/%d">%d</a>`, i, i)
	}
	b.WriteString("</body></html>")
	return b.String()
}

func htmlResponder(body string) httpmock.Responder {
	resp := httpmock.NewStringResponse(200, body)
	resp.Header.Set("Content-Type", "text/html")
	return httpmock.ResponderFromResponse(resp)
}

func collect(t *testing.T, w *Walker, first, stop int) (links []string, errs []error) {
	t.Helper()
	for link, err := range w.Links(context.Background(), first, stop) {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		links = append(links, link)
	}
	return links, errs
}

func TestTotalPages(t *testing.T) {
	w, transport := newTestWalker(t, false)
	transport.RegisterResponder("GET", categoryRoot, htmlResponder(buildCategoryPage(5)))

	total, err := w.TotalPages(context.Background())
	if err != nil {
		t.Fatalf("total pages: %v", err)
	}
	if total != 5 {
		t.Fatalf("total = %d, want 5", total)
	}
}

func TestTotalPagesWithoutPagination(t *testing.T) {
	w, transport := newTestWalker(t, false)
	transport.RegisterResponder("GET", categoryRoot, htmlResponder("<html><body></body></html>"))

	if _, err := w.TotalPages(context.Background()); err == nil {
		t.Fatalf("expected error for missing pagination control")
	}
}

func TestResolveRangeClampsEnd(t *testing.T) {
	w, transport := newTestWalker(t, false)
	transport.RegisterResponder("GET", categoryRoot, htmlResponder(buildCategoryPage(3)))

	first, stop, err := w.ResolveRange(context.Background(), 1, 10)
	if err != nil {
		t.Fatalf("resolve range: %v", err)
	}
	if first != 1 || stop != 3 {
		t.Fatalf("range = [%d, %d), want [1, 3)", first, stop)
	}
}

func TestResolveRangeError(t *testing.T) {
	w, transport := newTestWalker(t, false)
	transport.RegisterResponder("GET", categoryRoot, htmlResponder(buildCategoryPage(3)))

	_, _, err := w.ResolveRange(context.Background(), 5, 9)
	var rangeErr *RangeError
	if !errors.As(err, &rangeErr) {
		t.Fatalf("error = %v, want RangeError", err)
	}
	if rangeErr.Start != 5 || rangeErr.End != 3 || rangeErr.TotalPages != 3 {
		t.Fatalf("range error = %+v", rangeErr)
	}
}

func TestResolveRangeInclusive(t *testing.T) {
	w, transport := newTestWalker(t, true)
	transport.RegisterResponder("GET", categoryRoot, htmlResponder(buildCategoryPage(3)))

	first, stop, err := w.ResolveRange(context.Background(), 1, 2)
	if err != nil {
		t.Fatalf("resolve range: %v", err)
	}
	if first != 1 || stop != 3 {
		t.Fatalf("range = [%d, %d), want [1, 3)", first, stop)
	}
}

func TestLinksOrderAndBoundary(t *testing.T) {
	w, transport := newTestWalker(t, false)
	transport.RegisterResponder("GET", categoryRoot, htmlResponder(buildCategoryPage(3)))
	transport.RegisterResponder("GET", categoryRoot+"1", htmlResponder(buildCategoryPage(3, "/b1/", "/b2/")))
	transport.RegisterResponder("GET", categoryRoot+"2", htmlResponder(buildCategoryPage(3, "/b3/", "/b4/")))

	first, stop, err := w.ResolveRange(context.Background(), 1, 3)
	if err != nil {
		t.Fatalf("resolve range: %v", err)
	}

	links, errs := collect(t, w, first, stop)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}

	want := []string{
		"http://books.example/b1/",
		"http://books.example/b2/",
		"http://books.example/b3/",
		"http://books.example/b4/",
	}
	if len(links) != len(want) {
		t.Fatalf("links = %v", links)
	}
	for i, link := range want {
		if links[i] != link {
			t.Fatalf("links[%d] = %q, want %q", i, links[i], link)
		}
	}

	// The end page itself is never fetched.
	counts := transport.GetCallCountInfo()
	if counts["GET "+categoryRoot+"3"] != 0 {
		t.Fatalf("page 3 was fetched %d times, want 0", counts["GET "+categoryRoot+"3"])
	}
}

func TestLinksPageFailureContinues(t *testing.T) {
	w, transport := newTestWalker(t, false)
	transport.RegisterResponder("GET", categoryRoot, htmlResponder(buildCategoryPage(3)))
	transport.RegisterResponder("GET", categoryRoot+"1", httpmock.NewStringResponder(404, ""))
	transport.RegisterResponder("GET", categoryRoot+"2", htmlResponder(buildCategoryPage(3, "/b3/")))

	links, errs := collect(t, w, 1, 3)
	if len(errs) != 1 {
		t.Fatalf("errors = %v, want one", errs)
	}
	if len(links) != 1 || links[0] != "http://books.example/b3/" {
		t.Fatalf("links = %v", links)
	}
}

func TestLinksStopEarly(t *testing.T) {
	w, transport := newTestWalker(t, false)
	transport.RegisterResponder("GET", categoryRoot+"1", htmlResponder(buildCategoryPage(3, "/b1/", "/b2/")))
	transport.RegisterResponder("GET", categoryRoot+"2", htmlResponder(buildCategoryPage(3, "/b3/")))

	for link, err := range w.Links(context.Background(), 1, 3) {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if link != "" {
			break
		}
	}

	counts := transport.GetCallCountInfo()
	if counts["GET "+categoryRoot+"2"] != 0 {
		t.Fatalf("page 2 was fetched after break")
	}
}
