// Package fetch issues redirect-suppressed HTTP GETs and classifies the
// outcome of each request.
package fetch

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	lru "github.com/hashicorp/golang-lru/v2"

	"tululu-library/config"
)

// Fetcher issues single GET requests and never follows redirects. The
// response is classified: a 200 yields the body, anything else is a
// BadStatusError, and network failures are TransportErrors.
type Fetcher struct {
	http    *resty.Client
	cache   *lru.Cache[string, []byte]
	Metrics *Metrics
}

// New builds a fetcher configured from cfg. When PageCacheSize is positive
// an LRU cache serves repeated page URLs without hitting the network;
// category pages can list the same book more than once.
func New(cfg *config.Config) (*Fetcher, error) {
	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetHeader("User-Agent", cfg.UserAgent).
		SetRedirectPolicy(resty.RedirectPolicyFunc(func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}))

	f := &Fetcher{
		http:    client,
		Metrics: NewMetrics(),
	}

	if cfg.PageCacheSize > 0 {
		cache, err := lru.New[string, []byte](cfg.PageCacheSize)
		if err != nil {
			return nil, fmt.Errorf("page cache: %w", err)
		}
		f.cache = cache
	}

	return f, nil
}

// SetTransport swaps the underlying transport; tests inject httpmock here.
func (f *Fetcher) SetTransport(rt http.RoundTripper) {
	f.http.SetTransport(rt)
}

// FetchPage fetches an HTML page, serving repeated URLs from the cache.
func (f *Fetcher) FetchPage(ctx context.Context, url string) ([]byte, error) {
	if f.cache != nil {
		if body, ok := f.cache.Get(url); ok {
			f.Metrics.IncCacheHit()
			return body, nil
		}
	}

	body, err := f.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	if f.cache != nil {
		f.cache.Add(url, body)
	}
	return body, nil
}

// Fetch issues one GET and returns the body of a 200 response. Any other
// status, including a suppressed redirect, is a BadStatusError.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	start := time.Now()
	res, err := f.http.R().SetContext(ctx).Get(url)
	f.Metrics.ObserveDuration(time.Since(start))

	if err != nil {
		f.Metrics.IncRequest("error")
		failure := &TransportError{URL: url, Err: err}
		f.Metrics.IncError(ErrorLabel(failure))
		return nil, failure
	}
	if res.StatusCode() != http.StatusOK {
		f.Metrics.IncRequest("error")
		failure := &BadStatusError{URL: url, Status: res.StatusCode()}
		f.Metrics.IncError(ErrorLabel(failure))
		return nil, failure
	}

	f.Metrics.IncRequest("ok")
	return res.Body(), nil
}
