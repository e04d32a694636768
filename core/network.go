package core

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Fetcher performs network requests for the worker.
// A returned error is a transport failure; any HTTP status is a response.
type Fetcher interface {
	Fetch(ctx context.Context, req Request) (*Response, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, req Request) (*Response, error)

// Fetch calls f(ctx, req).
func (f FetcherFunc) Fetch(ctx context.Context, req Request) (*Response, error) {
	return f(ctx, req)
}

// HTTPFetcher is a Fetcher over net/http.
type HTTPFetcher struct {
	Client *http.Client
}

var _ Fetcher = &HTTPFetcher{} // Compile-time check

// NewHTTPFetcher returns a fetcher whose client gives up after timeout.
// A zero timeout leaves timeouts to the transport.
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{Client: &http.Client{Timeout: timeout}}
}

// Fetch sends req and returns the response with its body still unread.
func (f *HTTPFetcher) Fetch(ctx context.Context, req Request) (*Response, error) {
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	hreq, err := http.NewRequestWithContext(ctx, req.method(), req.URL, req.Body)
	if err != nil {
		return nil, fmt.Errorf("build request %s: %w", req.Key(), err)
	}
	if req.Header != nil {
		hreq.Header = req.Header.Clone()
	}
	resp, err := client.Do(hreq)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNetwork, err)
	}
	return NewResponse(resp.StatusCode, resp.Header, resp.Body), nil
}
