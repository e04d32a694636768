package core

import (
	"io"
	"net/http"
	"strings"
)

// partialHeaders make a GET partial or conditional, so its answer may not
// be the full representation.
var partialHeaders = []string{
	"Range",
	"If-Range",
	"If-Match",
	"If-None-Match",
	"If-Modified-Since",
	"If-Unmodified-Since",
}

// Request describes an intercepted request.
type Request struct {
	Method string
	URL    string // absolute
	Header http.Header
	Body   io.Reader
}

// NewRequest returns a Request without headers or body.
func NewRequest(method, url string) Request {
	return Request{Method: method, URL: url, Header: http.Header{}}
}

// method returns the normalized method. An empty method means GET, as in net/http.
func (r Request) method() string {
	if r.Method == "" {
		return http.MethodGet
	}
	return strings.ToUpper(r.Method)
}

// Key is the cache key of the request: method and absolute URL.
func (r Request) Key() string {
	return r.method() + " " + r.URL
}

// IsGet reports whether the request may be served from or stored in the cache.
func (r Request) IsGet() bool {
	return r.method() == http.MethodGet
}

// full returns a plain GET for the same URL without range or conditional headers.
func (r Request) full() Request {
	header := r.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	for _, h := range partialHeaders {
		header.Del(h)
	}
	return Request{Method: http.MethodGet, URL: r.URL, Header: header}
}
