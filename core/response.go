package core

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/huangsam/digitaldiary/schema"
)

// Response is a status, headers and a move-only body.
// The body can be taken exactly once; use Duplicate to hand the same
// response to two consumers.
type Response struct {
	Status int
	Header http.Header

	mu    sync.Mutex
	body  io.ReadCloser
	taken bool
}

// NewResponse wraps a body. A nil header or body is replaced with an empty one.
func NewResponse(status int, header http.Header, body io.ReadCloser) *Response {
	if header == nil {
		header = http.Header{}
	}
	if body == nil {
		body = http.NoBody
	}
	return &Response{Status: status, Header: header, body: body}
}

// NewBytesResponse returns a response over an in-memory body.
func NewBytesResponse(status int, header http.Header, body []byte) *Response {
	return NewResponse(status, header, io.NopCloser(bytes.NewReader(body)))
}

// Body moves the body out of the response. The caller must close it.
func (r *Response) Body() (io.ReadCloser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.taken {
		return nil, ErrBodyConsumed
	}
	r.taken = true
	return r.body, nil
}

// ReadAll moves the body out of the response, reads it and closes it.
func (r *Response) ReadAll() ([]byte, error) {
	body, err := r.Body()
	if err != nil {
		return nil, err
	}
	defer func() { _ = body.Close() }()
	return io.ReadAll(body)
}

// Discard drains and closes the body if it was not taken yet.
func (r *Response) Discard() {
	body, err := r.Body()
	if err != nil {
		return
	}
	_, _ = io.Copy(io.Discard, body)
	_ = body.Close()
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r.Status >= 200 && r.Status <= 299
}

// Cacheable reports a 2xx status that carries the full representation.
func (r *Response) Cacheable() bool {
	return r.OK() && r.Status != http.StatusPartialContent
}

// Duplicate consumes resp and returns two independent responses with the
// same status, headers and body bytes.
func Duplicate(resp *Response) (*Response, *Response, error) {
	data, err := resp.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("duplicate response: %w", err)
	}
	a := NewBytesResponse(resp.Status, resp.Header.Clone(), data)
	b := NewBytesResponse(resp.Status, resp.Header.Clone(), bytes.Clone(data))
	return a, b, nil
}

// responseFromEntry replays a stored snapshot.
func responseFromEntry(entry schema.CachedEntry) *Response {
	return NewBytesResponse(entry.Status, entry.Header.Clone(), entry.Body)
}

// toEntry consumes resp into a snapshot for the named generation.
func toEntry(generation string, req Request, resp *Response) (schema.CachedEntry, error) {
	body, err := resp.ReadAll()
	if err != nil {
		return schema.CachedEntry{}, fmt.Errorf("read body of %s: %w", req.URL, err)
	}
	return schema.CachedEntry{
		Generation: generation,
		Method:     req.method(),
		URL:        req.URL,
		Status:     resp.Status,
		Header:     resp.Header.Clone(),
		Body:       body,
	}, nil
}
