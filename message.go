// Package httpcache is a client-side HTTP cache. It sits between a program
// issuing HTTP requests and the resolver that performs them, and answers each
// request with a stored still-fresh response, a revalidated response obtained
// through a conditional request, or a freshly fetched response, updating its
// storage as a side effect.
package httpcache

import (
	"net/url"
	"strings"

	"github.com/stalefree/httpcache/header"
	"github.com/stalefree/httpcache/payload"
)

// Method is an HTTP request method.
type Method string

const (
	MethodConnect Method = "CONNECT"
	MethodDelete  Method = "DELETE"
	MethodGet     Method = "GET"
	MethodHead    Method = "HEAD"
	MethodOptions Method = "OPTIONS"
	MethodPatch   Method = "PATCH"
	MethodPost    Method = "POST"
	MethodPurge   Method = "PURGE"
	MethodPut     Method = "PUT"
	MethodTrace   Method = "TRACE"
)

// IsSafe reports whether the method does not mutate server state.
// Unknown extension methods are considered unsafe.
func (m Method) IsSafe() bool {
	switch m {
	case MethodGet, MethodHead, MethodOptions, MethodTrace:
		return true
	}
	return false
}

// IsCacheable reports whether responses to the method may be stored.
func (m Method) IsCacheable() bool {
	return m == MethodGet || m == MethodHead
}

// CanHavePayload reports whether requests with the method carry a body.
func (m Method) CanHavePayload() bool {
	return m == MethodPost || m == MethodPut || m == MethodPatch
}

// MethodOf normalises a method name.
func MethodOf(name string) Method {
	return Method(strings.ToUpper(name))
}

// Request is an HTTP request as seen by the cache.
type Request struct {
	Method  Method
	URL     *url.URL
	Headers header.Headers
	Payload payload.Payload
}

// NewRequest builds a request for the given method and URI.
func NewRequest(method Method, uri string) (*Request, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, err
	}
	return &Request{Method: method, URL: u}, nil
}

// URI returns the normalised request URI used as the storage and locking
// key. The fragment is stripped.
func (r *Request) URI() string {
	return normalizeURI(r.URL)
}

// WithHeaders returns a shallow copy of r carrying the given headers.
func (r *Request) WithHeaders(h header.Headers) *Request {
	req := *r
	req.Headers = h
	return &req
}

// HasPayload reports whether the request carries body bytes.
func (r *Request) HasPayload() bool {
	return r.Payload != nil && r.Payload.HasPayload()
}

// Response is an HTTP response as seen by the cache.
type Response struct {
	Status  int
	Headers header.Headers
	Payload payload.Payload
}

// HasPayload reports whether the response carries body bytes.
func (r *Response) HasPayload() bool {
	return r.Payload != nil && r.Payload.HasPayload()
}

func normalizeURI(u *url.URL) string {
	if u.Fragment == "" && u.RawFragment == "" {
		return u.String()
	}
	stripped := *u
	stripped.Fragment = ""
	stripped.RawFragment = ""
	return stripped.String()
}
