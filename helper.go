package httpcache

import (
	"fmt"
	"net/url"
	"time"

	"github.com/stalefree/httpcache/header"
)

// Warning codes the engine attaches to responses it serves despite
// staleness (RFC 2616 §14.46).
const (
	warnResponseIsStale    = 110
	warnRevalidationFailed = 111
)

var warnTexts = map[int]string{
	warnResponseIsStale:    "Response is stale",
	warnRevalidationFailed: "Revalidation failed",
}

// cacheableStatuses is the status whitelist for stored responses.
// 206 is excluded since partial content is not supported.
var cacheableStatuses = map[int]bool{
	200: true,
	203: true,
	204: true,
	300: true,
	301: true,
	404: true,
	410: true,
}

// isCacheableRequest reports whether the request is eligible to be answered
// from storage: the method must be cacheable and the request must not carry
// no-store.
func isCacheableRequest(req *Request) bool {
	return req.Method.IsCacheable() && !req.Headers.CacheControl().NoStore()
}

// isCacheableResponse reports whether the resolved response may be stored.
func isCacheableResponse(resp *Response) bool {
	if !cacheableStatuses[resp.Status] {
		return false
	}
	cc := resp.Headers.CacheControl()
	if cc.NoStore() || cc.Private() {
		return false
	}
	for _, name := range resp.Headers.Vary() {
		if name == "*" {
			return false
		}
	}
	return true
}

// prepareConditionalRequest builds the validation request for a stale stored
// response: If-None-Match from the stored ETag and If-Modified-Since from the
// stored Last-Modified.
func prepareConditionalRequest(req *Request, cached *Response) *Request {
	headers := req.Headers
	if etag := cached.Headers.ETag(); etag != "" {
		headers = headers.Set(header.IfNoneMatchHeader, etag)
	}
	if _, ok := cached.Headers.LastModified(); ok {
		headers = headers.Set(header.IfModifiedSinceHeader, cached.Headers.Get(header.LastModifiedHeader))
	}
	return req.WithHeaders(headers)
}

// clearConditionals strips validator headers so the origin must send a full
// body. Used when the cached payload is no longer available.
func clearConditionals(req *Request) *Request {
	headers := req.Headers.
		Remove(header.IfNoneMatchHeader).
		Remove(header.IfModifiedSinceHeader)
	return req.WithHeaders(headers)
}

// unmodifiableHeaders are end-to-end headers a 304 must not overwrite on the
// stored response.
var unmodifiableHeaders = []string{
	header.ContentLengthHeader,
	header.ContentMD5Header,
	header.ETagHeader,
	header.LastModifiedHeader,
}

// mergeHeaders merges the headers of a validation response onto the stored
// headers: non-updatable headers are dropped from the incoming set, and a
// new Date replaces the stored one. The stored Age is dropped as well; it
// described the residency before revalidation, which restarts now.
func mergeHeaders(cached, resolved header.Headers) header.Headers {
	for _, name := range unmodifiableHeaders {
		resolved = resolved.Remove(name)
	}
	if resolved.Contains(header.DateHeader) && cached.Contains(header.DateHeader) {
		cached = cached.Remove(header.DateHeader)
	}
	cached = cached.Remove(header.AgeHeader)
	merged := cached
	resolved.Each(func(h header.Header) bool {
		merged = merged.Set(h.Name, h.Value)
		return true
	})
	return merged
}

// rewriteResponse prepares a stored response for the caller: the Age header
// reflects the current age, and the Date header is refreshed when the stored
// one is older than the tolerance.
func rewriteResponse(item *CacheItem, now time.Time, dateTolerance time.Duration) *Response {
	cached := item.Response()
	headers := cached.Headers.Set(header.AgeHeader,
		header.ToDeltaSeconds(currentAge(cached, item.CachedAt(), now)))
	if date, ok := headers.Date(); !ok || now.Sub(date) > dateTolerance {
		headers = headers.Set(header.DateHeader, header.FormatDate(now))
	}
	return &Response{Status: cached.Status, Headers: headers, Payload: cached.Payload}
}

// warn annotates a response with a Warning header.
func warn(resp *Response, code int) *Response {
	value := fmt.Sprintf("%d - %q", code, warnTexts[code])
	return &Response{
		Status:  resp.Status,
		Headers: resp.Headers.Add(header.WarningHeader, value),
		Payload: resp.Payload,
	}
}

// invalidationURIs collects the URIs to invalidate after a successful unsafe
// request: the request URI itself plus any Location and Content-Location
// targets on the same host (RFC 2616 §13.10).
func invalidationURIs(req *Request, resp *Response) []string {
	uris := []string{req.URI()}
	for _, location := range []string{resp.Headers.Location(), resp.Headers.ContentLocation()} {
		if location == "" {
			continue
		}
		ref, err := url.Parse(location)
		if err != nil {
			continue
		}
		target := req.URL.ResolveReference(ref)
		if target.Host != req.URL.Host {
			continue
		}
		uris = append(uris, normalizeURI(target))
	}
	return uris
}
