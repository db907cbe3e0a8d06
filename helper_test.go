package httpcache

import (
	"testing"
	"time"

	"github.com/stalefree/httpcache/header"
)

func TestCacheableRequest(t *testing.T) {
	get, _ := NewRequest(MethodGet, "http://example.com/r")
	if !isCacheableRequest(get) {
		t.Fatal("plain GET should be cacheable")
	}
	noStore := get.WithHeaders(header.New(header.Header{Name: "Cache-Control", Value: "no-store"}))
	if isCacheableRequest(noStore) {
		t.Fatal("no-store request should not be cacheable")
	}
	put, _ := NewRequest(MethodPut, "http://example.com/r")
	if isCacheableRequest(put) {
		t.Fatal("PUT should not be cacheable")
	}
}

func TestCacheableResponse(t *testing.T) {
	for _, status := range []int{200, 203, 204, 300, 301, 404, 410} {
		if !isCacheableResponse(&Response{Status: status}) {
			t.Fatalf("status %d should be cacheable", status)
		}
	}
	for _, status := range []int{206, 302, 400, 500} {
		if isCacheableResponse(&Response{Status: status}) {
			t.Fatalf("status %d should not be cacheable", status)
		}
	}
	for _, directive := range []string{"no-store", "private"} {
		resp := responseWithHeaders(header.Header{Name: "Cache-Control", Value: directive})
		if isCacheableResponse(resp) {
			t.Fatalf("%s response should not be cacheable", directive)
		}
	}
	varyStar := responseWithHeaders(header.Header{Name: "Vary", Value: "*"})
	if isCacheableResponse(varyStar) {
		t.Fatal("Vary: * response should not be cacheable")
	}
}

func TestPrepareConditionalRequest(t *testing.T) {
	req, _ := NewRequest(MethodGet, "http://example.com/r")
	cached := responseWithHeaders(
		header.Header{Name: "ETag", Value: `"v1"`},
		header.Header{Name: "Last-Modified", Value: "Sun, 06 Nov 1994 08:49:37 GMT"},
	)
	cond := prepareConditionalRequest(req, cached)
	if got := cond.Headers.Get(header.IfNoneMatchHeader); got != `"v1"` {
		t.Fatalf("If-None-Match %q", got)
	}
	if got := cond.Headers.Get(header.IfModifiedSinceHeader); got != "Sun, 06 Nov 1994 08:49:37 GMT" {
		t.Fatalf("If-Modified-Since %q", got)
	}
	if req.Headers.Contains(header.IfNoneMatchHeader) {
		t.Fatal("original request mutated")
	}

	cleared := clearConditionals(cond)
	if cleared.Headers.Contains(header.IfNoneMatchHeader) || cleared.Headers.Contains(header.IfModifiedSinceHeader) {
		t.Fatal("conditionals not cleared")
	}
}

func TestMergeHeaders(t *testing.T) {
	cached := header.New(
		header.Header{Name: "Date", Value: "Sun, 06 Nov 1994 08:49:37 GMT"},
		header.Header{Name: "Age", Value: "100"},
		header.Header{Name: "ETag", Value: `"v1"`},
		header.Header{Name: "Content-Length", Value: "5"},
		header.Header{Name: "Cache-Control", Value: "max-age=60"},
	)
	resolved := header.New(
		header.Header{Name: "Date", Value: "Mon, 07 Nov 1994 08:49:37 GMT"},
		header.Header{Name: "ETag", Value: `"v2"`},
		header.Header{Name: "Content-Length", Value: "99"},
		header.Header{Name: "Cache-Control", Value: "max-age=120"},
	)
	merged := mergeHeaders(cached, resolved)
	if got := merged.Get("Date"); got != "Mon, 07 Nov 1994 08:49:37 GMT" {
		t.Fatalf("Date not replaced, got %q", got)
	}
	if got := merged.Get("ETag"); got != `"v1"` {
		t.Fatalf("ETag overwritten to %q", got)
	}
	if got := merged.Get("Content-Length"); got != "5" {
		t.Fatalf("Content-Length overwritten to %q", got)
	}
	if got := merged.Get("Cache-Control"); got != "max-age=120" {
		t.Fatalf("Cache-Control not updated, got %q", got)
	}
	if merged.Contains("Age") {
		t.Fatal("stale Age survived the merge")
	}
}

func TestRewriteResponseSetsAgeAndDate(t *testing.T) {
	now := time.Now()
	cachedAt := now.Add(-30 * time.Second)
	resp := responseWithHeaders(
		header.Header{Name: "Date", Value: header.FormatDate(cachedAt)},
		header.Header{Name: "Cache-Control", Value: "max-age=60"},
	)
	item := NewCacheItem(resp, cachedAt)

	rewritten := rewriteResponse(item, now, time.Minute)
	if age := rewritten.Headers.Get("Age"); age != "30" && age != "31" {
		t.Fatalf("Age %q", age)
	}
	if got := rewritten.Headers.Get("Date"); got != header.FormatDate(cachedAt) {
		t.Fatal("Date replaced within tolerance")
	}

	rewritten = rewriteResponse(item, now, time.Second)
	if got := rewritten.Headers.Get("Date"); got != header.FormatDate(now) {
		t.Fatal("old Date not refreshed")
	}
}

func TestWarnFormatsHeader(t *testing.T) {
	resp := warn(responseWithHeaders(), warnResponseIsStale)
	if got := resp.Headers.Get("Warning"); got != `110 - "Response is stale"` {
		t.Fatalf("Warning %q", got)
	}
	resp = warn(resp, warnRevalidationFailed)
	if values := resp.Headers.Values("Warning"); len(values) != 2 {
		t.Fatalf("Warning values %v", values)
	}
}

func TestInvalidationURIs(t *testing.T) {
	req, _ := NewRequest(MethodPut, "http://example.com/r")
	resp := responseWithHeaders(
		header.Header{Name: "Location", Value: "/r2"},
		header.Header{Name: "Content-Location", Value: "http://evil.example.org/r3"},
	)
	uris := invalidationURIs(req, resp)
	if len(uris) != 2 {
		t.Fatalf("uris %v", uris)
	}
	if uris[0] != "http://example.com/r" || uris[1] != "http://example.com/r2" {
		t.Fatalf("uris %v", uris)
	}
}
