package httpcache

import (
	"testing"
	"time"

	"github.com/stalefree/httpcache/header"
)

func TestVariantFingerprint(t *testing.T) {
	reqHeaders := header.New(
		header.Header{Name: "Accept-Language", Value: "en"},
		header.Header{Name: "Accept-Encoding", Value: "gzip"},
	)
	fingerprint, ok := VariantFingerprint([]string{"Accept-Language", "Accept-Encoding"}, reqHeaders)
	if !ok {
		t.Fatal("fingerprint not derivable")
	}
	if fingerprint != "accept-language=en&accept-encoding=gzip" {
		t.Fatalf("fingerprint %q", fingerprint)
	}
}

func TestVariantFingerprintMissingHeader(t *testing.T) {
	fingerprint, ok := VariantFingerprint([]string{"Accept"}, header.Headers{})
	if !ok || fingerprint != "accept=" {
		t.Fatalf("fingerprint %q %v", fingerprint, ok)
	}
}

func TestVaryStarIsNotCacheable(t *testing.T) {
	if _, ok := VariantFingerprint([]string{"*"}, header.Headers{}); ok {
		t.Fatal("Vary: * produced a fingerprint")
	}
	req, _ := NewRequest(MethodGet, "http://example.com/r")
	resp := &Response{Status: 200, Headers: header.New(header.Header{Name: "Vary", Value: "*"})}
	if _, ok := KeyForResponse(req, resp); ok {
		t.Fatal("Vary: * produced a key")
	}
}

func TestMatchesVariant(t *testing.T) {
	en, _ := NewRequest(MethodGet, "http://example.com/r")
	en.Headers = header.New(header.Header{Name: "Accept-Language", Value: "en"})
	resp := &Response{Status: 200, Headers: header.New(header.Header{Name: "Vary", Value: "Accept-Language"})}
	key, ok := KeyForResponse(en, resp)
	if !ok {
		t.Fatal("no key")
	}
	item := NewCacheItem(resp, time.Now())
	if !MatchesVariant(key, item, en) {
		t.Fatal("request that produced the key does not match")
	}
	fr := en.WithHeaders(header.New(header.Header{Name: "Accept-Language", Value: "fr"}))
	if MatchesVariant(key, item, fr) {
		t.Fatal("different variant matched")
	}
}

func TestRequestURIStripsFragment(t *testing.T) {
	req, _ := NewRequest(MethodGet, "http://example.com/r#section")
	if req.URI() != "http://example.com/r" {
		t.Fatalf("URI %q", req.URI())
	}
}

func TestKeyDigestIsStable(t *testing.T) {
	k := Key{URI: "http://example.com/r", Variant: "accept=text/html"}
	if k.Digest() != (Key{URI: "http://example.com/r", Variant: "accept=text/html"}).Digest() {
		t.Fatal("digest not stable")
	}
	if len(k.Digest()) != 64 {
		t.Fatalf("digest length %d", len(k.Digest()))
	}
	if k.Digest() == (Key{URI: "http://example.com/r", Variant: ""}).Digest() {
		t.Fatal("variants share a digest")
	}
}

func TestMethodFlags(t *testing.T) {
	for _, m := range []Method{MethodGet, MethodHead, MethodOptions, MethodTrace} {
		if !m.IsSafe() {
			t.Fatalf("%s should be safe", m)
		}
	}
	for _, m := range []Method{MethodPost, MethodPut, MethodDelete, MethodPatch, Method("BREW")} {
		if m.IsSafe() {
			t.Fatalf("%s should be unsafe", m)
		}
		if m.IsCacheable() {
			t.Fatalf("%s should not be cacheable", m)
		}
	}
	if !MethodGet.IsCacheable() || !MethodHead.IsCacheable() {
		t.Fatal("GET and HEAD should be cacheable")
	}
	if MethodOf("get") != MethodGet {
		t.Fatal("MethodOf does not normalise")
	}
}
