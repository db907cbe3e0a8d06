package httpcache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/stalefree/httpcache/header"
)

// Key addresses one stored variant of a resource: the request URI plus the
// variant fingerprint derived from the response's Vary header. A URI can
// hold multiple items, at most one per fingerprint.
type Key struct {
	URI     string
	Variant string
}

// Digest returns a stable hex digest of the key, used by persistent storage
// to derive payload file names.
func (k Key) Digest() string {
	sum := sha256.Sum256([]byte(k.URI + "\t" + k.Variant))
	return hex.EncodeToString(sum[:])
}

// VariantFingerprint derives the fingerprint for the header names listed in
// vary, taking the values from the given request headers. It returns false
// for Vary: *, which makes the response unmatchable and uncacheable.
func VariantFingerprint(vary []string, reqHeaders header.Headers) (string, bool) {
	var parts []string
	for _, name := range vary {
		if name == "*" {
			return "", false
		}
		parts = append(parts, strings.ToLower(name)+"="+reqHeaders.Get(name))
	}
	return strings.Join(parts, "&"), true
}

// KeyForResponse derives the storage key for storing resp against req.
// It returns false when the response must not be stored (Vary: *).
func KeyForResponse(req *Request, resp *Response) (Key, bool) {
	variant, ok := VariantFingerprint(resp.Headers.Vary(), req.Headers)
	if !ok {
		return Key{}, false
	}
	return Key{URI: req.URI(), Variant: variant}, true
}

// MatchesVariant reports whether the stored item can serve the request:
// the fingerprint derived from the item's own Vary header and the request's
// header values must equal the item's stored fingerprint.
func MatchesVariant(key Key, item *CacheItem, req *Request) bool {
	variant, ok := VariantFingerprint(item.Response().Headers.Vary(), req.Headers)
	return ok && variant == key.Variant
}

// CacheItem bundles a stored response with the instant it entered the cache.
type CacheItem struct {
	response *Response
	cachedAt time.Time
}

// NewCacheItem wraps a response that was cached at the given instant.
func NewCacheItem(resp *Response, cachedAt time.Time) *CacheItem {
	return &CacheItem{response: resp, cachedAt: cachedAt}
}

// Response returns the stored response.
func (i *CacheItem) Response() *Response {
	return i.response
}

// CachedAt returns the instant the response entered the cache.
func (i *CacheItem) CachedAt() time.Time {
	return i.cachedAt
}

// IsStale reports whether the item may no longer be served without
// revalidation, given the request's Cache-Control directives.
func (i *CacheItem) IsStale(reqCC header.CacheControl, now time.Time) bool {
	return !isFresh(i.response, reqCC, i.cachedAt, now)
}

// Storage is the contract between the engine and a cache store.
//
// Implementations must be safe for concurrent use.
type Storage interface {
	// Get returns the stored item whose variant matches the request, or nil.
	Get(req *Request) *CacheItem
	// Insert stores the response under the key derived from the request and
	// the response's Vary header, evicting per capacity policy. It returns a
	// response whose payload has been rewritten to a stable handle owned by
	// the storage.
	Insert(req *Request, resp *Response) (*Response, error)
	// Update replaces the stored item for the request's variant with the
	// given response, preserving its payload, and re-stamps the cache time.
	Update(req *Request, resp *Response) (*Response, error)
	// Invalidate removes every variant stored under the URI.
	Invalidate(uri string)
	// Clear removes everything, including any on-disk state.
	Clear() error
	// Size returns the number of live items.
	Size() int
	// Entries calls fn for each stored (key, item) pair until fn returns
	// false. Mutating the storage from within fn is not allowed.
	Entries(fn func(Key, *CacheItem) bool)
}
