// Package header implements the immutable HTTP header model used throughout
// the cache, together with the Cache-Control directives and HTTP date formats
// the caching calculations depend on.
package header

import (
	"strings"
	"time"
)

// Common header names used by the cache.
const (
	CacheControlHeader    = "Cache-Control"
	DateHeader            = "Date"
	ExpiresHeader         = "Expires"
	AgeHeader             = "Age"
	LastModifiedHeader    = "Last-Modified"
	ETagHeader            = "ETag"
	VaryHeader            = "Vary"
	AllowHeader           = "Allow"
	LocationHeader        = "Location"
	ContentLocationHeader = "Content-Location"
	ContentTypeHeader     = "Content-Type"
	ContentLengthHeader   = "Content-Length"
	ContentMD5Header      = "Content-MD5"
	WarningHeader         = "Warning"
	IfNoneMatchHeader     = "If-None-Match"
	IfModifiedSinceHeader = "If-Modified-Since"
)

// Header is a single field name/value pair.
type Header struct {
	Name  string
	Value string
}

// Headers is an ordered collection of header fields.
// Names are compared case-insensitively; iteration order is insertion order.
// Headers is a value: all mutating operations return a new Headers and leave
// the receiver untouched.
type Headers struct {
	fields []Header
}

// New returns a Headers containing the given fields in order.
func New(fields ...Header) Headers {
	h := Headers{}
	for _, f := range fields {
		h = h.Add(f.Name, f.Value)
	}
	return h
}

// Add returns a copy of h with the field appended.
func (h Headers) Add(name, value string) Headers {
	fields := make([]Header, len(h.fields), len(h.fields)+1)
	copy(fields, h.fields)
	return Headers{append(fields, Header{name, value})}
}

// Set returns a copy of h with all fields named name replaced by a single
// field with the given value. The field keeps the position of the first
// occurrence, or is appended if absent.
func (h Headers) Set(name, value string) Headers {
	fields := make([]Header, 0, len(h.fields)+1)
	set := false
	for _, f := range h.fields {
		if strings.EqualFold(f.Name, name) {
			if !set {
				fields = append(fields, Header{name, value})
				set = true
			}
			continue
		}
		fields = append(fields, f)
	}
	if !set {
		fields = append(fields, Header{name, value})
	}
	return Headers{fields}
}

// Remove returns a copy of h without any field named name.
func (h Headers) Remove(name string) Headers {
	fields := make([]Header, 0, len(h.fields))
	for _, f := range h.fields {
		if !strings.EqualFold(f.Name, name) {
			fields = append(fields, f)
		}
	}
	return Headers{fields}
}

// Get returns the first value of the named field, or "" if absent.
func (h Headers) Get(name string) string {
	for _, f := range h.fields {
		if strings.EqualFold(f.Name, name) {
			return f.Value
		}
	}
	return ""
}

// Values returns all values of the named field in insertion order.
func (h Headers) Values(name string) []string {
	var values []string
	for _, f := range h.fields {
		if strings.EqualFold(f.Name, name) {
			values = append(values, f.Value)
		}
	}
	return values
}

// Contains reports whether a field with the given name is present.
func (h Headers) Contains(name string) bool {
	for _, f := range h.fields {
		if strings.EqualFold(f.Name, name) {
			return true
		}
	}
	return false
}

// Size returns the number of fields.
func (h Headers) Size() int {
	return len(h.fields)
}

// Each calls fn for every field in insertion order, stopping if fn returns
// false.
func (h Headers) Each(fn func(Header) bool) {
	for _, f := range h.fields {
		if !fn(f) {
			return
		}
	}
}

// CacheControl returns the parsed Cache-Control directives.
func (h Headers) CacheControl() CacheControl {
	return ParseCacheControl(h.Values(CacheControlHeader))
}

// Date returns the parsed Date field.
func (h Headers) Date() (time.Time, bool) {
	return h.date(DateHeader)
}

// Expires returns the parsed Expires field.
// An unparseable Expires (e.g. "0") is treated as absent, which makes the
// response immediately stale.
func (h Headers) Expires() (time.Time, bool) {
	return h.date(ExpiresHeader)
}

// LastModified returns the parsed Last-Modified field.
func (h Headers) LastModified() (time.Time, bool) {
	return h.date(LastModifiedHeader)
}

// Age returns the Age field as a duration.
func (h Headers) Age() (time.Duration, bool) {
	if v := h.Get(AgeHeader); v != "" {
		return deltaSeconds(v), true
	}
	return 0, false
}

// ETag returns the ETag field value, or "".
func (h Headers) ETag() string {
	return h.Get(ETagHeader)
}

// Vary returns the field names listed in Vary, across all Vary fields.
func (h Headers) Vary() []string {
	return h.list(VaryHeader)
}

// Allow returns the methods listed in Allow.
func (h Headers) Allow() []string {
	return h.list(AllowHeader)
}

// Location returns the Location field value, or "".
func (h Headers) Location() string {
	return h.Get(LocationHeader)
}

// ContentLocation returns the Content-Location field value, or "".
func (h Headers) ContentLocation() string {
	return h.Get(ContentLocationHeader)
}

// ContentType returns the Content-Type field value, or "".
func (h Headers) ContentType() string {
	return h.Get(ContentTypeHeader)
}

func (h Headers) date(name string) (time.Time, bool) {
	if v := h.Get(name); v != "" {
		if t, err := ParseDate(v); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// list splits a comma-separated list header into its trimmed elements.
func (h Headers) list(name string) []string {
	var items []string
	for _, value := range h.Values(name) {
		for _, item := range strings.Split(value, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
	}
	return items
}
