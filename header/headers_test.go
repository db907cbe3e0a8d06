package header

import (
	"testing"
	"time"
)

func TestGetIsCaseInsensitive(t *testing.T) {
	h := New(Header{"Content-Type", "text/plain"})
	if got := h.Get("content-type"); got != "text/plain" {
		t.Fatalf("Get returned %q", got)
	}
	if !h.Contains("CONTENT-TYPE") {
		t.Fatal("Contains did not match")
	}
}

func TestMutationsReturnNewValue(t *testing.T) {
	h := New(Header{"Accept", "text/html"})
	h2 := h.Add("Accept", "application/json").Set("Host", "example.com")
	if h.Size() != 1 {
		t.Fatalf("original mutated, size %d", h.Size())
	}
	if h2.Size() != 3 {
		t.Fatalf("copy has size %d", h2.Size())
	}
	if h.Contains("Host") {
		t.Fatal("original gained a field")
	}
}

func TestSetReplacesAllValues(t *testing.T) {
	h := New(
		Header{"Warning", "110 - \"stale\""},
		Header{"Warning", "111 - \"revalidation failed\""},
	).Set("warning", "299 - \"misc\"")
	if values := h.Values("Warning"); len(values) != 1 || values[0] != "299 - \"misc\"" {
		t.Fatalf("Values returned %v", values)
	}
}

func TestRemove(t *testing.T) {
	h := New(Header{"ETag", "\"v1\""}, Header{"Date", "whatever"}).Remove("etag")
	if h.Contains("ETag") {
		t.Fatal("ETag still present")
	}
	if !h.Contains("Date") {
		t.Fatal("Date removed")
	}
}

func TestIterationOrderIsInsertionOrder(t *testing.T) {
	h := New(Header{"B", "2"}, Header{"A", "1"}, Header{"C", "3"})
	var names []string
	h.Each(func(f Header) bool {
		names = append(names, f.Name)
		return true
	})
	if len(names) != 3 || names[0] != "B" || names[1] != "A" || names[2] != "C" {
		t.Fatalf("iteration order %v", names)
	}
}

func TestVarySplitsLists(t *testing.T) {
	h := New(
		Header{"Vary", "Accept, Accept-Language"},
		Header{"Vary", "Accept-Encoding"},
	)
	vary := h.Vary()
	if len(vary) != 3 || vary[0] != "Accept" || vary[1] != "Accept-Language" || vary[2] != "Accept-Encoding" {
		t.Fatalf("Vary returned %v", vary)
	}
}

func TestDateAccessor(t *testing.T) {
	h := New(Header{"Date", "Sun, 06 Nov 1994 08:49:37 GMT"})
	date, ok := h.Date()
	if !ok {
		t.Fatal("Date not parsed")
	}
	if date.Year() != 1994 || date.Minute() != 49 {
		t.Fatalf("Date parsed as %v", date)
	}
}

func TestInvalidExpiresIsAbsent(t *testing.T) {
	h := New(Header{"Expires", "0"})
	if _, ok := h.Expires(); ok {
		t.Fatal("Expires: 0 should not parse")
	}
}

func TestAge(t *testing.T) {
	h := New(Header{"Age", "60"})
	age, ok := h.Age()
	if !ok || age != 60*time.Second {
		t.Fatalf("Age returned %v %v", age, ok)
	}
}
