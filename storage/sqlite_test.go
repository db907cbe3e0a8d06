package storage

import (
	"path/filepath"
	"testing"

	"github.com/stalefree/httpcache"
	"github.com/stalefree/httpcache/header"
)

func newSQLite(t *testing.T, path string) *SQLiteStorage {
	t.Helper()
	s, err := NewSQLiteStorage(path)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestSQLiteInsertGetRoundTrip(t *testing.T) {
	s := newSQLite(t, filepath.Join(t.TempDir(), "cache.db"))
	defer s.Close()

	req := getRequest(t, "http://example.com/r")
	resp := textResponse("hello", header.Header{Name: "Cache-Control", Value: "max-age=60"})
	stored, err := s.Insert(req, resp)
	if err != nil {
		t.Fatal(err)
	}
	if body := payloadBytes(t, stored.Payload); body != "hello" {
		t.Fatalf("insert returned body %q", body)
	}

	item := s.Get(req)
	if item == nil {
		t.Fatal("get returned nothing")
	}
	if body := payloadBytes(t, item.Response().Payload); body != "hello" {
		t.Fatalf("get returned body %q", body)
	}
	if cc := item.Response().Headers.Get("Cache-Control"); cc != "max-age=60" {
		t.Fatalf("headers lost, Cache-Control %q", cc)
	}
	if s.Size() != 1 {
		t.Fatalf("size %d", s.Size())
	}
}

func TestSQLiteVaryVariants(t *testing.T) {
	s := newSQLite(t, filepath.Join(t.TempDir(), "cache.db"))
	defer s.Close()

	en := getRequest(t, "http://example.com/r", header.Header{Name: "Accept-Language", Value: "en"})
	fr := getRequest(t, "http://example.com/r", header.Header{Name: "Accept-Language", Value: "fr"})
	vary := header.Header{Name: "Vary", Value: "Accept-Language"}
	if _, err := s.Insert(en, textResponse("EN", vary)); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Insert(fr, textResponse("FR", vary)); err != nil {
		t.Fatal(err)
	}
	if s.Size() != 2 {
		t.Fatalf("size %d", s.Size())
	}
	if body := payloadBytes(t, s.Get(fr).Response().Payload); body != "FR" {
		t.Fatalf("fr body %q", body)
	}

	s.Invalidate("http://example.com/r")
	if s.Size() != 0 {
		t.Fatalf("size %d after invalidate", s.Size())
	}
}

func TestSQLiteSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	s := newSQLite(t, path)
	req := getRequest(t, "http://example.com/r")
	if _, err := s.Insert(req, textResponse("persisted")); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	reopened := newSQLite(t, path)
	defer reopened.Close()
	item := reopened.Get(req)
	if item == nil {
		t.Fatal("entry lost across reopen")
	}
	if body := payloadBytes(t, item.Response().Payload); body != "persisted" {
		t.Fatalf("body %q", body)
	}
}

func TestSQLiteEntries(t *testing.T) {
	s := newSQLite(t, filepath.Join(t.TempDir(), "cache.db"))
	defer s.Close()
	s.Insert(getRequest(t, "http://example.com/a"), textResponse("x"))
	s.Insert(getRequest(t, "http://example.com/b"), textResponse("x"))

	count := 0
	s.Entries(func(key httpcache.Key, item *httpcache.CacheItem) bool {
		count++
		return true
	})
	if count != 2 {
		t.Fatalf("iterated %d entries", count)
	}
}

func TestSQLiteClear(t *testing.T) {
	s := newSQLite(t, filepath.Join(t.TempDir(), "cache.db"))
	defer s.Close()
	s.Insert(getRequest(t, "http://example.com/a"), textResponse("x"))
	if err := s.Clear(); err != nil {
		t.Fatal(err)
	}
	if s.Size() != 0 {
		t.Fatalf("size %d after clear", s.Size())
	}
}
