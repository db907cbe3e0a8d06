package httpcache

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stalefree/httpcache/header"
	"github.com/stalefree/httpcache/payload"
)

func TestTransportResolver(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Token") != "abc" {
			t.Errorf("X-Token header not forwarded")
		}
		w.Header().Set("ETag", `"v1"`)
		w.Write([]byte("Hello world"))
	}))
	defer server.Close()

	req, err := NewRequest(MethodGet, server.URL+"/r")
	if err != nil {
		t.Fatal(err)
	}
	req.Headers = header.New(header.Header{Name: "X-Token", Value: "abc"})

	resp, err := NewTransportResolver(nil).Resolve(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Status != 200 {
		t.Fatalf("status %d", resp.Status)
	}
	if etag := resp.Headers.ETag(); etag != `"v1"` {
		t.Fatalf("ETag %q", etag)
	}
	r, err := resp.Payload.NewReader()
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	if body, _ := io.ReadAll(r); string(body) != "Hello world" {
		t.Fatalf("body %q", body)
	}
}

func TestTransportResolverBackfillsDate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header()["Date"] = nil
		w.WriteHeader(204)
	}))
	defer server.Close()

	req, err := NewRequest(MethodGet, server.URL+"/r")
	if err != nil {
		t.Fatal(err)
	}
	resp, err := NewTransportResolver(nil).Resolve(req)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := resp.Headers.Date(); !ok {
		t.Fatal("Date not backfilled")
	}
}

func TestTransportResolverDoesNotFollowRedirects(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/elsewhere", http.StatusMovedPermanently)
	}))
	defer server.Close()

	req, err := NewRequest(MethodGet, server.URL+"/r")
	if err != nil {
		t.Fatal(err)
	}
	resp, err := NewTransportResolver(nil).Resolve(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Status != 301 {
		t.Fatalf("status %d", resp.Status)
	}
}

func TestTransportResolverSendsPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if string(body) != "data" {
			t.Errorf("request body %q", body)
		}
		w.WriteHeader(204)
	}))
	defer server.Close()

	req, err := NewRequest(MethodPost, server.URL+"/r")
	if err != nil {
		t.Fatal(err)
	}
	req.Payload = payload.NewBytes("text/plain", []byte("data"))
	if _, err := NewTransportResolver(nil).Resolve(req); err != nil {
		t.Fatal(err)
	}
}
