package payload

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestBytesSupportsMultipleReaders(t *testing.T) {
	p := NewBytes("text/plain", []byte("hello"))
	for i := 0; i < 2; i++ {
		r, err := p.NewReader()
		if err != nil {
			t.Fatal(err)
		}
		data, _ := io.ReadAll(r)
		r.Close()
		if string(data) != "hello" {
			t.Fatalf("read %q", data)
		}
	}
	if !p.IsAvailable() || !p.HasPayload() {
		t.Fatal("bytes payload should always be available")
	}
}

func TestEmptyBytesHasNoPayload(t *testing.T) {
	if NewBytes("", nil).HasPayload() {
		t.Fatal("empty payload reported as present")
	}
}

func TestFileBecomesUnavailableWhenRemoved(t *testing.T) {
	path := filepath.Join(t.TempDir(), "body")
	if err := os.WriteFile(path, []byte("data"), 0o644); err != nil {
		t.Fatal(err)
	}
	p := NewFile("application/octet-stream", path)
	if !p.IsAvailable() {
		t.Fatal("file payload should be available")
	}
	r, err := p.NewReader()
	if err != nil {
		t.Fatal(err)
	}
	data, _ := io.ReadAll(r)
	r.Close()
	if string(data) != "data" {
		t.Fatalf("read %q", data)
	}

	os.Remove(path)
	if p.IsAvailable() {
		t.Fatal("file payload should be unavailable after removal")
	}
	if _, err := p.NewReader(); err == nil {
		t.Fatal("expected error opening removed file")
	}
}

func TestStreamIsOneShot(t *testing.T) {
	p := NewStream("text/plain", io.NopCloser(strings.NewReader("once")))
	if _, err := p.NewReader(); err != nil {
		t.Fatal(err)
	}
	if _, err := p.NewReader(); err == nil {
		t.Fatal("second reader should fail")
	}
	if p.IsAvailable() {
		t.Fatal("consumed stream reported available")
	}
}
