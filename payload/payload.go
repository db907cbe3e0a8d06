// Package payload defines the byte-source abstraction for request and
// response bodies, together with the in-memory, file-backed and one-shot
// stream implementations the cache uses.
package payload

import (
	"bytes"
	"io"
	"os"
	"sync"

	"github.com/pkg/errors"
)

// Payload is an opaque source of body bytes.
//
// Implementations backed by stable storage support any number of concurrent
// readers; stream-backed implementations can be consumed exactly once.
type Payload interface {
	// NewReader opens a reader over the payload bytes.
	NewReader() (io.ReadCloser, error)
	// MediaType returns the media type of the payload, or "".
	MediaType() string
	// IsAvailable reports whether the underlying bytes are still readable.
	IsAvailable() bool
	// HasPayload reports whether there are any bytes at all.
	HasPayload() bool
}

// Bytes is an in-memory payload. It is safe for concurrent readers.
type Bytes struct {
	mediaType string
	data      []byte
}

// NewBytes returns a payload over the given bytes.
func NewBytes(mediaType string, data []byte) *Bytes {
	return &Bytes{mediaType: mediaType, data: data}
}

func (b *Bytes) NewReader() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(b.data)), nil
}

func (b *Bytes) MediaType() string { return b.mediaType }
func (b *Bytes) IsAvailable() bool { return true }
func (b *Bytes) HasPayload() bool  { return len(b.data) > 0 }

// File is a payload backed by a file on disk. It becomes unavailable when
// the file is removed. Concurrent readers each open the file independently.
type File struct {
	mediaType string
	path      string
}

// NewFile returns a payload backed by the file at path.
func NewFile(mediaType, path string) *File {
	return &File{mediaType: mediaType, path: path}
}

func (f *File) NewReader() (io.ReadCloser, error) {
	file, err := os.Open(f.path)
	if err != nil {
		return nil, errors.Wrap(err, "opening payload file")
	}
	return file, nil
}

func (f *File) MediaType() string { return f.mediaType }

func (f *File) IsAvailable() bool {
	info, err := os.Stat(f.path)
	return err == nil && !info.IsDir()
}

// HasPayload is true by construction: a File is only created for responses
// that carried a body. Whether the bytes are still readable is IsAvailable's
// concern.
func (f *File) HasPayload() bool { return true }

// Path returns the location of the backing file.
func (f *File) Path() string { return f.path }

// Stream is a one-shot payload over a network body. The first NewReader
// returns the underlying stream; subsequent calls fail. Callers that need a
// re-readable payload must consume the stream into Bytes or File first,
// which is what storage implementations do on insert.
type Stream struct {
	mediaType string

	mu       sync.Mutex
	body     io.ReadCloser
	consumed bool
}

// NewStream returns a payload wrapping the given body.
func NewStream(mediaType string, body io.ReadCloser) *Stream {
	return &Stream{mediaType: mediaType, body: body}
}

func (s *Stream) NewReader() (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.consumed {
		return nil, errors.New("stream payload already consumed")
	}
	s.consumed = true
	return s.body, nil
}

func (s *Stream) MediaType() string { return s.mediaType }

func (s *Stream) IsAvailable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.consumed
}

func (s *Stream) HasPayload() bool { return s.body != nil }
