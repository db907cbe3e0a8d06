package storage

import (
	"bufio"
	"encoding/binary"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/stalefree/httpcache"
	"github.com/stalefree/httpcache/header"
	"github.com/stalefree/httpcache/payload"
)

// Snapshot file format: a 4-byte magic, a version, an entry count and that
// many length-prefixed entries. Anything unexpected fails decoding, which
// makes the loader discard the file and start empty.
var snapshotMagic = [4]byte{'H', 'T', 'C', 'S'}

const snapshotVersion uint32 = 1

const (
	payloadNone   byte = 0
	payloadFile   byte = 1
	payloadInline byte = 2
)

// maxBlob bounds every length prefix read from disk, so a corrupt file
// cannot trigger a huge allocation before the decode error surfaces.
const maxBlob = 1 << 30

// snapshotEntry is the serialised form of one stored item.
type snapshotEntry struct {
	key      httpcache.Key
	status   int
	headers  header.Headers
	cachedAt time.Time

	payloadKind byte
	mediaType   string
	filePath    string // relative to the storage root, payloadFile only
	inline      []byte // payloadInline only
}

func writeSnapshot(w io.Writer, entries []snapshotEntry) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.Write(snapshotMagic[:]); err != nil {
		return err
	}
	if err := writeUint32(bw, snapshotVersion); err != nil {
		return err
	}
	if err := writeUint32(bw, uint32(len(entries))); err != nil {
		return err
	}
	for _, e := range entries {
		if err := encodeEntry(bw, e); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func readSnapshot(r io.Reader) ([]snapshotEntry, error) {
	br := bufio.NewReader(r)
	var magic [4]byte
	if _, err := io.ReadFull(br, magic[:]); err != nil {
		return nil, errors.Wrap(err, "reading snapshot magic")
	}
	if magic != snapshotMagic {
		return nil, errors.New("bad snapshot magic")
	}
	version, err := readUint32(br)
	if err != nil {
		return nil, err
	}
	if version != snapshotVersion {
		return nil, errors.Errorf("unsupported snapshot version %d", version)
	}
	count, err := readUint32(br)
	if err != nil {
		return nil, err
	}
	if count > maxBlob {
		return nil, errors.New("implausible snapshot entry count")
	}
	entries := make([]snapshotEntry, 0, count)
	for i := uint32(0); i < count; i++ {
		e, err := decodeEntry(br)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func encodeEntry(w io.Writer, e snapshotEntry) error {
	if err := writeString(w, e.key.URI); err != nil {
		return err
	}
	if err := writeString(w, e.key.Variant); err != nil {
		return err
	}
	if err := writeUint32(w, uint32(e.status)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, e.cachedAt.UnixNano()); err != nil {
		return err
	}
	if err := writeUint32(w, uint32(e.headers.Size())); err != nil {
		return err
	}
	var headerErr error
	e.headers.Each(func(h header.Header) bool {
		if headerErr = writeString(w, h.Name); headerErr != nil {
			return false
		}
		headerErr = writeString(w, h.Value)
		return headerErr == nil
	})
	if headerErr != nil {
		return headerErr
	}
	if _, err := w.Write([]byte{e.payloadKind}); err != nil {
		return err
	}
	switch e.payloadKind {
	case payloadNone:
	case payloadFile:
		if err := writeString(w, e.mediaType); err != nil {
			return err
		}
		return writeString(w, e.filePath)
	case payloadInline:
		if err := writeString(w, e.mediaType); err != nil {
			return err
		}
		return writeBytes(w, e.inline)
	default:
		return errors.Errorf("unknown payload kind %d", e.payloadKind)
	}
	return nil
}

func decodeEntry(r io.Reader) (snapshotEntry, error) {
	var e snapshotEntry
	var err error
	if e.key.URI, err = readString(r); err != nil {
		return e, err
	}
	if e.key.Variant, err = readString(r); err != nil {
		return e, err
	}
	status, err := readUint32(r)
	if err != nil {
		return e, err
	}
	e.status = int(status)
	var nanos int64
	if err := binary.Read(r, binary.BigEndian, &nanos); err != nil {
		return e, err
	}
	e.cachedAt = time.Unix(0, nanos)
	headerCount, err := readUint32(r)
	if err != nil {
		return e, err
	}
	if headerCount > maxBlob {
		return e, errors.New("implausible header count")
	}
	for i := uint32(0); i < headerCount; i++ {
		name, err := readString(r)
		if err != nil {
			return e, err
		}
		value, err := readString(r)
		if err != nil {
			return e, err
		}
		e.headers = e.headers.Add(name, value)
	}
	var kind [1]byte
	if _, err := io.ReadFull(r, kind[:]); err != nil {
		return e, err
	}
	e.payloadKind = kind[0]
	switch e.payloadKind {
	case payloadNone:
	case payloadFile:
		if e.mediaType, err = readString(r); err != nil {
			return e, err
		}
		if e.filePath, err = readString(r); err != nil {
			return e, err
		}
	case payloadInline:
		if e.mediaType, err = readString(r); err != nil {
			return e, err
		}
		if e.inline, err = readBytes(r); err != nil {
			return e, err
		}
	default:
		return e, errors.Errorf("unknown payload kind %d", e.payloadKind)
	}
	return e, nil
}

// entryForItem serialises a stored item. File payloads are recorded as
// root-relative references; byte payloads inline.
func entryForItem(key httpcache.Key, item *httpcache.CacheItem, files *FileManager) (snapshotEntry, error) {
	resp := item.Response()
	e := snapshotEntry{
		key:      key,
		status:   resp.Status,
		headers:  resp.Headers,
		cachedAt: item.CachedAt(),
	}
	switch p := resp.Payload.(type) {
	case nil:
		e.payloadKind = payloadNone
	case *payload.File:
		e.payloadKind = payloadFile
		e.mediaType = p.MediaType()
		e.filePath = p.Path()
		if files != nil {
			if rel, err := filepath.Rel(files.Root(), p.Path()); err == nil && !strings.HasPrefix(rel, "..") {
				e.filePath = rel
			}
		}
	default:
		stream, err := p.NewReader()
		if err != nil {
			return e, errors.Wrap(err, "reading payload for snapshot")
		}
		defer stream.Close()
		data, err := io.ReadAll(stream)
		if err != nil {
			return e, errors.Wrap(err, "buffering payload for snapshot")
		}
		e.payloadKind = payloadInline
		e.mediaType = p.MediaType()
		e.inline = data
	}
	return e, nil
}

// itemForEntry rebuilds the stored item. root anchors file payload
// references.
func itemForEntry(e snapshotEntry, root string) *httpcache.CacheItem {
	var p payload.Payload
	switch e.payloadKind {
	case payloadFile:
		path := e.filePath
		if root != "" && !filepath.IsAbs(path) {
			path = filepath.Join(root, e.filePath)
		}
		p = payload.NewFile(e.mediaType, path)
	case payloadInline:
		p = payload.NewBytes(e.mediaType, e.inline)
	}
	resp := &httpcache.Response{Status: e.status, Headers: e.headers, Payload: p}
	return httpcache.NewCacheItem(resp, e.cachedAt)
}

func writeUint32(w io.Writer, v uint32) error {
	return binary.Write(w, binary.BigEndian, v)
}

func readUint32(r io.Reader) (uint32, error) {
	var v uint32
	err := binary.Read(r, binary.BigEndian, &v)
	return v, err
}

func writeString(w io.Writer, s string) error {
	return writeBytes(w, []byte(s))
}

func writeBytes(w io.Writer, b []byte) error {
	if err := writeUint32(w, uint32(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readString(r io.Reader) (string, error) {
	b, err := readBytes(r)
	return string(b), err
}

func readBytes(r io.Reader) ([]byte, error) {
	length, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	if length > maxBlob {
		return nil, errors.New("implausible length prefix")
	}
	b := make([]byte, length)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}
