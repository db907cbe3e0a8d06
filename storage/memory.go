// Package storage provides the concrete cache stores: a bounded in-memory
// LRU, a persistent variant that spills payloads to a file tree and
// snapshots its metadata, and a single-file SQLite-backed store.
package storage

import (
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/stalefree/httpcache"
	"github.com/stalefree/httpcache/payload"
)

// DefaultCapacity bounds stores constructed without an explicit capacity.
const DefaultCapacity = 1000

// ErrNotCacheable is returned by Insert for responses that cannot be keyed,
// i.e. responses carrying Vary: *.
var ErrNotCacheable = errors.New("response is not cacheable")

// KeyListener is notified when an item leaves the store through eviction or
// invalidation. The persistent store uses this to drop spilled payload files.
type KeyListener func(key httpcache.Key)

// PayloadRewriter consumes the incoming payload stream exactly once and
// produces the stable payload the store will own. Returning nil stores a
// headers-only item.
type PayloadRewriter func(key httpcache.Key, original payload.Payload, stream io.Reader) (payload.Payload, error)

// MemoryStorage is a bounded LRU from (URI, variant) to cache items.
//
// A single readers-writer lock protects the maps: Get, Size and Entries
// take the read side, mutations the write side. Recency is tracked with a
// per-entry sequence number so that Get stays a reader.
type MemoryStorage struct {
	mu       sync.RWMutex
	capacity int
	uris     map[string]map[string]*memoryEntry
	count    int

	clock    atomic.Int64
	rewrite  PayloadRewriter
	listener KeyListener
}

type memoryEntry struct {
	key      httpcache.Key
	item     *httpcache.CacheItem
	lastUsed atomic.Int64
}

// NewMemoryStorage returns a store holding at most capacity items.
// A capacity of zero or less gets DefaultCapacity.
func NewMemoryStorage(capacity int) *MemoryStorage {
	return newMemoryStorage(capacity, bufferRewriter, nil)
}

func newMemoryStorage(capacity int, rewrite PayloadRewriter, listener KeyListener) *MemoryStorage {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &MemoryStorage{
		capacity: capacity,
		uris:     make(map[string]map[string]*memoryEntry),
		rewrite:  rewrite,
		listener: listener,
	}
}

// bufferRewriter consumes the stream into an in-memory byte payload.
func bufferRewriter(_ httpcache.Key, original payload.Payload, stream io.Reader) (payload.Payload, error) {
	data, err := io.ReadAll(stream)
	if err != nil {
		return nil, errors.Wrap(err, "buffering payload")
	}
	return payload.NewBytes(original.MediaType(), data), nil
}

func (s *MemoryStorage) Get(req *httpcache.Request) *httpcache.CacheItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, entry := range s.uris[req.URI()] {
		if httpcache.MatchesVariant(entry.key, entry.item, req) {
			entry.lastUsed.Store(s.clock.Add(1))
			return entry.item
		}
	}
	return nil
}

func (s *MemoryStorage) Insert(req *httpcache.Request, resp *httpcache.Response) (*httpcache.Response, error) {
	key, ok := httpcache.KeyForResponse(req, resp)
	if !ok {
		return resp, ErrNotCacheable
	}
	stored, err := s.rewriteResponse(key, resp)
	if err != nil {
		return resp, err
	}
	item := httpcache.NewCacheItem(stored, time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()
	s.put(key, item)
	return stored, nil
}

// rewriteResponse runs the payload through the rewriter hook, producing the
// response the store will own. The incoming stream is consumed here, outside
// the store lock.
func (s *MemoryStorage) rewriteResponse(key httpcache.Key, resp *httpcache.Response) (*httpcache.Response, error) {
	var stored payload.Payload
	if resp.Payload != nil && resp.Payload.HasPayload() {
		stream, err := resp.Payload.NewReader()
		if err != nil {
			return nil, errors.Wrap(err, "reading response payload")
		}
		defer stream.Close()
		if stored, err = s.rewrite(key, resp.Payload, stream); err != nil {
			return nil, err
		}
	}
	return &httpcache.Response{Status: resp.Status, Headers: resp.Headers, Payload: stored}, nil
}

func (s *MemoryStorage) Update(req *httpcache.Request, resp *httpcache.Response) (*httpcache.Response, error) {
	key, ok := httpcache.KeyForResponse(req, resp)
	if !ok {
		return resp, ErrNotCacheable
	}
	item := httpcache.NewCacheItem(resp, time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()
	// the merged headers may nominate different vary fields than the stored
	// ones, so drop whichever variant matched the request first
	for variant, entry := range s.uris[req.URI()] {
		if httpcache.MatchesVariant(entry.key, entry.item, req) {
			delete(s.uris[req.URI()], variant)
			s.count--
			break
		}
	}
	s.put(key, item)
	return resp, nil
}

// put stores the item under key, replacing any existing variant and evicting
// the least-recently-used entry when over capacity. Callers hold the write
// lock.
func (s *MemoryStorage) put(key httpcache.Key, item *httpcache.CacheItem) {
	variants := s.uris[key.URI]
	if variants == nil {
		variants = make(map[string]*memoryEntry)
		s.uris[key.URI] = variants
	}
	if _, exists := variants[key.Variant]; !exists {
		s.count++
	}
	entry := &memoryEntry{key: key, item: item}
	entry.lastUsed.Store(s.clock.Add(1))
	variants[key.Variant] = entry

	for s.count > s.capacity {
		s.evictOldest()
	}
}

func (s *MemoryStorage) evictOldest() {
	var oldest *memoryEntry
	for _, variants := range s.uris {
		for _, entry := range variants {
			if oldest == nil || entry.lastUsed.Load() < oldest.lastUsed.Load() {
				oldest = entry
			}
		}
	}
	if oldest == nil {
		return
	}
	s.remove(oldest.key)
	if s.listener != nil {
		s.listener(oldest.key)
	}
}

// remove deletes the entry for key. Callers hold the write lock.
func (s *MemoryStorage) remove(key httpcache.Key) {
	variants := s.uris[key.URI]
	if _, ok := variants[key.Variant]; !ok {
		return
	}
	delete(variants, key.Variant)
	if len(variants) == 0 {
		delete(s.uris, key.URI)
	}
	s.count--
}

func (s *MemoryStorage) Invalidate(uri string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	variants := s.uris[uri]
	delete(s.uris, uri)
	s.count -= len(variants)
	if s.listener != nil {
		for _, entry := range variants {
			s.listener(entry.key)
		}
	}
}

func (s *MemoryStorage) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uris = make(map[string]map[string]*memoryEntry)
	s.count = 0
	return nil
}

func (s *MemoryStorage) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count
}

func (s *MemoryStorage) Entries(fn func(httpcache.Key, *httpcache.CacheItem) bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, variants := range s.uris {
		for _, entry := range variants {
			if !fn(entry.key, entry.item) {
				return
			}
		}
	}
}

// restore puts a previously stored item back without re-stamping or
// rewriting it. Used when loading a snapshot.
func (s *MemoryStorage) restore(key httpcache.Key, item *httpcache.CacheItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.put(key, item)
}
