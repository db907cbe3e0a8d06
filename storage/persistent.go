package storage

import (
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/stalefree/httpcache"
	"github.com/stalefree/httpcache/payload"
)

// DefaultSnapshotName is the metadata snapshot file under the storage root.
const DefaultSnapshotName = "snapshot.bin"

// PersistentConfig configures a PersistentStorage.
type PersistentConfig struct {
	// Root directory for payload files and the metadata snapshot.
	Root string
	// Capacity of the underlying in-memory index. Defaults to
	// DefaultCapacity.
	Capacity int
	// SnapshotName overrides DefaultSnapshotName.
	SnapshotName string
	// Policy decides when to snapshot. Defaults to DefaultSnapshotPolicy.
	Policy *SnapshotPolicy
	// Logger for diagnostics. The global zerolog logger is used if nil.
	Logger *zerolog.Logger
}

// PersistentStorage is the in-memory store extended with payload spill and
// metadata snapshots: payload bytes go to a hash-sharded file tree under the
// root, and the index is periodically serialised so a restart re-exposes the
// items present at the last successful snapshot.
type PersistentStorage struct {
	mem    *MemoryStorage
	files  *FileManager
	policy SnapshotPolicy
	log    zerolog.Logger

	snapshotPath string

	mu           sync.Mutex
	modCount     int
	lastSnapshot time.Time
}

// NewPersistentStorage opens (or creates) the store rooted at config.Root,
// loading the previous snapshot if one exists. A corrupt or unreadable
// snapshot is discarded and the store starts empty.
func NewPersistentStorage(config PersistentConfig) (*PersistentStorage, error) {
	if config.Root == "" {
		return nil, errors.New("storage root required")
	}
	files, err := NewFileManager(config.Root)
	if err != nil {
		return nil, err
	}
	logger := log.Logger
	if config.Logger != nil {
		logger = *config.Logger
	}
	policy := DefaultSnapshotPolicy()
	if config.Policy != nil {
		policy = *config.Policy
	}
	name := config.SnapshotName
	if name == "" {
		name = DefaultSnapshotName
	}
	s := &PersistentStorage{
		files:        files,
		policy:       policy,
		log:          logger.With().Str("root", files.Root()).Logger(),
		snapshotPath: filepath.Join(files.Root(), name),
		lastSnapshot: time.Now(),
	}
	s.mem = newMemoryStorage(config.Capacity, s.rewritePayload, s.onRemove)
	s.loadSnapshot()
	return s, nil
}

// rewritePayload spills the incoming stream to the payload file for key.
func (s *PersistentStorage) rewritePayload(key httpcache.Key, original payload.Payload, stream io.Reader) (payload.Payload, error) {
	path, err := s.files.Create(key, stream)
	if err != nil {
		return nil, err
	}
	return payload.NewFile(original.MediaType(), path), nil
}

// onRemove is the eviction listener: a key leaving the index drops its
// payload file.
func (s *PersistentStorage) onRemove(key httpcache.Key) {
	if err := s.files.Remove(key); err != nil {
		s.log.Error().Err(err).Str("uri", key.URI).Msg("Could not remove payload file")
	}
}

func (s *PersistentStorage) Get(req *httpcache.Request) *httpcache.CacheItem {
	return s.mem.Get(req)
}

func (s *PersistentStorage) Insert(req *httpcache.Request, resp *httpcache.Response) (*httpcache.Response, error) {
	stored, err := s.mem.Insert(req, resp)
	if err != nil {
		return stored, err
	}
	s.maybeSnapshot()
	return stored, nil
}

func (s *PersistentStorage) Update(req *httpcache.Request, resp *httpcache.Response) (*httpcache.Response, error) {
	stored, err := s.mem.Update(req, resp)
	if err != nil {
		return stored, err
	}
	s.maybeSnapshot()
	return stored, nil
}

func (s *PersistentStorage) Invalidate(uri string) {
	s.mem.Invalidate(uri)
	s.maybeSnapshot()
}

// Clear empties the index and deletes all on-disk state, including the
// snapshot.
func (s *PersistentStorage) Clear() error {
	if err := s.mem.Clear(); err != nil {
		return err
	}
	if err := os.Remove(s.snapshotPath); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "removing snapshot")
	}
	return s.files.Clear()
}

func (s *PersistentStorage) Size() int {
	return s.mem.Size()
}

func (s *PersistentStorage) Entries(fn func(httpcache.Key, *httpcache.CacheItem) bool) {
	s.mem.Entries(fn)
}

// Flush forces a metadata snapshot.
func (s *PersistentStorage) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

// Close writes a final best-effort snapshot. The store must not be used
// afterwards.
func (s *PersistentStorage) Close() error {
	return s.Flush()
}

// maybeSnapshot counts a mutation and snapshots when the policy says so.
// Snapshot write failures are logged and otherwise ignored.
func (s *PersistentStorage) maybeSnapshot() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.modCount++
	if !s.policy.shouldSnapshot(s.modCount, time.Since(s.lastSnapshot)) {
		return
	}
	if err := s.snapshot(); err != nil {
		s.log.Error().Err(err).Msg("Could not write snapshot")
	}
}

// snapshot serialises the index to the snapshot file, atomically. Callers
// hold s.mu.
func (s *PersistentStorage) snapshot() error {
	var entries []snapshotEntry
	var collectErr error
	s.mem.Entries(func(key httpcache.Key, item *httpcache.CacheItem) bool {
		e, err := entryForItem(key, item, s.files)
		if err != nil {
			collectErr = err
			return false
		}
		entries = append(entries, e)
		return true
	})
	if collectErr != nil {
		return collectErr
	}
	temp := filepath.Join(s.files.Root(), "."+uuid.NewString())
	file, err := os.Create(temp)
	if err != nil {
		return errors.Wrap(err, "creating snapshot file")
	}
	err = writeSnapshot(file, entries)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(temp)
		return errors.Wrap(err, "writing snapshot")
	}
	if err := os.Rename(temp, s.snapshotPath); err != nil {
		os.Remove(temp)
		return errors.Wrap(err, "publishing snapshot")
	}
	s.modCount = 0
	s.lastSnapshot = time.Now()
	return nil
}

// loadSnapshot restores the index from the snapshot file. Decode failures
// discard the file; entries whose payload file has gone missing are pruned.
func (s *PersistentStorage) loadSnapshot() {
	file, err := os.Open(s.snapshotPath)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Error().Err(err).Msg("Could not open snapshot, starting empty")
		}
		return
	}
	entries, err := readSnapshot(file)
	file.Close()
	if err != nil {
		s.log.Error().Err(err).Msg("Corrupt snapshot discarded, starting empty")
		os.Remove(s.snapshotPath)
		return
	}
	restored, pruned := 0, 0
	for _, e := range entries {
		item := itemForEntry(e, s.files.Root())
		if p := item.Response().Payload; p != nil && !p.IsAvailable() {
			pruned++
			continue
		}
		s.mem.restore(e.key, item)
		restored++
	}
	s.log.Debug().Int("restored", restored).Int("pruned", pruned).Msg("Loaded snapshot")
}
