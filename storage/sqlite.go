package storage

import (
	"bytes"
	"database/sql"
	"io"
	"sync"
	"time"

	_ "github.com/glebarez/go-sqlite"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/stalefree/httpcache"
	"github.com/stalefree/httpcache/payload"
)

// SQLiteStorage keeps all cache state, payloads included, in a single
// SQLite file. It trades the file tree of PersistentStorage for a
// self-contained database that survives restarts by construction.
type SQLiteStorage struct {
	db         *sql.DB
	writeMutex sync.Mutex
	log        zerolog.Logger
}

// NewSQLiteStorage opens (or creates) the database at path.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "opening cache database")
	}
	if _, err := db.Exec("CREATE TABLE IF NOT EXISTS entries (uri TEXT, variant TEXT, data BLOB, PRIMARY KEY (uri, variant))"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "creating entries table")
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "enabling WAL")
	}
	return &SQLiteStorage{db: db, log: log.Logger}, nil
}

// Close closes the underlying database.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func (s *SQLiteStorage) Get(req *httpcache.Request) *httpcache.CacheItem {
	rows, err := s.db.Query("SELECT data FROM entries WHERE uri = ?", req.URI())
	if err != nil {
		s.log.Error().Err(err).Str("uri", req.URI()).Msg("Could not query cache")
		return nil
	}
	defer rows.Close()
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			s.log.Error().Err(err).Msg("Could not scan cache row")
			return nil
		}
		entry, err := decodeEntry(bytes.NewReader(data))
		if err != nil {
			s.log.Error().Err(err).Msg("Could not decode cache row")
			continue
		}
		item := itemForEntry(entry, "")
		if httpcache.MatchesVariant(entry.key, item, req) {
			return item
		}
	}
	return nil
}

func (s *SQLiteStorage) Insert(req *httpcache.Request, resp *httpcache.Response) (*httpcache.Response, error) {
	key, ok := httpcache.KeyForResponse(req, resp)
	if !ok {
		return resp, ErrNotCacheable
	}
	return s.put(key, resp)
}

func (s *SQLiteStorage) Update(req *httpcache.Request, resp *httpcache.Response) (*httpcache.Response, error) {
	key, ok := httpcache.KeyForResponse(req, resp)
	if !ok {
		return resp, ErrNotCacheable
	}
	// the merged headers may nominate different vary fields, so drop the
	// variant that matched the request before storing the new one
	if existing := s.Get(req); existing != nil {
		if oldKey, ok := httpcache.KeyForResponse(req, existing.Response()); ok && oldKey != key {
			s.writeMutex.Lock()
			_, err := s.db.Exec("DELETE FROM entries WHERE uri = ? AND variant = ?", oldKey.URI, oldKey.Variant)
			s.writeMutex.Unlock()
			if err != nil {
				return resp, errors.Wrap(err, "removing stale variant")
			}
		}
	}
	return s.put(key, resp)
}

// put serialises the response, payload inlined, and upserts it.
func (s *SQLiteStorage) put(key httpcache.Key, resp *httpcache.Response) (*httpcache.Response, error) {
	stored, entry, err := inlineEntry(key, resp, time.Now())
	if err != nil {
		return resp, err
	}
	var buf bytes.Buffer
	if err := encodeEntry(&buf, entry); err != nil {
		return resp, errors.Wrap(err, "encoding cache entry")
	}
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	if _, err := s.db.Exec("INSERT OR REPLACE INTO entries (uri, variant, data) VALUES (?, ?, ?)",
		key.URI, key.Variant, buf.Bytes()); err != nil {
		return resp, errors.Wrap(err, "writing cache entry")
	}
	return stored, nil
}

// inlineEntry consumes the response payload into memory and builds the
// serialised entry plus the stable response handed back to the caller.
func inlineEntry(key httpcache.Key, resp *httpcache.Response, cachedAt time.Time) (*httpcache.Response, snapshotEntry, error) {
	entry := snapshotEntry{
		key:         key,
		status:      resp.Status,
		headers:     resp.Headers,
		cachedAt:    cachedAt,
		payloadKind: payloadNone,
	}
	stored := &httpcache.Response{Status: resp.Status, Headers: resp.Headers}
	if resp.Payload != nil && resp.Payload.HasPayload() {
		stream, err := resp.Payload.NewReader()
		if err != nil {
			return nil, entry, errors.Wrap(err, "reading response payload")
		}
		data, err := io.ReadAll(stream)
		stream.Close()
		if err != nil {
			return nil, entry, errors.Wrap(err, "buffering response payload")
		}
		entry.payloadKind = payloadInline
		entry.mediaType = resp.Payload.MediaType()
		entry.inline = data
		stored.Payload = payload.NewBytes(entry.mediaType, data)
	}
	return stored, entry, nil
}

func (s *SQLiteStorage) Invalidate(uri string) {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	if _, err := s.db.Exec("DELETE FROM entries WHERE uri = ?", uri); err != nil {
		s.log.Error().Err(err).Str("uri", uri).Msg("Could not invalidate")
	}
}

func (s *SQLiteStorage) Clear() error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	_, err := s.db.Exec("DELETE FROM entries")
	return errors.Wrap(err, "clearing cache")
}

func (s *SQLiteStorage) Size() int {
	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM entries").Scan(&count); err != nil {
		s.log.Error().Err(err).Msg("Could not count entries")
		return 0
	}
	return count
}

func (s *SQLiteStorage) Entries(fn func(httpcache.Key, *httpcache.CacheItem) bool) {
	rows, err := s.db.Query("SELECT data FROM entries")
	if err != nil {
		s.log.Error().Err(err).Msg("Could not list entries")
		return
	}
	defer rows.Close()
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return
		}
		entry, err := decodeEntry(bytes.NewReader(data))
		if err != nil {
			continue
		}
		if !fn(entry.key, itemForEntry(entry, "")) {
			return
		}
	}
}
