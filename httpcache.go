package httpcache

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config carries the collaborators and tuning knobs for a Cache.
type Config struct {
	// Storage for cache entries.
	Storage Storage
	// Resolver that performs requests against the origin.
	Resolver Resolver
	// Logger to use. The global zerolog logger is used if nil.
	Logger *zerolog.Logger
	// DateTolerance is how old a stored Date header may be before it is
	// replaced with the current time when serving from the cache.
	// Defaults to one minute.
	DateTolerance time.Duration
}

// Cache is the caching protocol engine. It answers each request from
// storage when it can, revalidates with a conditional request when it must,
// and falls through to the resolver otherwise.
type Cache struct {
	storage       Storage
	resolver      Resolver
	stats         Statistics
	locks         *uriLocks
	log           zerolog.Logger
	dateTolerance time.Duration
}

// New creates a cache engine from the given configuration.
func New(config Config) *Cache {
	logger := log.Logger
	if config.Logger != nil {
		logger = *config.Logger
	}
	tolerance := config.DateTolerance
	if tolerance == 0 {
		tolerance = time.Minute
	}
	return &Cache{
		storage:       config.Storage,
		resolver:      config.Resolver,
		locks:         newURILocks(),
		log:           logger,
		dateTolerance: tolerance,
	}
}

// Statistics returns the engine's hit/miss counters.
func (c *Cache) Statistics() *Statistics {
	return &c.stats
}

// Storage returns the configured storage.
func (c *Cache) Storage() Storage {
	return c.storage
}

// Clear empties the underlying storage.
func (c *Cache) Clear() error {
	return c.storage.Clear()
}

// Resolve answers the request from the cache, revalidating or fetching from
// the origin as needed. When force is true any stored response is ignored
// and the origin is contacted unconditionally (the result is still stored
// if cacheable).
func (c *Cache) Resolve(req *Request, force bool) (*Response, error) {
	if c.resolver == nil || c.storage == nil {
		return nil, ErrMisconfigured
	}
	if !isCacheableRequest(req) {
		return c.writeThrough(req)
	}
	release := c.locks.acquire(req.URI())
	defer release()
	return c.fromCache(req, force || req.Headers.CacheControl().NoCache())
}

// writeThrough handles requests that must bypass the cache. The response is
// never stored. Unsafe methods invalidate every stored variant of the URI
// before the request is forwarded, and successful responses additionally
// invalidate their Location targets.
func (c *Cache) writeThrough(req *Request) (*Response, error) {
	unsafe := !req.Method.IsSafe()
	if unsafe {
		c.log.Trace().Str("uri", req.URI()).Msg("Invalidating stored variants for unsafe request")
		c.storage.Invalidate(req.URI())
	}
	resolved, err := c.resolver.Resolve(req)
	if err != nil {
		return nil, &UpstreamError{Err: err}
	}
	if unsafe && resolved.Status < 400 {
		for _, uri := range invalidationURIs(req, resolved) {
			c.storage.Invalidate(uri)
		}
	}
	return resolved, nil
}

func (c *Cache) fromCache(req *Request, force bool) (*Response, error) {
	if force {
		return c.handleResolve(req, nil)
	}
	item := c.storage.Get(req)
	if item == nil {
		c.stats.miss()
		c.log.Trace().Str("uri", req.URI()).Msg("Cache miss")
		return c.handleResolve(req, nil)
	}
	c.stats.hit()
	now := time.Now()
	reqCC := req.Headers.CacheControl()
	if !item.IsStale(reqCC, now) {
		c.log.Trace().Str("uri", req.URI()).Msg("Serving fresh response")
		return rewriteResponse(item, now, c.dateTolerance), nil
	}
	if allowStale(item.Response(), reqCC, item.CachedAt(), now) {
		c.log.Trace().Str("uri", req.URI()).Msg("Serving stale response")
		return warn(rewriteResponse(item, now, c.dateTolerance), warnResponseIsStale), nil
	}
	return c.handleResolve(c.conditionalRequest(req, item), item)
}

// conditionalRequest prepares the validation request for a stale item. If
// the stored payload has gone missing the conditionals are cleared instead,
// so the origin has to send a full body.
func (c *Cache) conditionalRequest(req *Request, item *CacheItem) *Request {
	cached := item.Response()
	if cached.Payload != nil && cached.Payload.HasPayload() && !cached.Payload.IsAvailable() {
		c.log.Debug().Str("uri", req.URI()).Msg("Stored payload unavailable, revalidating unconditionally")
		return clearConditionals(req)
	}
	return prepareConditionalRequest(req, cached)
}

// handleResolve forwards the request to the resolver and reconciles the
// outcome with the stored item, if any.
func (c *Cache) handleResolve(req *Request, item *CacheItem) (*Response, error) {
	resolved, err := c.resolver.Resolve(req)
	if err != nil {
		if item == nil {
			return nil, &UpstreamError{Err: err}
		}
		c.log.Warn().Err(err).Str("uri", req.URI()).Msg("Revalidation failed, serving stale response")
		return warn(rewriteResponse(item, time.Now(), c.dateTolerance), warnRevalidationFailed), nil
	}
	if item != nil && (resolved.Status == 304 ||
		(req.Method == MethodHead && resolved.Status >= 200 && resolved.Status < 300)) {
		return c.updateFromResolved(req, item, resolved)
	}
	if req.Method == MethodHead {
		// a HEAD response has no body, so storing it would poison later
		// GETs with a payload-less item
		return resolved, nil
	}
	if isCacheableResponse(resolved) {
		stored, err := c.storage.Insert(req, resolved)
		if err != nil {
			c.log.Error().Err(err).Str("uri", req.URI()).Msg("Could not write to cache")
			return resolved, nil
		}
		c.log.Trace().Str("uri", req.URI()).Msg("Stored response")
		return stored, nil
	}
	return resolved, nil
}

// updateFromResolved freshens the stored item with the headers of a 304 (or
// a HEAD response), keeping the stored payload.
func (c *Cache) updateFromResolved(req *Request, item *CacheItem, resolved *Response) (*Response, error) {
	cached := item.Response()
	updated := &Response{
		Status:  cached.Status,
		Headers: mergeHeaders(cached.Headers, resolved.Headers),
		Payload: cached.Payload,
	}
	stored, err := c.storage.Update(req, updated)
	if err != nil {
		c.log.Error().Err(err).Str("uri", req.URI()).Msg("Could not update cache")
		stored = updated
	} else {
		c.log.Trace().Str("uri", req.URI()).Msg("Freshened stored response")
	}
	// hand the freshened item through the same rewrite as a cache hit, so
	// the caller sees the restarted Age rather than the pre-revalidation one
	now := time.Now()
	return rewriteResponse(NewCacheItem(stored, now), now, c.dateTolerance), nil
}
