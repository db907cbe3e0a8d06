package httpcache

import (
	"time"

	"github.com/stalefree/httpcache/header"
)

// currentAge estimates how old the stored response is, per the RFC 2616
// age calculation:
//
//	apparent_age = max(0, response_time - date_value)
//	current_age  = apparent_age + resident_time + age_value
func currentAge(resp *Response, cachedAt, now time.Time) time.Duration {
	var apparent time.Duration
	if date, ok := resp.Headers.Date(); ok {
		apparent = durationMax(0, cachedAt.Sub(date))
	}
	age, _ := resp.Headers.Age()
	return apparent + now.Sub(cachedAt) + age
}

// freshnessLifetime computes how long the response stays fresh, evaluating
// the following rules and using the first match: s-maxage, max-age,
// Expires minus Date. Without explicit expiration the lifetime is zero;
// heuristic freshness is not applied.
func freshnessLifetime(resp *Response) time.Duration {
	cc := resp.Headers.CacheControl()
	if val, ok := cc.SMaxAge(); ok {
		return val
	}
	if val, ok := cc.MaxAge(); ok {
		return val
	}
	if expires, ok := resp.Headers.Expires(); ok {
		if date, ok := resp.Headers.Date(); ok {
			return expires.Sub(date)
		}
	}
	return 0
}

// isFresh reports whether the stored response may be served without
// revalidation. A response carrying no-cache is always treated as stale.
// A min-fresh request directive demands the response stay fresh for at
// least that much longer.
func isFresh(resp *Response, reqCC header.CacheControl, cachedAt, now time.Time) bool {
	if resp.Headers.CacheControl().NoCache() {
		return false
	}
	age := currentAge(resp, cachedAt, now)
	if minFresh, ok := reqCC.MinFresh(); ok {
		age += minFresh
	}
	return age < freshnessLifetime(resp)
}

// allowStale reports whether a stale stored response may be served without
// revalidation: a max-stale directive on the request or the stored response
// must permit the current staleness, and no must-revalidate or
// proxy-revalidate directive may apply.
func allowStale(resp *Response, reqCC header.CacheControl, cachedAt, now time.Time) bool {
	resCC := resp.Headers.CacheControl()
	if resCC.MustRevalidate() || resCC.ProxyRevalidate() {
		return false
	}
	for _, cc := range []header.CacheControl{reqCC, resCC} {
		delta, hasDelta, present := cc.MaxStale()
		if !present {
			continue
		}
		if !hasDelta {
			return true
		}
		staleness := currentAge(resp, cachedAt, now) - freshnessLifetime(resp)
		if staleness <= delta {
			return true
		}
	}
	return false
}

func durationMax(d1, d2 time.Duration) time.Duration {
	if d1 > d2 {
		return d1
	}
	return d2
}
