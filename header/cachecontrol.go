package header

import (
	"strconv"
	"strings"
	"time"
)

// CacheControl holds the parsed directives of a Cache-Control field.
type CacheControl struct {
	directives map[string]string
}

// ParseCacheControl takes Cache-Control field values as a slice of strings
// and returns an instance of CacheControl.
func ParseCacheControl(values []string) CacheControl {
	m := make(map[string]string)
	// note setting map values like this means last defined directive wins
	for _, value := range values {
		for _, directive := range strings.Split(value, ",") {
			parts := strings.SplitN(strings.TrimSpace(directive), "=", 2)
			name := strings.ToLower(parts[0])
			if name == "" {
				continue
			}
			var arg string
			if len(parts) > 1 {
				// arguments can use both token and quoted-string syntax
				arg = strings.Trim(parts[1], "\"")
			}
			m[name] = arg
		}
	}
	return CacheControl{m}
}

// Get returns the argument of the named directive.
func (c CacheControl) Get(directive string) (string, bool) {
	val, ok := c.directives[directive]
	return val, ok
}

// Has reports whether the named directive is present.
func (c CacheControl) Has(directive string) bool {
	_, ok := c.directives[directive]
	return ok
}

// MaxAge returns the max-age directive value.
func (c CacheControl) MaxAge() (time.Duration, bool) {
	return c.deltaSeconds("max-age")
}

// SMaxAge returns the s-maxage directive value.
func (c CacheControl) SMaxAge() (time.Duration, bool) {
	return c.deltaSeconds("s-maxage")
}

// MinFresh returns the min-fresh directive value.
func (c CacheControl) MinFresh() (time.Duration, bool) {
	return c.deltaSeconds("min-fresh")
}

// MaxStale reports whether max-stale is present and, if it carries a delta,
// the parsed delta. A max-stale without argument accepts any staleness.
func (c CacheControl) MaxStale() (delta time.Duration, hasDelta bool, present bool) {
	arg, ok := c.Get("max-stale")
	if !ok {
		return 0, false, false
	}
	if arg == "" {
		return 0, false, true
	}
	return deltaSeconds(arg), true, true
}

func (c CacheControl) NoCache() bool {
	return c.Has("no-cache")
}

func (c CacheControl) NoStore() bool {
	return c.Has("no-store")
}

func (c CacheControl) MustRevalidate() bool {
	return c.Has("must-revalidate")
}

func (c CacheControl) ProxyRevalidate() bool {
	return c.Has("proxy-revalidate")
}

func (c CacheControl) Public() bool {
	return c.Has("public")
}

func (c CacheControl) Private() bool {
	return c.Has("private")
}

func (c CacheControl) deltaSeconds(directive string) (time.Duration, bool) {
	if arg, ok := c.Get(directive); ok {
		return deltaSeconds(arg), true
	}
	return 0, false
}

// deltaSeconds parses a delta-seconds value. Invalid values yield 0, which
// makes the affected response stale rather than fresh forever.
func deltaSeconds(s string) time.Duration {
	if seconds, err := strconv.ParseUint(s, 10, 32); err == nil {
		return time.Second * time.Duration(seconds)
	}
	return 0
}

// ToDeltaSeconds formats a duration as a delta-seconds value.
func ToDeltaSeconds(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return strconv.FormatInt(int64(d.Seconds()), 10)
}
