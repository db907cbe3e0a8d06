package httpcache

import "github.com/pkg/errors"

// ErrMisconfigured is returned by Resolve when no resolver or no storage has
// been set.
var ErrMisconfigured = errors.New("no resolver configured")

// UpstreamError reports that the resolver failed and no stored fallback
// existed to serve instead.
type UpstreamError struct {
	Err error
}

func (e *UpstreamError) Error() string {
	return "resolving from upstream: " + e.Err.Error()
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Cause supports pkg/errors-style cause chains.
func (e *UpstreamError) Cause() error { return e.Err }
