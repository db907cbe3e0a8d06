package httpcache

import (
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/stalefree/httpcache/header"
	"github.com/stalefree/httpcache/payload"
)

// Resolver performs a request against the origin. It must not interpret
// cache headers; it returns whatever the origin sent.
type Resolver interface {
	Resolve(req *Request) (*Response, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(req *Request) (*Response, error)

func (f ResolverFunc) Resolve(req *Request) (*Response, error) {
	return f(req)
}

// TransportResolver resolves requests through an *http.Client.
type TransportResolver struct {
	client *http.Client
}

// NewTransportResolver returns a resolver backed by the given client.
// A nil client gets a default one that does not follow redirects, so
// redirect responses reach the cache unchanged.
func NewTransportResolver(client *http.Client) *TransportResolver {
	if client == nil {
		client = &http.Client{
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		}
	}
	return &TransportResolver{client: client}
}

func (t *TransportResolver) Resolve(req *Request) (*Response, error) {
	outgoing, err := t.buildRequest(req)
	if err != nil {
		return nil, err
	}
	res, err := t.client.Do(outgoing)
	if err != nil {
		return nil, err
	}
	// see RFC 9110 §6.6.1: a recipient without a clock uses the time of
	// reception; backfill so the freshness calculations always have a Date
	if res.Header.Get(header.DateHeader) == "" {
		res.Header.Set(header.DateHeader, header.FormatDate(time.Now()))
	}
	return fromHTTPResponse(res), nil
}

func (t *TransportResolver) buildRequest(req *Request) (*http.Request, error) {
	outgoing, err := http.NewRequest(string(req.Method), req.URI(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "building upstream request")
	}
	if req.HasPayload() {
		// need to specifically leave body nil on zero-length content,
		// see https://github.com/golang/go/issues/16036
		body, err := req.Payload.NewReader()
		if err != nil {
			return nil, errors.Wrap(err, "reading request payload")
		}
		outgoing.Body = body
		if mt := req.Payload.MediaType(); mt != "" {
			outgoing.Header.Set(header.ContentTypeHeader, mt)
		}
	}
	req.Headers.Each(func(h header.Header) bool {
		outgoing.Header.Add(h.Name, h.Value)
		return true
	})
	// do not forward the connection header, this causes trouble upstream
	outgoing.Header.Del("Connection")
	return outgoing, nil
}

func fromHTTPResponse(res *http.Response) *Response {
	headers := header.Headers{}
	for name, values := range res.Header {
		for _, value := range values {
			headers = headers.Add(name, value)
		}
	}
	var p payload.Payload
	if res.Body != nil && res.StatusCode != http.StatusNotModified && res.StatusCode != http.StatusNoContent {
		p = payload.NewStream(res.Header.Get(header.ContentTypeHeader), res.Body)
	}
	return &Response{Status: res.StatusCode, Headers: headers, Payload: p}
}
