package credential

import "net/http"

// Transport is an [http.RoundTripper] that attaches the cached service token
// to every outgoing request. Wrap a peer client with it instead of setting
// headers by hand:
//
//	client := &http.Client{Transport: credential.NewTransport(cache, nil)}
type Transport struct {
	cache *Cache
	base  http.RoundTripper
}

// NewTransport wraps base with token attachment. A nil base uses
// [http.DefaultTransport].
func NewTransport(cache *Cache, base http.RoundTripper) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{cache: cache, base: base}
}

// RoundTrip attaches the Authorization header and delegates to the base
// transport. Per the RoundTripper contract the request is cloned, not
// mutated.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	header, err := t.cache.AuthorizationHeader(req.Context())
	if err != nil {
		return nil, err
	}
	cloned := req.Clone(req.Context())
	cloned.Header.Set("Authorization", header)
	return t.base.RoundTrip(cloned)
}
