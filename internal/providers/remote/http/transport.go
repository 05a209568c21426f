package http

import (
	"context"
	"net/http"
)

type requestLimiter interface {
	Wait(ctx context.Context) error
}

func buildTransport(base http.RoundTripper, limiter requestLimiter) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	var rt http.RoundTripper = &userAgentRoundTripper{userAgent: defaultUserAgent, inner: base}
	if limiter != nil {
		rt = &rateLimitedRoundTripper{limiter: limiter, inner: rt}
	}
	return rt
}

type userAgentRoundTripper struct {
	userAgent string
	inner     http.RoundTripper
}

func (rt *userAgentRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", rt.userAgent)
	}
	return rt.inner.RoundTrip(req)
}

// rateLimitedRoundTripper blocks until the limiter grants a token or the
// request context ends.
type rateLimitedRoundTripper struct {
	limiter requestLimiter
	inner   http.RoundTripper
}

func (rt *rateLimitedRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := rt.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	return rt.inner.RoundTrip(req)
}
