// Package httpclient builds the upstream transport used by the reverse proxy.
package httpclient

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"edgeguard/internal/security/store/tokenbucket"
)

// ErrThrottled is returned when a request could not get an upstream token
// before its context ended.
var ErrThrottled = errors.New("upstream throttled")

// ThrottledTransport paces requests per upstream host with a token bucket,
// so a burst of allowed client traffic cannot overrun the backend.
type ThrottledTransport struct {
	next    http.RoundTripper
	buckets *tokenbucket.Store
}

type Option func(*ThrottledTransport)

// WithTransport replaces the underlying round tripper. Default is
// NewTransport().
func WithTransport(rt http.RoundTripper) Option {
	return func(t *ThrottledTransport) {
		if rt != nil {
			t.next = rt
		}
	}
}

// NewThrottledTransport allows ratePerSecond requests per host with bursts
// of up to burst.
func NewThrottledTransport(ratePerSecond float64, burst int, opts ...Option) (*ThrottledTransport, error) {
	buckets, err := tokenbucket.New(tokenbucket.Config{
		MaxTokens:       float64(burst),
		RefillPerSecond: ratePerSecond,
		MaxKeys:         1024,
	})
	if err != nil {
		return nil, err
	}
	t := &ThrottledTransport{next: NewTransport(), buckets: buckets}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// RoundTrip waits for a token for req's host, bounded by req's context.
func (t *ThrottledTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.buckets.AcquireBlocking(req.Context(), req.URL.Host); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrThrottled, req.URL.Host, err)
	}
	return t.next.RoundTrip(req)
}

// NewTransport returns the pooled transport used for upstream calls.
func NewTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          200,
		MaxIdleConnsPerHost:   100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
}
