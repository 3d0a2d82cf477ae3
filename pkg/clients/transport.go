package clients

import (
	"net"
	"net/http"
	"net/http/cookiejar"
	"time"
)

// DefaultTransport returns a pooled transport sized for a single client
// talking to one backend and one or two RPC endpoints.
func DefaultTransport() *http.Transport {
	return &http.Transport{
		MaxConnsPerHost:     16,
		MaxIdleConnsPerHost: 4,
		MaxIdleConns:        32,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// NewCookieClient returns an HTTP client with a cookie jar, so a backend
// session cookie is replayed on every request alongside any bearer token.
func NewCookieClient(timeout time.Duration) *http.Client {
	jar, _ := cookiejar.New(nil) // only errors on a non-nil PublicSuffixList
	return &http.Client{
		Timeout:   timeout,
		Transport: DefaultTransport(),
		Jar:       jar,
	}
}
