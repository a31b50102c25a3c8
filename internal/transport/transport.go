// Package transport provides HTTP transport implementations for platform clients.
package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"time"

	utls "github.com/refraction-networking/utls"
	"golang.org/x/net/http2"
)

// Fingerprint names accepted by New.
const (
	FingerprintDefault = "default"
	FingerprintChrome  = "chrome"
)

// New returns the round tripper for the configured TLS fingerprint.
// "chrome" presents Chrome's ClientHello; anything else uses Go's TLS stack
// with HTTP/2 enabled.
func New(fingerprint string, timeout time.Duration) http.RoundTripper {
	if fingerprint == FingerprintChrome {
		return NewChromeTransport(timeout)
	}
	return NewStandardTransport(timeout)
}

// NewStandardTransport is a pooled transport with HTTP/2 configured explicitly,
// so that h2 is still negotiated when a custom TLS config is set.
func NewStandardTransport(timeout time.Duration) http.RoundTripper {
	t := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second}).DialContext,
		TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12},
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConnsPerHost:   8,
	}
	if err := http2.ConfigureTransport(t); err != nil {
		// Only fails if the transport was already configured for h2.
		t.ForceAttemptHTTP2 = true
	}
	return t
}

// =============================================================================
// TLS FINGERPRINT TRANSPORT
// =============================================================================
//
// Go's standard TLS client has a distinctive fingerprint that some edge
// networks throttle more aggressively than browsers. Staged-upload buckets and
// result-file CDNs sit behind such networks.
//
// This transport uses uTLS to present a Chrome-like TLS fingerprint with
// full HTTP/2 support:
//
//   1. Use uTLS with HelloChrome_Auto for Chrome's TLS fingerprint
//   2. Let ALPN negotiate naturally (h2, http/1.1)
//   3. Use Go's http2.Transport for HTTP/2 framing when negotiated
//
// =============================================================================

// NewChromeTransport creates an http.RoundTripper that presents Chrome's TLS
// fingerprint to upstream servers. Supports both HTTP/2 and HTTP/1.1 based on
// ALPN negotiation.
func NewChromeTransport(timeout time.Duration) http.RoundTripper {
	dialer := &net.Dialer{Timeout: timeout}

	h2Transport := &http2.Transport{
		DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
			return dialChromeTLS(ctx, dialer, network, addr)
		},
	}

	h1Transport := &http.Transport{
		DialContext: dialer.DialContext,
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialChromeTLS(ctx, dialer, network, addr)
		},
		ForceAttemptHTTP2: false,
	}

	return &chromeTransport{
		h2: h2Transport,
		h1: h1Transport,
	}
}

// chromeTransport wraps HTTP/2 and HTTP/1.1 transports with Chrome TLS fingerprint.
type chromeTransport struct {
	h2 *http2.Transport
	h1 *http.Transport
}

// RoundTrip implements http.RoundTripper.
// Plain-http requests go straight to HTTP/1.1. HTTPS requests try HTTP/2 first and
// fall back to HTTP/1.1 with a rewound body.
func (t *chromeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL.Scheme != "https" {
		return t.h1.RoundTrip(req)
	}

	resp, err := t.h2.RoundTrip(req)
	if err == nil {
		return resp, nil
	}

	if req.Body != nil && req.Body != http.NoBody {
		if req.GetBody == nil {
			return nil, fmt.Errorf("http2 failed and body cannot be replayed: %w", err)
		}
		body, berr := req.GetBody()
		if berr != nil {
			return nil, fmt.Errorf("rewinding body: %w", berr)
		}
		req = req.Clone(req.Context())
		req.Body = body
	}
	return t.h1.RoundTrip(req)
}

// dialChromeTLS establishes a TLS connection with Chrome's fingerprint.
func dialChromeTLS(ctx context.Context, dialer *net.Dialer, network, addr string) (net.Conn, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}

	conn, err := dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	tlsConfig := &utls.Config{
		ServerName: host,
	}
	tlsConn := utls.UClient(conn, tlsConfig, utls.HelloChrome_Auto)

	if err := tlsConn.Handshake(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("tls handshake: %w", err)
	}

	return tlsConn, nil
}
