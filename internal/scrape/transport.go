package scrape

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/cookiejar"
	"time"

	utls "github.com/refraction-networking/utls"
	"golang.org/x/net/http2"
	"golang.org/x/net/publicsuffix"
)

const dialTimeout = 30 * time.Second

// browserTransport speaks TLS with a Chrome ClientHello. It tries HTTP/2
// first and falls back to HTTP/1.1 only when the h2 connection could not be
// established, so a request the server may have seen is never sent twice.
type browserTransport struct {
	h2 http.RoundTripper
	h1 http.RoundTripper
}

// h2DialError marks an h2 failure that happened before any request bytes
// were written.
type h2DialError struct {
	err error
}

func (e *h2DialError) Error() string { return "h2 dial: " + e.err.Error() }

func (e *h2DialError) Unwrap() error { return e.err }

func newBrowserTransport() *browserTransport {
	return &browserTransport{
		h2: &http2.Transport{
			DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
				conn, err := dialChromeTLS(ctx, network, addr, nil)
				if err != nil {
					return nil, &h2DialError{err: err}
				}
				if proto := conn.ConnectionState().NegotiatedProtocol; proto != http2.NextProtoTLS {
					conn.Close()
					return nil, &h2DialError{err: fmt.Errorf("server negotiated %q", proto)}
				}
				return conn, nil
			},
		},
		h1: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				conn, err := dialChromeTLS(ctx, network, addr, []string{"http/1.1"})
				if err != nil {
					return nil, err
				}
				return conn, nil
			},
			IdleConnTimeout: 90 * time.Second,
		},
	}
}

func (t *browserTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL.Scheme != "https" {
		return t.h1.RoundTrip(req)
	}
	resp, err := t.h2.RoundTrip(req)
	if err == nil {
		return resp, nil
	}
	var dialErr *h2DialError
	if !errors.As(err, &dialErr) {
		return nil, err
	}
	retry := req.Clone(req.Context())
	if req.Body != nil && req.GetBody != nil {
		body, bodyErr := req.GetBody()
		if bodyErr != nil {
			return nil, fmt.Errorf("rewinding request body after h2 failure: %w", bodyErr)
		}
		retry.Body = body
	}
	return t.h1.RoundTrip(retry)
}

func (t *browserTransport) CloseIdleConnections() {
	type idleCloser interface{ CloseIdleConnections() }
	for _, rt := range []http.RoundTripper{t.h2, t.h1} {
		if c, ok := rt.(idleCloser); ok {
			c.CloseIdleConnections()
		}
	}
}

func dialChromeTLS(ctx context.Context, network, addr string, nextProtos []string) (*utls.UConn, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}

	dialer := &net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}

	tlsConn := utls.UClient(conn, &utls.Config{
		ServerName: host,
		MinVersion: tls.VersionTLS12,
		NextProtos: nextProtos,
	}, utls.HelloChrome_120)

	if err := tlsConn.Handshake(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("tls handshake: %w", err)
	}
	return tlsConn, nil
}

// NewHTTPClient builds the client used for third-party pages.
func NewHTTPClient(timeout time.Duration, browserTLS bool) *http.Client {
	var transport http.RoundTripper
	if browserTLS {
		transport = newBrowserTransport()
	} else {
		transport = http.DefaultTransport.(*http.Transport).Clone()
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

// sessionClient copies base with a fresh cookie jar, so cookies set during
// one conversion never leak into another.
func sessionClient(base *http.Client) *http.Client {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	client := *base
	if err == nil {
		client.Jar = jar
	}
	return &client
}
