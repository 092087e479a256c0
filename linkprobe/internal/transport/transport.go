// Package transport is an http.RoundTripper whose TLS ClientHello matches a
// browser family, so the handshake fingerprint agrees with the headers.
//
// Every Transport is single-use in spirit: connections are not pooled and
// are closed together with the response body.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	utls "github.com/refraction-networking/utls"
	"golang.org/x/net/http2"

	"github.com/hazyhaar/urlgate/linkprobe/internal/fingerprint"
)

var errConnUsed = errors.New("transport: connection already used")

// Transport dials with a fingerprinted ClientHello and speaks h2 or
// http/1.1 depending on ALPN.
type Transport struct {
	params   fingerprint.TLSParams
	dial     func(ctx context.Context, network, addr string) (net.Conn, error)
	insecure bool
	guard    func(net.IP) error
	plain    *http.Transport
}

// Option configures a Transport.
type Option func(*Transport)

// WithDialContext replaces the TCP dial function. Tests use it to pin every
// host to a local server.
func WithDialContext(fn func(ctx context.Context, network, addr string) (net.Conn, error)) Option {
	return func(t *Transport) { t.dial = fn }
}

// WithAddrGuard checks the peer IP of every new connection. A non-nil
// error closes the connection and fails the request with that error.
func WithAddrGuard(fn func(net.IP) error) Option {
	return func(t *Transport) { t.guard = fn }
}

// WithInsecureSkipVerify disables certificate verification.
func WithInsecureSkipVerify() Option {
	return func(t *Transport) { t.insecure = true }
}

// New returns a Transport presenting params in its ClientHello.
func New(params fingerprint.TLSParams, opts ...Option) *Transport {
	t := &Transport{
		params: params,
		dial:   (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
	}
	for _, o := range opts {
		o(t)
	}
	if t.guard != nil {
		t.dial = guardedDial(t.dial, t.guard)
	}
	t.plain = &http.Transport{
		DialContext:        t.dial,
		DisableCompression: true,
		MaxIdleConns:       1,
	}
	return t
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL.Scheme != "https" {
		resp, err := t.plain.RoundTrip(req)
		if err != nil {
			return nil, err
		}
		resp.Body = &closeHook{ReadCloser: resp.Body, after: t.plain.CloseIdleConnections}
		return decode(resp), nil
	}

	conn, err := t.dialTLS(req.Context(), req.URL)
	if err != nil {
		return nil, err
	}

	var resp *http.Response
	if conn.ConnectionState().NegotiatedProtocol == http2.NextProtoTLS {
		resp, err = t.roundTripH2(conn, req)
	} else {
		resp, err = t.roundTripH1(conn, req)
	}
	if err != nil {
		conn.Close()
		return nil, err
	}
	return decode(resp), nil
}

// guardedDial checks the address actually connected to, after any name
// resolution done by dial.
func guardedDial(dial func(ctx context.Context, network, addr string) (net.Conn, error), guard func(net.IP) error) func(ctx context.Context, network, addr string) (net.Conn, error) {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := dial(ctx, network, addr)
		if err != nil {
			return nil, err
		}
		host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
		if err != nil {
			return conn, nil
		}
		if ip := net.ParseIP(host); ip != nil {
			if err := guard(ip); err != nil {
				conn.Close()
				return nil, fmt.Errorf("transport: dial %s: %w", addr, err)
			}
		}
		return conn, nil
	}
}

func (t *Transport) dialTLS(ctx context.Context, u *url.URL) (*utls.UConn, error) {
	host := u.Hostname()
	port := u.Port()
	if port == "" {
		port = "443"
	}
	raw, err := t.dial(ctx, "tcp", net.JoinHostPort(host, port))
	if err != nil {
		return nil, err
	}

	cfg := &utls.Config{
		ServerName:         host,
		InsecureSkipVerify: t.insecure,
		NextProtos:         []string{http2.NextProtoTLS, "http/1.1"},
	}
	uc := utls.UClient(raw, cfg, utls.HelloCustom)
	if err := uc.ApplyPreset(clientHelloSpec(t.params)); err != nil {
		raw.Close()
		return nil, fmt.Errorf("transport: apply preset: %w", err)
	}
	if err := uc.HandshakeContext(ctx); err != nil {
		raw.Close()
		return nil, fmt.Errorf("transport: tls handshake %s: %w", host, err)
	}
	return uc, nil
}

func (t *Transport) roundTripH2(conn net.Conn, req *http.Request) (*http.Response, error) {
	cc, err := (&http2.Transport{}).NewClientConn(conn)
	if err != nil {
		return nil, fmt.Errorf("transport: h2 client conn: %w", err)
	}
	resp, err := cc.RoundTrip(req)
	if err != nil {
		cc.Close()
		return nil, err
	}
	resp.Body = &closeHook{ReadCloser: resp.Body, after: func() { cc.Close() }}
	return resp, nil
}

func (t *Transport) roundTripH1(conn net.Conn, req *http.Request) (*http.Response, error) {
	var used atomic.Bool
	tr := &http.Transport{
		DialTLSContext: func(context.Context, string, string) (net.Conn, error) {
			if used.Swap(true) {
				return nil, errConnUsed
			}
			return conn, nil
		},
		DisableCompression: true,
		MaxIdleConns:       1,
	}
	resp, err := tr.RoundTrip(req)
	if err != nil {
		tr.CloseIdleConnections()
		return nil, err
	}
	resp.Body = &closeHook{ReadCloser: resp.Body, after: func() {
		tr.CloseIdleConnections()
		conn.Close()
	}}
	return resp, nil
}

// closeHook runs after once the body is closed.
type closeHook struct {
	io.ReadCloser
	after func()
	once  sync.Once
}

func (c *closeHook) Close() error {
	err := c.ReadCloser.Close()
	c.once.Do(c.after)
	return err
}
