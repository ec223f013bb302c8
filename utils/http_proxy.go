package utils

// Inspired from: https://gist.github.com/jim3ma/3750675f141669ac4702bc9deaf31c6b

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"time"

	"golang.org/x/net/proxy"
)

// httpProxy tunnels the line protocol through an HTTP CONNECT proxy.
type httpProxy struct {
	host     string
	haveAuth bool
	username string
	password string
	forward  proxy.Dialer
}

func newHTTPProxy(uri *url.URL, forward proxy.Dialer) (proxy.Dialer, error) {
	s := &httpProxy{host: uri.Host, forward: forward}
	if uri.User != nil {
		s.haveAuth = true
		s.username = uri.User.Username()
		s.password, _ = uri.User.Password()
	}
	return s, nil
}

func (s *httpProxy) Dial(_, addr string) (net.Conn, error) {
	c, err := s.forward.Dial("tcp", s.host)
	if err != nil {
		return nil, fmt.Errorf("dial proxy: %w", err)
	}

	req := &http.Request{
		Method: http.MethodConnect,
		URL:    &url.URL{Opaque: addr},
		Host:   addr,
		Header: make(http.Header),
	}
	if s.haveAuth {
		req.SetBasicAuth(s.username, s.password)
	}
	if err := req.Write(c); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("write CONNECT request: %w", err)
	}

	resp, err := http.ReadResponse(bufio.NewReader(c), req)
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("read CONNECT response: %w", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_ = c.Close()
		return nil, fmt.Errorf("CONNECT response: %s", resp.Status)
	}
	return c, nil
}

func init() {
	proxy.RegisterDialerType("http", newHTTPProxy)
	proxy.RegisterDialerType("https", newHTTPProxy)
}

// GetDialer returns a DialContext function for the server connection. A proxy URL
// from HTTP_PROXY or HTTPS_PROXY (HTTPS wins) is used when set; otherwise the
// connection is direct with the given timeout.
func GetDialer(timeout time.Duration) func(ctx context.Context, network, addr string) (net.Conn, error) {
	direct := &net.Dialer{Timeout: timeout}
	var proxyURI *url.URL
	for _, envVar := range []string{"HTTP_PROXY", "HTTPS_PROXY"} {
		if raw := os.Getenv(envVar); raw != "" {
			if uri, err := url.Parse(raw); err == nil {
				proxyURI = uri
			}
		}
	}
	if proxyURI == nil {
		return direct.DialContext
	}
	dialer, err := proxy.FromURL(proxyURI, direct)
	if err != nil {
		return direct.DialContext
	}
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		if cd, ok := dialer.(proxy.ContextDialer); ok {
			return cd.DialContext(ctx, network, addr)
		}
		return dialer.Dial(network, addr)
	}
}
