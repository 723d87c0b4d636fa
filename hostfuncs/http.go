package hostfuncs

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/reglet-dev/exthost/domain/ports"
)

// ErrBodyTooLarge is returned when a download exceeds the configured size limit.
var ErrBodyTooLarge = errors.New("response body exceeds size limit")

// HTTPOption is a functional option for configuring the download client.
type HTTPOption func(*httpConfig)

type httpConfig struct {
	tlsConfig      *tls.Config
	netfilterOpts  []NetfilterOption
	userAgent      string
	timeout        time.Duration
	maxRedirects   int
	maxBodySize    int64
	ssrfProtection bool
}

func defaultHTTPConfig() httpConfig {
	return httpConfig{
		timeout:        5 * time.Minute,
		maxRedirects:   10,
		maxBodySize:    512 * 1024 * 1024,
		ssrfProtection: true,
		userAgent:      "exthost",
	}
}

// WithHTTPRequestTimeout sets the overall timeout of one download.
func WithHTTPRequestTimeout(d time.Duration) HTTPOption {
	return func(c *httpConfig) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithHTTPMaxRedirects sets the maximum number of redirects to follow.
func WithHTTPMaxRedirects(n int) HTTPOption {
	return func(c *httpConfig) {
		if n >= 0 {
			c.maxRedirects = n
		}
	}
}

// WithHTTPMaxBodySize sets the maximum response body size.
func WithHTTPMaxBodySize(size int64) HTTPOption {
	return func(c *httpConfig) {
		if size > 0 {
			c.maxBodySize = size
		}
	}
}

// WithHTTPSSRFProtection enables or disables DNS pinning through a Netfilter.
// When enabled, each connection resolves DNS once, validates every address,
// and dials the validated address directly (preventing DNS rebinding).
func WithHTTPSSRFProtection(enabled bool, opts ...NetfilterOption) HTTPOption {
	return func(c *httpConfig) {
		c.ssrfProtection = enabled
		c.netfilterOpts = opts
	}
}

// WithHTTPTLSConfig sets the client TLS configuration.
func WithHTTPTLSConfig(cfg *tls.Config) HTTPOption {
	return func(c *httpConfig) {
		c.tlsConfig = cfg
	}
}

// HTTPFetcher is the shared HTTP service behind download_file.
type HTTPFetcher struct {
	client *http.Client
	config httpConfig
}

var _ ports.HTTPClient = (*HTTPFetcher)(nil)

// NewHTTPFetcher creates an HTTPFetcher.
func NewHTTPFetcher(opts ...HTTPOption) *HTTPFetcher {
	cfg := defaultHTTPConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		TLSClientConfig:       cfg.tlsConfig,
	}
	if cfg.ssrfProtection {
		// A proxy would make the pinned address meaningless.
		transport.Proxy = nil
		transport.DialContext = pinnedDialer(NewNetfilter(cfg.netfilterOpts...))
	}

	client := &http.Client{
		Timeout:   cfg.timeout,
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= cfg.maxRedirects {
				return fmt.Errorf("stopped after %d redirects", cfg.maxRedirects)
			}
			return nil
		},
	}
	return &HTTPFetcher{client: client, config: cfg}
}

// pinnedDialer validates the target of every connection, including the ones
// made for redirects, and dials the address it validated.
func pinnedDialer(filter *Netfilter) func(ctx context.Context, network, addr string) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, portStr, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, err
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, fmt.Errorf("invalid port in %q: %w", addr, err)
		}

		result := filter.Check(ctx, host, port)
		if !result.Allowed {
			return nil, fmt.Errorf("SSRF protection: %s", result.Reason)
		}
		target := addr
		if result.ResolvedIP != "" {
			target = net.JoinHostPort(result.ResolvedIP, portStr)
		}
		return dialer.DialContext(ctx, network, target)
	}
}

// Fetch performs a GET and streams the body to w. A non-2xx status is
// returned with a nil error so callers can report it.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string, w io.Writer) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("User-Agent", f.config.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, nil
	}

	n, err := io.Copy(w, io.LimitReader(resp.Body, f.config.maxBodySize+1))
	if err != nil {
		return resp.StatusCode, err
	}
	if n > f.config.maxBodySize {
		return resp.StatusCode, fmt.Errorf("%w (%d bytes)", ErrBodyTooLarge, f.config.maxBodySize)
	}
	return resp.StatusCode, nil
}
