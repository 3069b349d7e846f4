// Package httpclient builds the HTTP clients used to talk to ledger RPC nodes
package httpclient

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"
)

// SecureClientConfig configures the HTTP client
type SecureClientConfig struct {
	Timeout         time.Duration
	BlockPrivate    bool // refuse to dial private, loopback and link-local addresses
	FollowRedirects bool
	MaxRedirects    int
}

// DefaultConfig returns the configuration used for public RPC endpoints
func DefaultConfig() SecureClientConfig {
	return SecureClientConfig{
		Timeout:         30 * time.Second,
		BlockPrivate:    false,
		FollowRedirects: true,
		MaxRedirects:    3,
	}
}

// NewSecureClient creates an HTTP client with
// - Timeout enforcement
// - Optional private-address blocking (also applied on redirects)
// - Context-aware dialing
// - Bounded redirect following
func NewSecureClient(config SecureClientConfig) *http.Client {
	transport := &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			if config.BlockPrivate {
				if err := validateAddress(addr); err != nil {
					return nil, fmt.Errorf("private address blocked: %w", err)
				}
			}

			var dialer net.Dialer
			return dialer.DialContext(ctx, network, addr)
		},

		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     90 * time.Second,

		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: config.Timeout,
		ExpectContinueTimeout: 1 * time.Second,
	}

	client := &http.Client{
		Timeout:   config.Timeout,
		Transport: transport,
	}

	if !config.FollowRedirects {
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	} else if config.MaxRedirects > 0 {
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			if len(via) >= config.MaxRedirects {
				return fmt.Errorf("stopped after %d redirects", config.MaxRedirects)
			}

			if config.BlockPrivate {
				if err := validateURL(req.URL.String()); err != nil {
					return fmt.Errorf("private address blocked on redirect: %w", err)
				}
			}

			return nil
		}
	}

	return client
}

// NewRPCClient creates the client used for JSON-RPC calls against a ledger node
func NewRPCClient(timeout time.Duration, blockPrivate bool) *http.Client {
	cfg := DefaultConfig()
	if timeout > 0 {
		cfg.Timeout = timeout
	}
	cfg.BlockPrivate = blockPrivate
	return NewSecureClient(cfg)
}

// validateAddress checks if an address points to a private IP
func validateAddress(addr string) error {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}

	ips, err := net.LookupIP(host)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", host, err)
	}

	for _, ip := range ips {
		if isPrivateIP(ip) {
			return fmt.Errorf("blocked private IP: %s (%s)", ip, host)
		}
	}

	return nil
}

// validateURL extracts the host of urlStr and applies validateAddress to it
func validateURL(urlStr string) error {
	u, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("invalid URL %q: %w", urlStr, err)
	}
	if u.Hostname() == "" {
		return fmt.Errorf("URL %q has no host", urlStr)
	}
	return validateAddress(u.Hostname())
}

// isPrivateIP checks if an IP address is private, loopback, or link-local
func isPrivateIP(ip net.IP) bool {
	if ip.IsLoopback() {
		return true
	}

	if ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return true
	}

	if ip.IsPrivate() {
		return true
	}

	if ip.IsUnspecified() {
		return true
	}

	return false
}
