package httpclient

import (
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSecureClient(t *testing.T) {
	config := DefaultConfig()
	client := NewSecureClient(config)

	assert.NotNil(t, client)
	assert.Equal(t, 30*time.Second, client.Timeout)
}

func TestNewRPCClient(t *testing.T) {
	client := NewRPCClient(5*time.Second, false)
	assert.Equal(t, 5*time.Second, client.Timeout)

	client = NewRPCClient(0, false)
	assert.Equal(t, 30*time.Second, client.Timeout)
}

func TestBlockPrivate_BlocksLocalhost(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewRPCClient(5*time.Second, true)

	resp, err := client.Get(server.URL)
	if err == nil {
		resp.Body.Close()
		t.Fatal("Expected private address blocking to refuse localhost, but request succeeded")
	}

	assert.Contains(t, err.Error(), "private address blocked")
}

func TestAllowPrivate_ReachesLocalhost(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}))
	defer server.Close()

	client := NewRPCClient(5*time.Second, false)

	resp, err := client.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestIsPrivateIP(t *testing.T) {
	tests := []struct {
		ip       string
		expected bool
	}{
		{"127.0.0.1", true},      // Loopback
		{"10.0.0.1", true},       // Private
		{"172.16.0.1", true},     // Private
		{"192.168.1.1", true},    // Private
		{"169.254.1.1", true},    // Link-local
		{"0.0.0.0", true},        // Unspecified
		{"::1", true},            // IPv6 loopback
		{"8.8.8.8", false},       // Public
		{"1.1.1.1", false},       // Public
		{"93.184.216.34", false}, // Public
	}

	for _, tt := range tests {
		ip := net.ParseIP(tt.ip)
		require.NotNil(t, ip, "Failed to parse IP: %s", tt.ip)

		result := isPrivateIP(ip)
		assert.Equal(t, tt.expected, result, "IP: %s", tt.ip)
	}
}

func TestValidateURL(t *testing.T) {
	assert.Error(t, validateURL("http://127.0.0.1:8899/"))
	assert.Error(t, validateURL("http:///nohost"))
	assert.Error(t, validateURL("://bad"))
}

func TestRedirectLimiting(t *testing.T) {
	redirectCount := 0

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		redirectCount++
		http.Redirect(w, r, "/redirect", http.StatusFound)
	}))
	defer server.Close()

	client := NewSecureClient(SecureClientConfig{
		Timeout:         5 * time.Second,
		BlockPrivate:    false,
		FollowRedirects: true,
		MaxRedirects:    3,
	})

	resp, err := client.Get(server.URL)
	if resp != nil {
		resp.Body.Close()
	}

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "stopped after")
	assert.LessOrEqual(t, redirectCount, 5, "Should stop redirecting")
}

func TestNoRedirectFollowing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/final", http.StatusFound)
	}))
	defer server.Close()

	client := NewSecureClient(SecureClientConfig{
		Timeout:         5 * time.Second,
		FollowRedirects: false,
	})

	resp, err := client.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusFound, resp.StatusCode)
}
