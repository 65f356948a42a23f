package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pollyhq/ratekeeper/pkg/logger"
)

func newTestResolver(t *testing.T, whitelist, trustedProxies []string) *Resolver {
	t.Helper()
	r, err := NewResolver(whitelist, trustedProxies, logger.NewNoopLogger())
	require.NoError(t, err)
	return r
}

func request(remoteAddr string, headers map[string]string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.RemoteAddr = remoteAddr
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return req
}

func TestResolveIsDeterministic(t *testing.T) {
	r := newTestResolver(t, nil, nil)
	headers := map[string]string{"User-Agent": "Mozilla/5.0 TestBrowser"}

	first := r.Resolve(request("203.0.113.7:443", headers), "")
	second := r.Resolve(request("203.0.113.7:443", headers), "")
	assert.Equal(t, first.Key, second.Key)
}

func TestResolveAuthenticatedUsesUserAndIP(t *testing.T) {
	r := newTestResolver(t, nil, nil)

	identity := r.Resolve(request("203.0.113.7:443", nil), "user-42")
	assert.Equal(t, "user:user-42:203.0.113.7", identity.Key)
	assert.Equal(t, "203.0.113.7", identity.IP)
}

func TestResolveAnonymousFingerprint(t *testing.T) {
	r := newTestResolver(t, nil, nil)

	identity := r.Resolve(request("203.0.113.7:443", map[string]string{
		"User-Agent": "Mozilla/5.0 TestBrowser",
	}), "")

	require.True(t, strings.HasPrefix(identity.Key, "ip:203.0.113.7:"))
	fingerprint := strings.TrimPrefix(identity.Key, "ip:203.0.113.7:")
	assert.Len(t, fingerprint, 12)

	// A different browser behind the same address gets its own bucket.
	other := r.Resolve(request("203.0.113.7:443", map[string]string{
		"User-Agent": "curl/8.0",
	}), "")
	assert.NotEqual(t, identity.Key, other.Key)
}

func TestResolveAnonymousWithoutUserAgent(t *testing.T) {
	r := newTestResolver(t, nil, nil)

	identity := r.Resolve(request("203.0.113.7:443", nil), "")
	assert.Equal(t, "ip:203.0.113.7", identity.Key)
}

func TestClientIPHeaderChainWithoutProxies(t *testing.T) {
	r := newTestResolver(t, nil, nil)

	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{
			name: "cdn header wins",
			headers: map[string]string{
				"cf-connecting-ip": "198.51.100.1",
				"x-real-ip":        "198.51.100.2",
				"x-forwarded-for":  "198.51.100.3, 10.0.0.1",
			},
			want: "198.51.100.1",
		},
		{
			name: "real-ip beats forwarded-for",
			headers: map[string]string{
				"x-real-ip":       "198.51.100.2",
				"x-forwarded-for": "198.51.100.3",
			},
			want: "198.51.100.2",
		},
		{
			name:    "first forwarded-for entry",
			headers: map[string]string{"x-forwarded-for": "198.51.100.3, 10.0.0.1"},
			want:    "198.51.100.3",
		},
		{
			name:    "peer address fallback",
			headers: nil,
			want:    "203.0.113.7",
		},
		{
			name:    "garbage headers ignored",
			headers: map[string]string{"x-real-ip": "not-an-ip"},
			want:    "203.0.113.7",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ip := r.ClientIP(request("203.0.113.7:443", tt.headers))
			assert.Equal(t, tt.want, ip)
		})
	}
}

func TestClientIPTrustedProxyGating(t *testing.T) {
	r := newTestResolver(t, nil, []string{"10.0.0.0/8"})

	// Connection from a trusted proxy: forwarded header honored.
	ip := r.ClientIP(request("10.1.2.3:443", map[string]string{
		"x-forwarded-for": "198.51.100.3",
	}))
	assert.Equal(t, "198.51.100.3", ip)

	// Direct connection: client-supplied headers are ignored.
	ip = r.ClientIP(request("203.0.113.7:443", map[string]string{
		"x-forwarded-for": "198.51.100.3",
	}))
	assert.Equal(t, "203.0.113.7", ip)
}

func TestClientIPFallsBackToLoopback(t *testing.T) {
	r := newTestResolver(t, nil, nil)

	req := request("bogus", nil)
	assert.Equal(t, "127.0.0.1", r.ClientIP(req))
}

func TestIsWhitelisted(t *testing.T) {
	r := newTestResolver(t, []string{"192.168.1.10", "10.0.0.0/8"}, nil)

	assert.True(t, r.IsWhitelisted("192.168.1.10"))
	assert.True(t, r.IsWhitelisted("10.200.0.1"))
	assert.False(t, r.IsWhitelisted("203.0.113.7"))
	assert.False(t, r.IsWhitelisted("not-an-ip"))
}

func TestSwapRejectsMalformedLists(t *testing.T) {
	r := newTestResolver(t, []string{"10.0.0.0/8"}, nil)

	err := r.Swap([]string{"300.1.1.1"}, nil)
	require.Error(t, err)

	// The previous lists stay active.
	assert.True(t, r.IsWhitelisted("10.1.1.1"))
}

func TestNewResolverRejectsMalformedCIDR(t *testing.T) {
	_, err := NewResolver([]string{"10.0.0.0/99"}, nil, logger.NewNoopLogger())
	assert.Error(t, err)
}
