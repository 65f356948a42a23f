// Package ratelimit implements the rate limiting engine: client identity
// resolution, the fixed and sliding window strategies and the decision
// facade that ties them to the counter store.
package ratelimit

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/pollyhq/ratekeeper/internal/domain/models"
	"github.com/pollyhq/ratekeeper/internal/domain/service"
	"github.com/pollyhq/ratekeeper/pkg/constants"
	"github.com/pollyhq/ratekeeper/pkg/iputil"
	"github.com/pollyhq/ratekeeper/pkg/logger"
)

var _ service.IdentityResolver = (*Resolver)(nil)

// accessLists bundles the two IP lists so a config reload swaps both in one
// atomic pointer store.
type accessLists struct {
	whitelist      *iputil.Matcher
	trustedProxies *iputil.Matcher
}

// Resolver derives client identities from requests. The IP lists are
// hot-swappable so a whitelist change never requires a restart.
type Resolver struct {
	lists atomic.Pointer[accessLists]
	log   logger.Logger
}

// NewResolver builds a resolver from the configured whitelist and trusted
// proxy lists. Malformed entries are a startup error.
func NewResolver(whitelist, trustedProxies []string, log logger.Logger) (*Resolver, error) {
	r := &Resolver{log: log.WithComponent("identity")}
	if err := r.Swap(whitelist, trustedProxies); err != nil {
		return nil, err
	}
	return r, nil
}

// Swap replaces both IP lists atomically. Used by the config watcher; an
// error leaves the previous lists in place.
func (r *Resolver) Swap(whitelist, trustedProxies []string) error {
	wl, err := iputil.ParseMatcher(whitelist)
	if err != nil {
		return fmt.Errorf("whitelist: %w", err)
	}
	tp, err := iputil.ParseMatcher(trustedProxies)
	if err != nil {
		return fmt.Errorf("trusted_proxies: %w", err)
	}
	r.lists.Store(&accessLists{whitelist: wl, trustedProxies: tp})
	return nil
}

// ClientIP resolves the client address for a request.
//
// When trusted proxies are configured, forwarding headers are honored only
// for connections arriving from one of them; everything else is identified
// by its peer address, so a client cannot spoof its way into someone else's
// bucket. Without trusted proxies the resolver falls back to the permissive
// header chain, which keeps single-instance deployments behind an unlisted
// CDN working. Requests with no usable address share the loopback bucket.
func (r *Resolver) ClientIP(req *http.Request) string {
	lists := r.lists.Load()
	peer := peerAddr(req)

	if !lists.trustedProxies.Empty() {
		if peer != "" && lists.trustedProxies.Contains(peer) {
			if ip := headerIP(req, "cf-connecting-ip"); ip != "" {
				return ip
			}
			if ip := headerIP(req, "x-real-ip"); ip != "" {
				return ip
			}
			if ip := firstForwarded(req); ip != "" {
				return ip
			}
		}
		if peer != "" {
			return peer
		}
		return constants.FallbackClientIP
	}

	if ip := headerIP(req, "cf-connecting-ip"); ip != "" {
		return ip
	}
	if ip := headerIP(req, "x-real-ip"); ip != "" {
		return ip
	}
	if ip := firstForwarded(req); ip != "" {
		return ip
	}
	if peer != "" {
		return peer
	}
	return constants.FallbackClientIP
}

// IsWhitelisted implements service.IdentityResolver.
func (r *Resolver) IsWhitelisted(ip string) bool {
	return r.lists.Load().whitelist.Contains(ip)
}

// Resolve implements service.IdentityResolver. Authenticated clients key on
// user ID plus IP; anonymous clients on IP plus a truncated User-Agent
// fingerprint, so distinct browsers behind one NAT get separate buckets
// without storing the raw header.
func (r *Resolver) Resolve(req *http.Request, userID string) models.Identity {
	ip := r.ClientIP(req)
	identity := models.Identity{IP: ip, UserID: userID}

	if userID != "" {
		identity.Key = fmt.Sprintf("user:%s:%s", userID, ip)
		return identity
	}

	ua := req.UserAgent()
	if ua == "" {
		identity.Key = "ip:" + ip
		return identity
	}
	if len(ua) > constants.UserAgentFingerprintLen {
		ua = ua[:constants.UserAgentFingerprintLen]
	}
	sum := sha256.Sum256([]byte(ua))
	fingerprint := hex.EncodeToString(sum[:])[:constants.IdentityHashLen]
	identity.Key = fmt.Sprintf("ip:%s:%s", ip, fingerprint)
	return identity
}

// peerAddr extracts the transport-level address, without the port.
func peerAddr(req *http.Request) string {
	host, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		host = req.RemoteAddr
	}
	if net.ParseIP(host) == nil {
		return ""
	}
	return host
}

// headerIP returns the header value when it parses as an address.
func headerIP(req *http.Request, name string) string {
	value := strings.TrimSpace(req.Header.Get(name))
	if value == "" || net.ParseIP(value) == nil {
		return ""
	}
	return value
}

// firstForwarded returns the first entry of the X-Forwarded-For chain, the
// address closest to the original client.
func firstForwarded(req *http.Request) string {
	chain := req.Header.Get("x-forwarded-for")
	if chain == "" {
		return ""
	}
	first := strings.TrimSpace(strings.Split(chain, ",")[0])
	if net.ParseIP(first) == nil {
		return ""
	}
	return first
}
