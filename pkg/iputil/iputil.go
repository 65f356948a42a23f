// Package iputil provides IP list matching for whitelists and trusted proxy
// ranges. Entries may be exact addresses or CIDR blocks.
package iputil

import (
	"fmt"
	"net"
	"strings"
)

// Matcher answers containment queries against a parsed list of IPs and
// CIDR ranges. Immutable after construction, safe for concurrent use.
type Matcher struct {
	exact map[string]struct{}
	nets  []*net.IPNet
}

// ParseMatcher parses entries into a Matcher. Malformed entries are a hard
// error: lists are config input, validated once at startup.
func ParseMatcher(entries []string) (*Matcher, error) {
	m := &Matcher{exact: make(map[string]struct{})}
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			_, ipNet, err := net.ParseCIDR(entry)
			if err != nil {
				return nil, fmt.Errorf("malformed CIDR %q: %w", entry, err)
			}
			m.nets = append(m.nets, ipNet)
			continue
		}
		ip := net.ParseIP(entry)
		if ip == nil {
			return nil, fmt.Errorf("malformed IP address %q", entry)
		}
		m.exact[ip.String()] = struct{}{}
	}
	return m, nil
}

// Contains reports whether ip matches an exact entry or falls inside any
// CIDR range. Unparseable input never matches.
func (m *Matcher) Contains(ip string) bool {
	parsed := net.ParseIP(strings.TrimSpace(ip))
	if parsed == nil {
		return false
	}
	if _, ok := m.exact[parsed.String()]; ok {
		return true
	}
	for _, ipNet := range m.nets {
		if ipNet.Contains(parsed) {
			return true
		}
	}
	return false
}

// Empty reports whether the matcher holds no entries.
func (m *Matcher) Empty() bool {
	return len(m.exact) == 0 && len(m.nets) == 0
}
