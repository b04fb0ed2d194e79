package app

import (
	"net/url"
	"strings"
)

// originPolicy decides which browser origins may call the API and open a
// socket. An allowed_origins entry is one of:
//
//	"*"                          any origin
//	"https://watch.example.com"  exact scheme and host
//	"watch.example.com"          host on any scheme
//	"*.example.com"              any subdomain, not the apex
//	"localhost:*"                any port on that host
type originPolicy struct {
	allowAll bool
	rules    []originRule
}

type originRule struct {
	scheme string // empty matches http and https
	host   string
}

func newOriginPolicy(patterns []string, allowAll bool) *originPolicy {
	p := &originPolicy{allowAll: allowAll || len(patterns) == 0}
	for _, raw := range patterns {
		pattern := strings.ToLower(strings.TrimRight(strings.TrimSpace(raw), "/"))
		if pattern == "" {
			continue
		}
		if pattern == "*" {
			p.allowAll = true
			continue
		}
		rule := originRule{host: pattern}
		if scheme, rest, ok := strings.Cut(pattern, "://"); ok {
			rule.scheme, rule.host = scheme, rest
		}
		p.rules = append(p.rules, rule)
	}
	return p
}

// Allow reports whether origin may connect. An empty origin comes from
// non-browser clients and is always allowed.
func (p *originPolicy) Allow(origin string) bool {
	origin = strings.TrimSpace(origin)
	if origin == "" || p.allowAll {
		return true
	}
	scheme, host, ok := splitOrigin(origin)
	if !ok {
		return false
	}
	for _, rule := range p.rules {
		if rule.scheme != "" && rule.scheme != scheme {
			continue
		}
		if matchOriginHost(rule.host, host) {
			return true
		}
	}
	return false
}

// splitOrigin returns the lowercased scheme and host[:port] of an Origin
// header. "null" and scheme-less values are rejected.
func splitOrigin(origin string) (string, string, bool) {
	u, err := url.Parse(strings.ToLower(origin))
	if err != nil || u.Host == "" {
		return "", "", false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", "", false
	}
	return u.Scheme, u.Host, true
}

func matchOriginHost(pattern, host string) bool {
	if pattern == host {
		return true
	}
	if suffix, ok := strings.CutPrefix(pattern, "*"); ok && strings.HasPrefix(suffix, ".") {
		hostname, _, _ := strings.Cut(host, ":")
		return strings.HasSuffix(hostname, suffix) && len(hostname) > len(suffix)
	}
	if prefix, ok := strings.CutSuffix(pattern, ":*"); ok {
		hostname, _, _ := strings.Cut(host, ":")
		return hostname == prefix
	}
	return false
}
