// Package urlutil canonicalizes URLs and decides allow-list membership at
// the registrable-domain level.
package urlutil

import (
	"net"
	"net/url"
	"strings"
)

// Two-label public suffixes for which the registrable domain keeps three
// labels. Deliberately a small fixed set, not a full PSL.
var multiLabelSuffixes = map[string]struct{}{
	"co.uk":  {},
	"org.uk": {},
	"gov.uk": {},
	"ac.uk":  {},
	"com.au": {},
	"co.jp":  {},
	"co.nz":  {},
	"co.in":  {},
	"com.br": {},
	"com.cn": {},
}

// Canonicalize normalizes a raw URL for dedup and storage: http/https only,
// lower-cased scheme and host, fragment dropped, utm_* query parameters
// removed, one trailing slash stripped.
func Canonicalize(raw string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", false
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", false
	}
	if u.Host == "" {
		return "", false
	}
	u.Scheme = scheme
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""

	if u.RawQuery != "" {
		q := u.Query()
		for key := range q {
			if strings.HasPrefix(strings.ToLower(key), "utm_") {
				q.Del(key)
			}
		}
		u.RawQuery = q.Encode()
	}

	if strings.HasSuffix(u.Path, "/") {
		u.Path = strings.TrimSuffix(u.Path, "/")
		u.RawPath = ""
	}

	return u.String(), true
}

// RegistrableDomain returns the ownership unit of a host: the host itself
// for IPv4 literals, otherwise the last two labels, or three when the
// two-label tail is a known public suffix.
func RegistrableDomain(host string) string {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	if ip := net.ParseIP(host); ip != nil && ip.To4() != nil {
		return host
	}
	labels := strings.Split(host, ".")
	if len(labels) <= 2 {
		return host
	}
	tail := labels[len(labels)-2] + "." + labels[len(labels)-1]
	if _, ok := multiLabelSuffixes[tail]; ok {
		return labels[len(labels)-3] + "." + tail
	}
	return tail
}

// Allowlist matches hosts by registrable domain, plus a secondary list of
// exact hosts (and their subdomains) for non-registrable entries such as
// documentation subdomains.
type Allowlist struct {
	domains map[string]struct{}
	hosts   []string
}

func NewAllowlist(domains, hosts []string) *Allowlist {
	a := &Allowlist{domains: make(map[string]struct{}, len(domains))}
	for _, d := range domains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			a.domains[d] = struct{}{}
		}
	}
	for _, h := range hosts {
		h = strings.ToLower(strings.TrimSpace(h))
		if h != "" {
			a.hosts = append(a.hosts, h)
		}
	}
	return a
}

// IsAllowedHost reports whether the host's registrable domain is in the
// primary list, or the host equals or is a subdomain of a secondary entry.
func (a *Allowlist) IsAllowedHost(host string) bool {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	if host == "" {
		return false
	}
	if _, ok := a.domains[RegistrableDomain(host)]; ok {
		return true
	}
	for _, h := range a.hosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

// IsAllowedURL applies IsAllowedHost to a URL's host; unparseable URLs are
// not allowed.
func (a *Allowlist) IsAllowedURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return a.IsAllowedHost(u.Hostname())
}
