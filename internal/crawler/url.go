package crawler

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Resolve resolves raw against base per RFC 3986. The returned address is
// absolute; its String form is the identity used for dedup and visited
// tracking, so no further canonicalization is applied.
func Resolve(raw string, base *url.URL) (*url.URL, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, &NormalizationError{Raw: raw, Err: errors.New("empty address")}
	}
	ref, err := url.Parse(trimmed)
	if err != nil {
		return nil, &NormalizationError{Raw: raw, Err: err}
	}
	var resolved *url.URL
	if base == nil {
		resolved = ref
	} else {
		resolved = base.ResolveReference(ref)
	}
	if !resolved.IsAbs() {
		return nil, &NormalizationError{Raw: raw, Err: errors.New("address is not absolute")}
	}
	return resolved, nil
}

// ResolveString resolves raw against a base given as a string.
func ResolveString(raw, base string) (string, error) {
	var baseURL *url.URL
	if base != "" {
		parsed, err := url.Parse(base)
		if err != nil {
			return "", &NormalizationError{Raw: base, Err: err}
		}
		baseURL = parsed
	}
	resolved, err := Resolve(raw, baseURL)
	if err != nil {
		return "", err
	}
	return resolved.String(), nil
}

// ParseSeed validates a job seed. The seed must be an absolute http(s)
// address with a host.
func ParseSeed(raw string) (*url.URL, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, InvalidInput("url is required", nil)
	}
	u, err := Resolve(raw, nil)
	if err != nil {
		return nil, InvalidInput("invalid url", err)
	}
	if !IsWebAddress(u) {
		return nil, InvalidInput("invalid url", fmt.Errorf("unsupported address %q", raw))
	}
	return u, nil
}

// IsWebAddress reports whether u is an http(s) address with a host.
func IsWebAddress(u *url.URL) bool {
	if u == nil || u.Hostname() == "" {
		return false
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return true
	default:
		return false
	}
}

// SameHost reports whether a and b share a hostname. Ports are ignored.
func SameHost(a, b *url.URL) bool {
	if a == nil || b == nil {
		return false
	}
	return a.Hostname() == b.Hostname()
}
