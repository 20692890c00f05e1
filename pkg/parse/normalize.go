package parse

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"content-harvester/pkg/utils"
)

// NormalizeURL lowercases scheme and host, drops default ports and the fragment,
// and turns an empty path into "/". The query is kept: provider redirect links live in it.
// Does not modify the input *url.URL
func NormalizeURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	normalized := *u

	normalized.Scheme = strings.ToLower(normalized.Scheme)
	normalized.Host = strings.ToLower(normalized.Host)

	if host, port, err := net.SplitHostPort(normalized.Host); err == nil {
		if (normalized.Scheme == "http" && port == "80") ||
			(normalized.Scheme == "https" && port == "443") {
			normalized.Host = host
		}
	}

	if normalized.Path == "" {
		normalized.Path = "/"
	}
	normalized.Fragment = ""
	normalized.RawFragment = ""

	return normalized.String()
}

// ParseHTTPURL parses an absolute http(s) URL. Anything else is a validation error.
func ParseHTTPURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: url is required", utils.ErrValidation)
	}
	u, err := url.ParseRequestURI(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid URL '%s': %w", utils.ErrValidation, raw, err)
	}
	scheme := strings.ToLower(u.Scheme)
	if (scheme != "http" && scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: URL '%s' must be absolute http or https", utils.ErrValidation, raw)
	}
	return u, nil
}

// ParseAndNormalize validates raw with ParseHTTPURL and returns its normalized form.
func ParseAndNormalize(raw string) (string, *url.URL, error) {
	u, err := ParseHTTPURL(raw)
	if err != nil {
		return "", nil, err
	}
	return NormalizeURL(u), u, nil
}

// Origin returns scheme://host of u.
func Origin(u *url.URL) string {
	if u == nil || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

// ResolveURL makes ref absolute against base. Protocol-relative refs take the base scheme,
// root-relative refs take the base origin. Empty, fragment-only and script refs resolve to "".
func ResolveURL(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "#") {
		return ""
	}
	lower := strings.ToLower(ref)
	if strings.HasPrefix(lower, "javascript:") || strings.HasPrefix(lower, "mailto:") || strings.HasPrefix(lower, "data:") {
		return ""
	}

	refURL, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	if refURL.IsAbs() {
		return refURL.String()
	}
	if base == nil {
		return ""
	}
	if strings.HasPrefix(ref, "//") {
		return base.Scheme + ":" + ref
	}
	if strings.HasPrefix(ref, "/") {
		return Origin(base) + ref
	}
	return base.ResolveReference(refURL).String()
}
