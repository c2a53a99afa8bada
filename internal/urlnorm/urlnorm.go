// Package urlnorm computes the canonical form of a URL used as the
// deduplication key during import and inbound sync.
//
// Canonicalization lowercases the scheme and host, drops default ports,
// drops the fragment, removes a trailing slash from the path, and strips
// known tracking query parameters. Two URLs that differ only in those
// respects resolve to the same bookmark.
package urlnorm

import (
	"net/url"
	"strings"
)

// trackingParams are query parameters that carry campaign/click tracking
// state and never identify a distinct resource.
var trackingParams = map[string]bool{
	"fbclid":      true,
	"gclid":       true,
	"dclid":       true,
	"msclkid":     true,
	"igshid":      true,
	"mc_cid":      true,
	"mc_eid":      true,
	"mkt_tok":     true,
	"ref_src":     true,
	"vero_id":     true,
	"vero_conv":   true,
	"_hsenc":      true,
	"_hsmi":       true,
	"hsa_acc":     true,
	"hsa_cam":     true,
	"oly_anon_id": true,
	"oly_enc_id":  true,
	"wickedid":    true,
	"yclid":       true,
}

// isTracking reports whether the query parameter name is a known
// tracking parameter. All utm_* parameters are tracking.
func isTracking(name string) bool {
	lower := strings.ToLower(name)
	if strings.HasPrefix(lower, "utm_") {
		return true
	}
	return trackingParams[lower]
}

// Canonical returns the canonical form of raw.
//
// If raw cannot be parsed as a URL, it is returned trimmed but otherwise
// unchanged so that malformed entries still dedup against exact copies of
// themselves.
func Canonical(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return raw
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)

	// Drop default ports.
	switch {
	case u.Scheme == "http" && strings.HasSuffix(u.Host, ":80"):
		u.Host = strings.TrimSuffix(u.Host, ":80")
	case u.Scheme == "https" && strings.HasSuffix(u.Host, ":443"):
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}

	// Trailing slash carries no identity for paths.
	if len(u.Path) > 1 {
		u.Path = strings.TrimSuffix(u.Path, "/")
	}
	if u.Path == "/" {
		u.Path = ""
	}

	u.RawQuery = stripTracking(u.RawQuery)
	u.Fragment = ""
	u.RawFragment = ""

	return u.String()
}

// stripTracking removes tracking parameters from a raw query string while
// preserving the order of the remaining parameters.
func stripTracking(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}

	var kept []string
	for _, pair := range strings.Split(rawQuery, "&") {
		if pair == "" {
			continue
		}
		name := pair
		if i := strings.IndexByte(pair, '='); i >= 0 {
			name = pair[:i]
		}
		if decoded, err := url.QueryUnescape(name); err == nil {
			name = decoded
		}
		if isTracking(name) {
			continue
		}
		kept = append(kept, pair)
	}

	return strings.Join(kept, "&")
}
