// Package referrers normalizes referrer URLs for aggregation.
package referrers

import (
	"net/url"
	"strings"
)

// Domain extracts the host of a referrer URL. Referrers arrive from the
// tracking SDK unvalidated, so on any parse failure (or a URL without a
// host, e.g. "android-app://...foo" fragments or plain text) the raw input
// is returned unchanged rather than failing the event.
func Domain(referrer string) string {
	if referrer == "" {
		return ""
	}

	parsed, err := url.Parse(referrer)
	if err != nil || parsed.Host == "" {
		return referrer
	}

	return strings.ToLower(parsed.Host)
}
