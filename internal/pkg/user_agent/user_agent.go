// Package user_agent classifies raw user-agent strings into the coarse
// browser / operating system / device type buckets the rollup tables use.
package user_agent

import "strings"

// Device types
const (
	DeviceDesktop = "desktop"
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
)

// Unknown is returned when no browser or OS token matches.
const Unknown = "Unknown"

// Classification is the result of classifying one user-agent string.
type Classification struct {
	Browser    string
	OS         string
	DeviceType string
}

var tabletMarkers = []string{"ipad", "tablet", "playbook", "silk"}

var mobileMarkers = []string{
	"mobile", "android", "iphone", "ipod",
	"blackberry", "opera mini", "iemobile",
}

// browserTokens is ordered by priority. Chromium-based UAs carry several
// browser tokens (an Edge UA also says "Chrome", a Chrome UA also says
// "Safari"), so the first match wins and the order is load-bearing.
var browserTokens = []struct {
	token string
	name  string
}{
	{"firefox", "Firefox"},
	{"edg", "Edge"},
	{"chrome", "Chrome"},
	{"safari", "Safari"},
	{"opera", "Opera"},
}

// osTokens is ordered by priority. iPhone UAs also say "like Mac OS X" and
// Android UAs also say "Linux", so the mobile tokens come first.
var osTokens = []struct {
	token string
	name  string
}{
	{"iphone", "iOS"},
	{"ipad", "iOS"},
	{"android", "Android"},
	{"windows", "Windows"},
	{"mac", "macOS"},
	{"linux", "Linux"},
}

// Classify maps a raw user-agent string to browser, OS and device type.
// An empty or unrecognized string classifies as Unknown/Unknown/desktop;
// classification never fails.
func Classify(userAgent string) Classification {
	ua := strings.ToLower(userAgent)

	return Classification{
		Browser:    classifyBrowser(ua),
		OS:         classifyOS(ua),
		DeviceType: classifyDevice(ua),
	}
}

func classifyDevice(ua string) string {
	// Tablet markers take priority: tablet UAs frequently contain mobile
	// tokens too, the reverse does not hold.
	for _, marker := range tabletMarkers {
		if strings.Contains(ua, marker) {
			return DeviceTablet
		}
	}
	for _, marker := range mobileMarkers {
		if strings.Contains(ua, marker) {
			return DeviceMobile
		}
	}
	return DeviceDesktop
}

func classifyBrowser(ua string) string {
	for _, entry := range browserTokens {
		if strings.Contains(ua, entry.token) {
			return entry.name
		}
	}
	return Unknown
}

func classifyOS(ua string) string {
	for _, entry := range osTokens {
		if strings.Contains(ua, entry.token) {
			return entry.name
		}
	}
	return Unknown
}
