package signing

import (
	"strings"

	"github.com/mssola/useragent"
)

const unknownDevice = "Unknown Device"

// DeviceName renders a user agent as "<browser> on <platform>" for logs.
func DeviceName(userAgent string) string {
	if strings.TrimSpace(userAgent) == "" {
		return unknownDevice
	}
	ua := useragent.New(userAgent)
	browser, _ := ua.Browser()
	platform := ua.OS()
	if platform == "" {
		platform = ua.Platform()
	}
	if browser == "" {
		browser = "Unknown"
	}
	if platform == "" {
		platform = "Unknown"
	}
	return strings.TrimSpace(browser + " on " + platform)
}
