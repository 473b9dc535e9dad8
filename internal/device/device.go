// Package device derives a human-readable device label from a User-Agent
// string. The label is attached to consent-change audit events so reviewers
// can see what kind of client performed a transition.
package device

import (
	"strings"

	"github.com/mssola/useragent"
)

// ParseUserAgent returns a display name like "Chrome on Mac OS X".
// Unknown or empty user agents degrade gracefully.
func ParseUserAgent(uaString string) string {
	if strings.TrimSpace(uaString) == "" {
		return "Unknown Device"
	}

	ua := useragent.New(uaString)
	browser, _ := ua.Browser()
	os := ua.OS()

	if browser == "" {
		browser = "Unknown Browser"
	}
	if os == "" {
		os = "Unknown OS"
	}

	return browser + " on " + os
}
