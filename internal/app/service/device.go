package service

import (
	"regexp"
	"strings"

	"github.com/sifan077/linkgate/internal/app/model"
)

var (
	tabletPattern = regexp.MustCompile(`tablet|ipad|playbook|silk`)
	mobilePattern = regexp.MustCompile(`mobile|iphone|ipod|android|blackberry|iemobile|kindle|silk-accelerated|hpwos|webos|opera mobi|opera mini`)
)

// ClassifyDevice derives a coarse device type from a user-agent string.
// Tablet rules run before mobile ones because tablet UAs often contain mobile tokens.
func ClassifyDevice(userAgent string) string {
	ua := strings.ToLower(strings.TrimSpace(userAgent))
	if ua == "" || ua == "unknown" {
		return model.DeviceUnknown
	}

	if tabletPattern.MatchString(ua) || isAndroidTablet(ua) {
		return model.DeviceTablet
	}
	if mobilePattern.MatchString(ua) {
		return model.DeviceMobile
	}
	return model.DeviceDesktop
}

// isAndroidTablet matches Android UAs that do not advertise "mobi" after the
// android token; Android phones always do.
func isAndroidTablet(ua string) bool {
	idx := strings.LastIndex(ua, "android")
	if idx < 0 {
		return false
	}
	return !strings.Contains(ua[idx:], "mobi")
}
