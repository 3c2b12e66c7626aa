package utils

import (
	"strings"

	ua "github.com/mssola/user_agent"
)

// Device types recorded in the ride journal
const (
	DeviceUnknown = "unknown"
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
	DeviceDesktop = "desktop"
	DeviceBot     = "bot"
)

// DeviceInfo holds parsed information from a User-Agent string
type DeviceInfo struct {
	DeviceType string `json:"device_type"`
	OS         string `json:"os"`
	Browser    string `json:"browser"`
	IsBot      bool   `json:"is_bot"`
	Raw        string `json:"raw"`
}

// ParseUserAgent parses a User-Agent string and extracts device information
func ParseUserAgent(userAgent string) DeviceInfo {
	if userAgent == "" || userAgent == "Unknown" {
		return DeviceInfo{
			DeviceType: DeviceUnknown,
			OS:         "Unknown",
			Browser:    "Unknown",
			Raw:        userAgent,
		}
	}

	parser := ua.New(userAgent)
	name, _ := parser.Browser()
	if name == "" {
		name = "Unknown"
	}

	info := DeviceInfo{
		OS:      getOS(parser),
		Browser: name,
		IsBot:   parser.Bot(),
		Raw:     userAgent,
	}
	info.DeviceType = getDeviceType(parser, info.IsBot)
	return info
}

func getDeviceType(parser *ua.UserAgent, bot bool) string {
	switch {
	case bot:
		return DeviceBot
	case parser.Mobile() && isTablet(parser.UA()):
		return DeviceTablet
	case parser.Mobile():
		return DeviceMobile
	default:
		return DeviceDesktop
	}
}

func isTablet(userAgent string) bool {
	lower := strings.ToLower(userAgent)
	for _, indicator := range []string{"ipad", "tablet", "kindle", "sm-t", "nexus 7", "nexus 9"} {
		if strings.Contains(lower, indicator) {
			return true
		}
	}
	return false
}

func getOS(parser *ua.UserAgent) string {
	osInfo := parser.OSInfo()
	if osInfo.Name == "" {
		return "Unknown"
	}
	if osInfo.Version != "" {
		return osInfo.Name + " " + osInfo.Version
	}
	return osInfo.Name
}
