// Package devicesupport decides whether a client device can run biometric
// ceremonies. Detection is a pure function over explicit client-reported
// facts so it can be exercised without a browser environment.
package devicesupport

import "strings"

// OS is the coarse operating-system family detected from a user agent.
type OS string

const (
	OSAndroid OS = "android"
	OSIOS     OS = "ios"
	OSMacOS   OS = "macos"
	OSWindows OS = "windows"
	OSLinux   OS = "linux"
	OSUnknown OS = "unknown"
)

// UserAgentInfo carries the client-reported facts detection runs on.
type UserAgentInfo struct {
	UserAgent string
	// PlatformAuthenticators reports whether the client found a built-in
	// authenticator, when it performed that check itself.
	PlatformAuthenticators bool
	SecureContext          bool
}

// PlatformInfo is the detection outcome.
type PlatformInfo struct {
	OS        OS
	Supported bool
}

// Detect classifies the client platform and whether biometric ceremonies can
// run on it. Ceremonies require a secure context and a platform
// authenticator.
func Detect(info UserAgentInfo) PlatformInfo {
	detected := PlatformInfo{OS: detectOS(info.UserAgent)}
	detected.Supported = info.SecureContext && info.PlatformAuthenticators
	return detected
}

func detectOS(userAgent string) OS {
	value := strings.ToLower(userAgent)
	switch {
	case strings.Contains(value, "android"):
		return OSAndroid
	case strings.Contains(value, "iphone"), strings.Contains(value, "ipad"), strings.Contains(value, "ipod"):
		return OSIOS
	case strings.Contains(value, "mac os x"), strings.Contains(value, "macintosh"):
		return OSMacOS
	case strings.Contains(value, "windows"):
		return OSWindows
	case strings.Contains(value, "linux"):
		return OSLinux
	}
	return OSUnknown
}
