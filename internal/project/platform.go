package project

import "runtime"

// Platform is the host platform a configuration is evaluated against.
type Platform string

const (
	Windows Platform = "windows"
	Linux   Platform = "linux"
	MacOS   Platform = "macos"
	BSD     Platform = "bsd"
	Unix    Platform = "unix" // any platform that is not windows
)

// Host maps the running OS onto the platform enumeration.
func Host() Platform {
	switch runtime.GOOS {
	case "windows":
		return Windows
	case "linux":
		return Linux
	case "darwin":
		return MacOS
	case "freebsd", "netbsd", "openbsd", "dragonfly":
		return BSD
	}
	return Unix
}

// Matches reports whether an IF PLATFORM value names this platform.
// unix matches every platform except windows. ok is false when the
// value is outside the platform enumeration.
func (p Platform) Matches(value string) (match, ok bool) {
	switch Platform(value) {
	case Windows, Linux, MacOS, BSD:
		return p == Platform(value), true
	case Unix:
		return p != Windows, true
	}
	return false, false
}
