package loop_client

import (
	"fmt"
	"runtime"
)

// Platform identifies one of the supported desktop platforms, using the same tags as Node's process.platform.
type Platform string

const (
	PlatformWindows Platform = "win32"
	PlatformLinux   Platform = "linux"
	PlatformDarwin  Platform = "darwin"
)

var ErrUnsupportedPlatform = fmt.Errorf("unsupported platform")

// ParsePlatform accepts either a platform tag or a Go GOOS value.
func ParsePlatform(s string) (Platform, error) {
	switch s {
	case "win32", "windows":
		return PlatformWindows, nil
	case "linux":
		return PlatformLinux, nil
	case "darwin", "macos":
		return PlatformDarwin, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedPlatform, s)
	}
}

// CurrentPlatform maps runtime.GOOS to a Platform; anything unknown is treated as POSIX-style Linux.
func CurrentPlatform() Platform {
	if p, err := ParsePlatform(runtime.GOOS); err == nil {
		return p
	}
	return PlatformLinux
}

// Separator is the path separator convention used on the platform.
func (p Platform) Separator() string {
	if p == PlatformWindows {
		return `\`
	}
	return "/"
}

func (p Platform) String() string {
	return string(p)
}
