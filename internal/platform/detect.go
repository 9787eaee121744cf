package platform

import (
	"context"
	"fmt"
	"runtime"

	"github.com/shirou/gopsutil/v4/host"
)

// RealDetector implements Detector using actual platform detection.
type RealDetector struct{}

// NewDetector creates a new platform detector.
func NewDetector() Detector {
	return &RealDetector{}
}

// Detect performs platform detection and returns platform information.
//
// On Linux, a failure to read distribution details is not fatal: the
// distro fields stay empty and OS/arch detection still succeeds. Context
// cancellation is reported as an error.
func (d *RealDetector) Detect(ctx context.Context) (*Info, error) {
	info := &Info{
		OS:      runtime.GOOS,
		ArchRaw: runtime.GOARCH,
	}

	arch, err := normalizeArch(runtime.GOARCH)
	if err != nil {
		return nil, fmt.Errorf("platform detection failed: %w", err)
	}
	info.Arch = arch

	if runtime.GOOS == "linux" {
		platform, family, version, err := host.PlatformInformationWithContext(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("platform detection cancelled: %w", ctx.Err())
			}
			return info, nil
		}

		platform = normalizePlatform(platform)
		if platform != "" {
			info.Platform = platform
			info.Family = mapFamily(family, platform)
			info.Version = normalizePlatform(version)
		}
	}

	return info, nil
}

// Override returns a copy of info with OS and/or Arch replaced. Empty
// arguments keep the detected value. Distro details are dropped when the
// OS changes since they no longer describe the target.
func Override(info *Info, goos, goarch string) (*Info, error) {
	out := *info
	if goos != "" && goos != info.OS {
		out.OS = goos
		out.Platform, out.Family, out.Version = "", "", ""
	}
	if goarch != "" {
		arch, err := normalizeArch(goarch)
		if err != nil {
			return nil, err
		}
		out.Arch = arch
		out.ArchRaw = goarch
	}
	return &out, nil
}
