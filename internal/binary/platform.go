package binary

import (
	"fmt"
	"strings"

	"github.com/ZebulonRouseFrantzich/sgctl/internal/platform"
)

// releaseTargets maps GOOS/GOARCH to the target triple used in ast-grep
// release asset names.
var releaseTargets = map[string]map[string]string{
	"linux": {
		"amd64": "x86_64-unknown-linux-gnu",
		"arm64": "aarch64-unknown-linux-gnu",
	},
	"darwin": {
		"amd64": "x86_64-apple-darwin",
		"arm64": "aarch64-apple-darwin",
	},
	"windows": {
		"amd64": "x86_64-pc-windows-msvc",
		"arm64": "aarch64-pc-windows-msvc",
		"386":   "i686-pc-windows-msvc",
	},
}

// releaseTarget returns the target triple for a platform.
func releaseTarget(goos, goarch string) (string, error) {
	arches, ok := releaseTargets[goos]
	if !ok {
		return "", fmt.Errorf("no ast-grep release for OS %q", goos)
	}
	target, ok := arches[goarch]
	if !ok {
		return "", fmt.Errorf("no ast-grep release for %s/%s", goos, goarch)
	}
	return target, nil
}

// constructDownloadInfo builds the release asset URL for version on the
// given platform.
// Pattern: {base}/{version}/app-{target}.zip
func constructDownloadInfo(version string, info *platform.Info, baseURL string) (*DownloadInfo, error) {
	if info == nil {
		return nil, fmt.Errorf("platform info is required")
	}
	if version == "" {
		return nil, fmt.Errorf("version is required")
	}

	target, err := releaseTarget(info.OS, info.Arch)
	if err != nil {
		return nil, err
	}

	asset := fmt.Sprintf("app-%s.zip", target)
	base := strings.TrimSuffix(baseURL, "/")
	url := fmt.Sprintf("%s/%s/%s", base, version, asset)

	return &DownloadInfo{
		Version:      version,
		OS:           info.OS,
		Arch:         info.Arch,
		Target:       target,
		AssetName:    asset,
		URL:          url,
		SignatureURL: url + ".sig",
	}, nil
}

// cacheFileName is the platform-specific name of a downloaded binary in the
// cache directory, e.g. "ast-grep-linux-amd64" or "ast-grep-windows-amd64.exe".
func cacheFileName(info *platform.Info) string {
	return info.ExecutableName(fmt.Sprintf("%s-%s-%s", ToolName, info.OS, info.Arch))
}

// pathVariants lists the file names tried in each PATH directory. Windows
// installs ast-grep as an .exe, or as .cmd/.ps1 shims from npm.
func pathVariants(info *platform.Info) []string {
	if info.IsWindows() {
		return []string{ToolName + ".exe", ToolName + ".cmd", ToolName + ".ps1", ToolName}
	}
	return []string{ToolName}
}
