// Package platform detects the host OS, architecture and Linux distribution
// that decide which ast-grep release asset and executable names apply.
//
// Detection uses runtime.GOOS/GOARCH plus gopsutil for distribution details,
// falling back to OS/arch only when the distribution cannot be read. The
// result can also be exposed to Lua configuration as a read-only table.
package platform

import "context"

// Linux distribution family constants.
const (
	FamilyDebian  = "debian"  // Debian, Ubuntu, Linux Mint
	FamilyRHEL    = "rhel"    // RHEL, CentOS, Rocky Linux, AlmaLinux
	FamilyFedora  = "fedora"  // Fedora
	FamilySUSE    = "suse"    // openSUSE, SLES
	FamilyArch    = "arch"    // Arch Linux, Manjaro
	FamilyAlpine  = "alpine"  // Alpine Linux
	FamilyUnknown = "unknown" // Unrecognized distributions
)

// Info contains platform detection information.
type Info struct {
	OS       string // "linux", "darwin", "windows"
	Arch     string // "amd64", "arm64", "386" (normalized)
	ArchRaw  string // original GOARCH
	Platform string // distro ID (Linux only, e.g., "ubuntu")
	Family   string // canonical family (e.g., "debian")
	Version  string // distro version (Linux only, e.g., "22.04")
}

// IsLinux returns true if the platform is Linux.
func (i *Info) IsLinux() bool {
	return i.OS == "linux"
}

// IsMacOS returns true if the platform is macOS.
func (i *Info) IsMacOS() bool {
	return i.OS == "darwin"
}

// IsWindows returns true if the platform is Windows.
func (i *Info) IsWindows() bool {
	return i.OS == "windows"
}

// ExeSuffix returns ".exe" on Windows and "" elsewhere.
func (i *Info) ExeSuffix() string {
	if i.IsWindows() {
		return ".exe"
	}
	return ""
}

// ExecutableName appends the platform executable suffix to name.
func (i *Info) ExecutableName(name string) string {
	return name + i.ExeSuffix()
}

// InstallHints lists package-manager commands that install ast-grep on
// this platform, most specific first.
func (i *Info) InstallHints() []string {
	var hints []string
	switch {
	case i.IsMacOS():
		hints = append(hints, "brew install ast-grep")
	case i.IsWindows():
		hints = append(hints, "scoop install main/ast-grep", "winget install ast-grep")
	case i.IsLinux() && i.Family == FamilyArch:
		hints = append(hints, "pacman -S ast-grep")
	case i.IsLinux() && i.Family == FamilyAlpine:
		hints = append(hints, "apk add ast-grep")
	case i.IsLinux():
		hints = append(hints, "brew install ast-grep")
	}
	return append(hints,
		"npm install --global @ast-grep/cli",
		"pip install ast-grep-cli",
		"cargo install ast-grep --locked",
	)
}

// Detector is the interface for platform detection.
type Detector interface {
	Detect(ctx context.Context) (*Info, error)
}
