// Package version provides control-protocol version parsing and
// comparison helpers.
package version

import (
	"fmt"
	"strconv"
	"strings"
)

// Library is the version of this library.
const Library = "0.1.0"

// Protocol is the control-channel protocol major version spoken by the
// wire package. Emulators announce it in their mDNS TXT record.
const Protocol uint16 = 1

// Version represents a parsed "major.minor" protocol version.
type Version struct {
	Major uint16
	Minor uint16
}

// Parse parses a "major.minor" version string.
func Parse(s string) (Version, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 2 {
		return Version{}, fmt.Errorf("invalid version %q: expected major.minor", s)
	}

	major, err := strconv.ParseUint(parts[0], 10, 16)
	if err != nil || parts[0] == "" {
		return Version{}, fmt.Errorf("invalid version %q: bad major component", s)
	}

	minor, err := strconv.ParseUint(parts[1], 10, 16)
	if err != nil || parts[1] == "" {
		return Version{}, fmt.Errorf("invalid version %q: bad minor component", s)
	}

	return Version{Major: uint16(major), Minor: uint16(minor)}, nil
}

// String returns the version as "major.minor".
func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Compatible reports whether the other version has the same major
// version.
func (v Version) Compatible(other Version) bool {
	return v.Major == other.Major
}

// ProtocolTXT returns the mDNS TXT record carrying the protocol version.
func ProtocolTXT() string {
	return fmt.Sprintf("v=%d", Protocol)
}

// ProtocolFromTXT extracts the protocol major version from an mDNS TXT
// record ("v=N"). Records without a version prefix are an error.
func ProtocolFromTXT(txt string) (uint16, error) {
	if !strings.HasPrefix(txt, "v=") {
		return 0, fmt.Errorf("not a version record: %q", txt)
	}
	n, err := strconv.ParseUint(txt[len("v="):], 10, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid version record %q: %w", txt, err)
	}
	return uint16(n), nil
}
