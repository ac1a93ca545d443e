package display

import (
	"fmt"
	"strings"
)

// OutputName builds the stable display name from a connector interface name
// and its per-type instance number, e.g. "DP-1" or "HDMI-A-2".
func OutputName(iface string, instance uint32) string {
	return fmt.Sprintf("%s-%d", iface, instance)
}

// NamesMatch compares a configured output name against a discovered one.
//
// Exact case-insensitive matches win. Otherwise both names are compared in
// canonical form, and once more with a trailing MST/tile index dropped from
// either side, so a configured "DP-1" still finds "DP-1-8".
func NamesMatch(configured, actual string) bool {
	if strings.EqualFold(configured, actual) {
		return true
	}
	c, a := CanonicalName(configured), CanonicalName(actual)
	if c == a {
		return true
	}
	if stripped, ok := stripTileSuffix(a); ok && stripped == c {
		return true
	}
	if stripped, ok := stripTileSuffix(c); ok && stripped == a {
		return true
	}
	return false
}

// CanonicalName upper-cases name and drops a single one-letter segment
// directly before a trailing numeric segment, so "HDMI-A-1" and "HDMI-1"
// compare equal. Names with fewer than three segments are returned as-is.
func CanonicalName(name string) string {
	normalized := strings.ToUpper(strings.TrimSpace(name))
	parts := strings.Split(normalized, "-")
	if len(parts) < 3 {
		return normalized
	}

	penultimate := parts[len(parts)-2]
	last := parts[len(parts)-1]
	if len(penultimate) == 1 && isASCIILetter(penultimate[0]) && allDigits(last) {
		parts = append(parts[:len(parts)-2], last)
	}
	return strings.Join(parts, "-")
}

// stripTileSuffix removes the last segment of an already canonical name when
// both it and the segment before it are numeric ("DP-1-8" -> "DP-1").
func stripTileSuffix(name string) (string, bool) {
	parts := strings.Split(name, "-")
	if len(parts) < 3 {
		return name, false
	}
	if !allDigits(parts[len(parts)-1]) || !allDigits(parts[len(parts)-2]) {
		return name, false
	}
	return strings.Join(parts[:len(parts)-1], "-"), true
}

func isASCIILetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
