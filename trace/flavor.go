package trace

import "strings"

// HitsFlavor returns flavor with the "-hits" suffix, keeping the caller's prefix.
func HitsFlavor(flavor string) string {
	if flavor == "" {
		flavor = FlavorStandard
	}
	if strings.HasSuffix(flavor, HitsSuffix) {
		return flavor
	}

	return flavor + HitsSuffix
}

// PlainFlavor strips a trailing "-hits" suffix.
func PlainFlavor(flavor string) string {
	if flavor == "" || flavor == HitsSuffix {
		return FlavorStandard
	}

	return strings.TrimSuffix(flavor, HitsSuffix)
}
