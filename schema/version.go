package schema

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseVersion converts a dotted version string such as "20.2.0.7" into a
// packed uint32 (0x14020007). One to four components are accepted; missing
// components are zero. A plain integer or 0x-prefixed value is taken as an
// already-packed version number.
func ParseVersion(s string) (uint32, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty version string")
	}
	if !strings.Contains(s, ".") {
		v, err := strconv.ParseUint(s, 0, 32)
		if err != nil {
			return 0, fmt.Errorf("malformed version %q", s)
		}
		return uint32(v), nil
	}
	parts := strings.Split(s, ".")
	if len(parts) > 4 {
		return 0, fmt.Errorf("malformed version %q: more than four components", s)
	}
	var packed uint32
	shift := 24
	for _, p := range parts {
		v, err := strconv.ParseUint(p, 10, 8)
		if err != nil {
			return 0, fmt.Errorf("malformed version %q: component %q", s, p)
		}
		packed |= uint32(v) << shift
		shift -= 8
	}
	return packed, nil
}

// FormatVersion renders a packed version number back into dotted form.
func FormatVersion(v uint32) string {
	return fmt.Sprintf("%d.%d.%d.%d", v>>24, (v>>16)&0xff, (v>>8)&0xff, v&0xff)
}
