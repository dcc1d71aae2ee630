// Package provision serves per-device configuration files to endpoints.
package provision

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrBadMAC is returned when a candidate string is not a MAC address.
var ErrBadMAC = errors.New("not a mac address")

var macUARe = regexp.MustCompile(`(?i)\b([0-9a-f]{2}[:-]?){5}[0-9a-f]{2}\b`)

// NormalizeMAC canonicalises a MAC address to AA:BB:CC:DD:EE:FF. Separators
// are stripped first, so the function is idempotent.
func NormalizeMAC(s string) (string, error) {
	hex := strings.ToUpper(strings.NewReplacer(":", "", "-", "", ".", "").Replace(s))
	if len(hex) != 12 {
		return "", fmt.Errorf("%w: %q", ErrBadMAC, s)
	}
	for _, c := range hex {
		if (c < '0' || c > '9') && (c < 'A' || c > 'F') {
			return "", fmt.Errorf("%w: %q", ErrBadMAC, s)
		}
	}
	var b strings.Builder
	for i := 0; i < 12; i += 2 {
		if i > 0 {
			b.WriteByte(':')
		}
		b.WriteString(hex[i : i+2])
	}
	return b.String(), nil
}

// MACFromUserAgent extracts the first MAC address embedded in a User-Agent
// header. Phones commonly append their MAC after the firmware version.
func MACFromUserAgent(ua string) (string, error) {
	m := macUARe.FindString(ua)
	if m == "" {
		return "", fmt.Errorf("%w: no mac in user agent", ErrBadMAC)
	}
	return NormalizeMAC(m)
}
