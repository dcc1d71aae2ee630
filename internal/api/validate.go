package api

import (
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// Field length caps applied by the request validators. Short strings
// cover extension and mailbox numbers, long strings cover TTS text and
// file paths, and the JSON cap bounds time-condition match blocks.
const (
	maxNameLen         = 200
	maxShortStringLen  = 40
	maxEmailLen        = 254 // RFC 5321
	maxPasswordLen     = 256
	maxURLLen          = 2048
	maxHostLen         = 253
	maxLongStringLen   = 1000
	maxSettingsJSONLen = 512 * 1024
)

var (
	// Structural check only, not full RFC 5322.
	emailRe     = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	extensionRe = regexp.MustCompile(`^\d{1,20}$`)
	pinRe       = regexp.MustCompile(`^\d{4,20}$`)
)

// Each validator returns a client-facing message, or "" when the value
// is acceptable.

func validateStringLen(field, value string, maxLen int) string {
	if utf8.RuneCountInString(value) > maxLen {
		return field + " exceeds maximum length"
	}
	return ""
}

func validateRequiredStringLen(field, value string, maxLen int) string {
	if value == "" {
		return field + " is required"
	}
	return validateStringLen(field, value, maxLen)
}

func validateEmail(field, value string) string {
	switch {
	case value == "":
		return ""
	case len(value) > maxEmailLen:
		return field + " exceeds maximum length"
	case !emailRe.MatchString(value):
		return field + " is not a valid email address"
	}
	return ""
}

func validateExtensionNumber(field, value string) string {
	if value == "" {
		return field + " is required"
	}
	if !extensionRe.MatchString(value) {
		return field + " must contain only digits (max 20)"
	}
	return ""
}

// A blank PIN is allowed, the field is optional.
func validatePIN(field, value string) string {
	if value != "" && !pinRe.MatchString(value) {
		return field + " must be 4-20 digits"
	}
	return ""
}

func validateIP(field, value string) string {
	if value != "" && net.ParseIP(value) == nil {
		return field + " is not a valid IP address"
	}
	return ""
}

// validateHost accepts an IP literal or a plausible hostname.
func validateHost(field, value string) string {
	if value == "" {
		return ""
	}
	if len(value) > maxHostLen {
		return field + " exceeds maximum length"
	}
	if net.ParseIP(value) != nil {
		return ""
	}
	if strings.ContainsAny(value, " \t\n\r") {
		return field + " contains invalid characters"
	}
	return ""
}

func validateTimezone(field, value string) string {
	if value == "" {
		return ""
	}
	if len(value) > maxNameLen {
		return field + " exceeds maximum length"
	}
	if _, err := time.LoadLocation(value); err != nil {
		return field + " is not a valid IANA timezone"
	}
	return ""
}

func validateIntRange(field string, value *int, min, max int) string {
	if value != nil && (*value < min || *value > max) {
		return field + " must be between " + strconv.Itoa(min) + " and " + strconv.Itoa(max)
	}
	return ""
}

// validateIPList accepts bare addresses and CIDR blocks, skipping
// blank entries.
func validateIPList(field string, ips []string) string {
	for i, ip := range ips {
		ip = strings.TrimSpace(ip)
		if ip == "" {
			continue
		}
		if strings.Contains(ip, "/") {
			if _, _, err := net.ParseCIDR(ip); err != nil {
				return field + "[" + strconv.Itoa(i) + "] is not a valid IP or CIDR"
			}
			continue
		}
		if net.ParseIP(ip) == nil {
			return field + "[" + strconv.Itoa(i) + "] is not a valid IP address"
		}
	}
	return ""
}

// Tab, CR and LF are tolerated, all other control characters are not.
func containsControlChars(s string) bool {
	for _, r := range s {
		if r < 32 && r != '\n' && r != '\r' && r != '\t' {
			return true
		}
	}
	return false
}

func validateNoControlChars(field, value string) string {
	if containsControlChars(value) {
		return field + " contains invalid characters"
	}
	return ""
}
