package session

import (
	"fmt"
	"strings"
	"time"
	"unicode"
)

const (
	maxCustomLabel = 80
	unknownAddress = "unknown-address"
)

// SanitizeCustomLabel makes a user label safe as a directory name. It returns
// "" when nothing usable remains, including labels made only of dots.
func SanitizeCustomLabel(label string) string {
	label = strings.TrimSpace(label)
	if label == "" {
		return ""
	}
	var b strings.Builder
	for _, r := range label {
		if strings.ContainsRune(`<>:"/\|?*`, r) || r < 0x20 {
			continue
		}
		b.WriteRune(r)
	}
	out := strings.Join(strings.FieldsFunc(b.String(), unicode.IsSpace), "-")
	if r := []rune(out); len(r) > maxCustomLabel {
		out = string(r[:maxCustomLabel])
	}
	if strings.Trim(out, ".") == "" {
		return ""
	}
	return out
}

// AddressLabel shortens an address to a directory-safe label: alphanumerics
// only, and first 9 + "..." + last 5 when longer than 14 characters.
func AddressLabel(address string) string {
	var b strings.Builder
	for _, r := range address {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
		}
	}
	safe := b.String()
	if safe == "" {
		return unknownAddress
	}
	if len(safe) <= 14 {
		return safe
	}
	return safe[:9] + "..." + safe[len(safe)-5:]
}

// Timestamp formats t as the session directory name (YYYYMMDD-HHMMSS).
func Timestamp(t time.Time) string {
	return fmt.Sprintf("%04d%02d%02d-%02d%02d%02d",
		t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second())
}
