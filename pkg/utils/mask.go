package utils

import (
	"regexp"
	"strings"
)

var dsnPasswordRegex = regexp.MustCompile(`(:)([^:@]+)(@)`)

// MaskDSN hides the password segment of a connection string.
func MaskDSN(dsn string) string {
	return dsnPasswordRegex.ReplaceAllString(dsn, ":***@")
}

// MaskPhone keeps the country prefix and the last four digits of a buyer phone.
func MaskPhone(phone string) string {
	if len(phone) <= 4 {
		return strings.Repeat("*", len(phone))
	}
	keepHead := 0
	if strings.HasPrefix(phone, "+") && len(phone) > 8 {
		keepHead = 4
	}
	tail := len(phone) - 4
	return phone[:keepHead] + strings.Repeat("*", tail-keepHead) + phone[tail:]
}
