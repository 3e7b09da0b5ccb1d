package email

import (
	"strings"
	"unicode/utf8"
)

// Mask hides most of the local part of an address for logs:
// "john.doe@example.com" becomes "jo******@example.com". Strings without a
// usable local part are fully masked.
func Mask(address string) string {
	at := strings.LastIndexByte(address, '@')
	if at <= 0 {
		return strings.Repeat("*", utf8.RuneCountInString(address))
	}
	local, domain := address[:at], address[at:]
	runes := []rune(local)
	keep := 2
	if len(runes) <= keep {
		keep = 1
	}
	return string(runes[:keep]) + strings.Repeat("*", len(runes)-keep) + domain
}

// Domain returns the part after the last '@', lower-cased.
func Domain(address string) string {
	at := strings.LastIndexByte(address, '@')
	if at < 0 || at == len(address)-1 {
		return ""
	}
	return strings.ToLower(address[at+1:])
}
