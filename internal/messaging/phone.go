package messaging

import (
	"regexp"
	"strings"
)

var phoneDigitsRe = regexp.MustCompile(`\d+`)

// NormalizeE164 ensures the value begins with + and only contains digits afterward.
// Channel-prefixed ids such as "whatsapp:+1555..." keep their prefix.
func NormalizeE164(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	prefix := ""
	if i := strings.Index(value, ":"); i > 0 {
		prefix, value = strings.ToLower(value[:i+1]), value[i+1:]
	}
	digits := sanitizePhone(value)
	if digits == "" {
		return ""
	}
	return prefix + "+" + digits
}

func sanitizePhone(value string) string {
	if value == "" {
		return ""
	}
	return strings.Join(phoneDigitsRe.FindAllString(value, -1), "")
}
