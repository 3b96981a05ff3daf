package template

import (
	"fmt"
	"strings"
)

// NormalizePhone canonicalizes a raw CRM phone number to +<digits>.
// Accepted input may carry spaces, dashes, dots, parentheses or an
// international 00 prefix. Numbers that do not leave 8-15 digits are
// rejected; such leads are skipped without a status record.
func NormalizePhone(raw string) (string, error) {
	var b strings.Builder
	for _, r := range strings.TrimSpace(raw) {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+', r == ' ', r == '-', r == '.', r == '(', r == ')':
			// stripped
		default:
			return "", fmt.Errorf("phone %q contains invalid character %q", raw, r)
		}
	}
	digits := strings.TrimPrefix(b.String(), "00")
	if len(digits) < 8 || len(digits) > 15 {
		return "", fmt.Errorf("phone %q has %d digits, want 8-15", raw, len(digits))
	}
	return "+" + digits, nil
}

// StoredPhone is the status-table form of a normalized number: the same
// digits without the leading '+'.
func StoredPhone(normalized string) string {
	return strings.TrimPrefix(normalized, "+")
}
