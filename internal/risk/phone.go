package risk

import (
	"strings"
	"unicode"
)

// PhoneVariants returns the equivalent written forms of a Bangladeshi mobile
// number: local 01XXXXXXXXX, 8801XXXXXXXXX, +8801XXXXXXXXX and the raw input.
// Numbers that do not look like a local mobile number only match themselves.
func PhoneVariants(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	digits := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, raw)

	seen := make(map[string]struct{})
	var out []string
	add := func(v string) {
		if v == "" {
			return
		}
		if _, ok := seen[v]; ok {
			return
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}

	if local := localForm(digits); local != "" {
		add(local)
		add("88" + local)
		add("+88" + local)
	}
	add(raw)
	add(digits)
	return out
}

func localForm(digits string) string {
	switch {
	case len(digits) == 13 && strings.HasPrefix(digits, "8801"):
		return digits[2:]
	case len(digits) == 11 && strings.HasPrefix(digits, "01"):
		return digits
	case len(digits) == 10 && strings.HasPrefix(digits, "1"):
		return "0" + digits
	default:
		return ""
	}
}
