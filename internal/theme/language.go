package theme

import "strings"

// NormalizeLanguage reduces a language tag to its lowercase primary subtag
// ("en" from "EN_us"). Returns "" for blank or invalid tags.
func NormalizeLanguage(raw string) string {
	tag := strings.ToLower(strings.TrimSpace(raw))
	if tag == "" {
		return ""
	}

	tag = strings.ReplaceAll(tag, "_", "-")
	for _, part := range strings.Split(tag, "-") {
		if part == "" {
			continue
		}
		if !isLowerAlpha(part) {
			return ""
		}
		return part
	}
	return ""
}

func isLowerAlpha(value string) bool {
	for _, r := range value {
		if r < 'a' || r > 'z' {
			return false
		}
	}
	return true
}
