package decorator

import (
	"strings"
	"unicode"
)

// toSnake turns an operation name such as "LikePost" or "like-post" into the
// lock namespace "like_post". Anything that is not a letter or digit becomes
// a single underscore so lock keys stay valid Redis keys.
func toSnake(s string) string {
	runes := []rune(strings.TrimSpace(s))
	var b strings.Builder
	b.Grow(len(runes) + len(runes)/2)

	pending := false
	for i, r := range runes {
		switch {
		case unicode.IsUpper(r):
			if i > 0 {
				prev := runes[i-1]
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
					pending = true
				}
			}
			r = unicode.ToLower(r)
		case unicode.IsLower(r) || unicode.IsDigit(r):
		default:
			pending = true
			continue
		}

		if pending && b.Len() > 0 {
			b.WriteByte('_')
		}
		pending = false
		b.WriteRune(r)
	}

	return b.String()
}
