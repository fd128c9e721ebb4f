package fulfillment

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/width"
)

// NormalizeProductCode makes product codes comparable across feeds:
// full-width digits are narrowed, case is folded and all whitespace is removed.
func NormalizeProductCode(code string) string {
	folded := cases.Fold().String(width.Fold.String(code))
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, folded)
}
