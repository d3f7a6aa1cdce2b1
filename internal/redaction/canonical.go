package redaction

import (
	"strings"

	"github.com/S-feLayer/SafeLayer-Chat/internal/detect"
)

// CanonicalKey normalizes a raw value for identity matching. Two spans with
// the same canonical key and type refer to the same entity. The raw value is
// never mutated; the key is derived on demand.
func CanonicalKey(typ detect.EntityType, patternID, raw string) string {
	switch typ {
	case detect.TypePersonName, detect.TypeAddress:
		return collapseWhitespace(strings.ToLower(raw))
	case detect.TypeEmail:
		return strings.ToLower(strings.TrimSpace(raw))
	case detect.TypePhone, detect.TypeCreditCard, detect.TypeSSN:
		return digitsOnly(raw)
	case detect.TypeCustom:
		return patternID + ":" + raw
	default: // api keys and anything else match verbatim
		return raw
	}
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func digitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, ch := range s {
		if ch >= '0' && ch <= '9' {
			b.WriteRune(ch)
		}
	}
	return b.String()
}
