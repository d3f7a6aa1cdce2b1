package redaction

import (
	"strings"

	"github.com/S-feLayer/SafeLayer-Chat/internal/detect"
)

// placeholderMask replaces spans whose entity resolution failed. Generic on
// purpose: a broken span still must not reach the model in the clear.
const placeholderMask = "[REDACTED]"

// maskFor produces the display mask for a newly created entity. personLabel
// is only consulted for person names; reveal only for custom patterns. The
// caller stores the result on the entity, so this runs once per entity.
func maskFor(typ detect.EntityType, raw, patternID, personLabel string, reveal *detect.Reveal) string {
	switch typ {
	case detect.TypePersonName:
		return "Person " + personLabel
	case detect.TypeEmail:
		return maskEmail(raw)
	case detect.TypePhone:
		return maskPhone(raw)
	case detect.TypeCreditCard:
		return maskCreditCard(raw)
	case detect.TypeSSN:
		return "***-**-****"
	case detect.TypeAPIKey:
		return maskAPIKey(raw)
	case detect.TypeAddress:
		return "[ADDRESS]"
	case detect.TypeCustom:
		return maskCustom(raw, patternID, reveal)
	default:
		return placeholderMask
	}
}

// maskEmail keeps the first two characters of the local part and the whole
// domain: jo**@acme.com. A local part shorter than two characters is masked
// entirely. The masked segment is fixed-width so the local part's length
// does not leak. Slicing is by rune: detector-reported values are not
// guaranteed ASCII and the mask must stay valid UTF-8.
func maskEmail(raw string) string {
	at := strings.LastIndex(raw, "@")
	if at < 0 {
		return "[EMAIL]"
	}
	local, domain := []rune(raw[:at]), raw[at+1:]
	if len(local) < 2 {
		return "**@" + domain
	}
	return string(local[:2]) + "**@" + domain
}

// maskPhone keeps the first two and last four digits around a fixed-shape
// middle: 55**-**-4567. Numbers with fewer than six digits are fully masked.
func maskPhone(raw string) string {
	digits := digitsOnly(raw)
	if len(digits) < 6 {
		return "**-**-****"
	}
	return digits[:2] + "**-**-" + digits[len(digits)-4:]
}

// maskCreditCard keeps the last four digits in a fixed 4x4 grouping.
func maskCreditCard(raw string) string {
	digits := digitsOnly(raw)
	if len(digits) < 4 {
		return "****-****-****-****"
	}
	return "****-****-****-" + digits[len(digits)-4:]
}

// maskAPIKey keeps the first four and last two characters around a fixed
// ten-asterisk middle, hiding the key's true length. Short keys are fully
// masked at a fixed width.
func maskAPIKey(raw string) string {
	r := []rune(raw)
	if len(r) <= 8 {
		return strings.Repeat("*", 12)
	}
	return string(r[:4]) + strings.Repeat("*", 10) + string(r[len(r)-2:])
}

// maskCustom is a typed placeholder unless the pattern declares a
// partial-reveal rule, in which case the declared prefix and suffix stay
// visible around a fixed-width middle.
func maskCustom(raw, patternID string, reveal *detect.Reveal) string {
	if reveal == nil || (reveal.Prefix <= 0 && reveal.Suffix <= 0) {
		return "[CUSTOM:" + patternID + "]"
	}
	p, s := reveal.Prefix, reveal.Suffix
	if p < 0 {
		p = 0
	}
	if s < 0 {
		s = 0
	}
	r := []rune(raw)
	if p+s >= len(r) {
		return "[CUSTOM:" + patternID + "]"
	}
	return string(r[:p]) + strings.Repeat("*", 4) + string(r[len(r)-s:])
}
