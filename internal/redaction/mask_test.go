package redaction

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"github.com/S-feLayer/SafeLayer-Chat/internal/detect"
)

func TestMaskEmail(t *testing.T) {
	assert.Equal(t, "jo**@acme.com", maskEmail("john@acme.com"))
	assert.Equal(t, "**@acme.com", maskEmail("j@acme.com"))
	assert.Equal(t, "[EMAIL]", maskEmail("not-an-email"))
	// Mask width is fixed regardless of local-part length.
	assert.Equal(t, "ve**@acme.com", maskEmail("verylonglocalpart@acme.com"))
}

func TestMaskPhone(t *testing.T) {
	assert.Equal(t, "55**-**-4567", maskPhone("555-123-4567"))
	assert.Equal(t, "15**-**-4567", maskPhone("+1 (555) 123-4567"))
	assert.Equal(t, "**-**-****", maskPhone("12345"))
}

func TestMaskCreditCard(t *testing.T) {
	assert.Equal(t, "****-****-****-1234", maskCreditCard("4111-1111-1111-1234"))
	assert.Equal(t, "****-****-****-1111", maskCreditCard("4111 1111 1111 1111"))
	assert.Equal(t, "****-****-****-****", maskCreditCard("123"))
}

func TestMaskAPIKey(t *testing.T) {
	assert.Equal(t, "sk-a**********yz", maskAPIKey("sk-abcdefghijklmnopqrstuvwxyz"))
	assert.Equal(t, "************", maskAPIKey("short"))
	// Mask width never tracks key length.
	long := maskAPIKey("sk-" + strings.Repeat("x", 100))
	assert.Len(t, long, 4+10+2)
}

func TestMaskMultibyteValues(t *testing.T) {
	// Detector-reported values are not guaranteed ASCII; masks must slice on
	// rune boundaries and stay valid UTF-8.
	assert.Equal(t, "żó**@acme.com", maskEmail("żółć@acme.com"))
	assert.True(t, utf8.ValidString(maskEmail("日本語ローカル@example.jp")))

	key := maskAPIKey("ключ-абвгдеёжзийклмн")
	assert.True(t, utf8.ValidString(key))
	assert.Equal(t, "ключ**********мн", key)

	custom := maskCustom("Bürger-90210", "badge", &detect.Reveal{Prefix: 2, Suffix: 1})
	assert.True(t, utf8.ValidString(custom))
	assert.Equal(t, "Bü****0", custom)
}

func TestMaskCustom(t *testing.T) {
	assert.Equal(t, "[CUSTOM:employee_id]", maskCustom("EMP-90210", "employee_id", nil))
	assert.Equal(t, "EMP-****0", maskCustom("EMP-90210", "employee_id", &detect.Reveal{Prefix: 4, Suffix: 1}))
	// Reveal wider than the value falls back to the placeholder.
	assert.Equal(t, "[CUSTOM:employee_id]", maskCustom("EMP", "employee_id", &detect.Reveal{Prefix: 4, Suffix: 4}))
}

func TestMaskForSSNAndAddress(t *testing.T) {
	assert.Equal(t, "***-**-****", maskFor(detect.TypeSSN, "123-45-6789", "", "", nil))
	assert.Equal(t, "[ADDRESS]", maskFor(detect.TypeAddress, "12 Main Street", "", "", nil))
	assert.Equal(t, "Person A", maskFor(detect.TypePersonName, "John Smith", "", "A", nil))
}

func TestCanonicalKey(t *testing.T) {
	tests := []struct {
		typ       detect.EntityType
		patternID string
		raw       string
		want      string
	}{
		{detect.TypePersonName, "", "  John   SMITH ", "john smith"},
		{detect.TypeEmail, "", "John.Doe@Acme.COM", "john.doe@acme.com"},
		{detect.TypePhone, "", "+1 (555) 123-4567", "15551234567"},
		{detect.TypeCreditCard, "", "4111-1111-1111-1234", "4111111111111234"},
		{detect.TypeSSN, "", "123-45-6789", "123456789"},
		{detect.TypeAPIKey, "", "sk-AbC", "sk-AbC"},
		{detect.TypeAddress, "", "12  Main Street", "12 main street"},
		{detect.TypeCustom, "badge", "X1", "badge:X1"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CanonicalKey(tt.typ, tt.patternID, tt.raw), "%s %q", tt.typ, tt.raw)
	}
}
