package masking

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskSecret(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"   ", ""},
		{"pm_card_4242424242", "pm_card_****4242"},
		{"pm_123", "pm_****"},
		{"secretvalue", "****alue"},
		{"trailing_", "****ing_"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MaskSecret(tt.in), tt.in)
	}
}

func TestMaskMetadataOnlyTouchesSensitiveKeys(t *testing.T) {
	got := MaskMetadata(map[string]any{
		"payment_method_ref": "pm_card_4242424242",
		"plan":               "pro",
		" ":                  "dropped",
		"nested": map[string]any{
			"Client_Secret": "pi_abc_secret_zzzz9999",
			"quantity":      int64(2),
		},
		"refs": []any{"keep"},
	})

	assert.Equal(t, map[string]any{
		"payment_method_ref": "pm_card_****4242",
		"plan":               "pro",
		"nested": map[string]any{
			"Client_Secret": "pi_abc_secret_****9999",
			"quantity":      int64(2),
		},
		"refs": []any{"keep"},
	}, got)
}

func TestMaskMetadataEmpty(t *testing.T) {
	assert.Nil(t, MaskMetadata(nil))
	assert.Nil(t, MaskMetadata(map[string]any{"": "x"}))
}
