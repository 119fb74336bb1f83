package textnorm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"lowercases", "Klimapolitik", "klimapolitik"},
		{"trims", "  climate policy  ", "climate policy"},
		{"collapses escaped newlines", `climate\npolicy`, "climate policy"},
		{"collapses real newlines", "climate\npolicy", "climate policy"},
		{"squeezes whitespace", "climate \t  policy", "climate policy"},
		{"empty", "", ""},
		{"whitespace only", " \n ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestNormalizeEquivalence(t *testing.T) {
	// Inputs that differ only by case, whitespace and newline encoding
	// must normalize identically, since the cache key is derived from
	// the normalized form.
	variants := []string{
		"Climate Policy",
		"climate policy",
		"  climate\npolicy ",
		`CLIMATE\nPOLICY`,
	}
	want := Normalize(variants[0])
	for _, v := range variants[1:] {
		assert.Equal(t, want, Normalize(v), "variant %q", v)
	}
}
