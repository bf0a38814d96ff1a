package shared

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePipName(t *testing.T) {
	tests := map[string]string{
		"Django":            "django",
		"typing_extensions": "typing-extensions",
		"zope.interface":    "zope-interface",
		"  Requests  ":      "requests",
		"already-normal":    "already-normal",
	}
	for input, want := range tests {
		assert.Equal(t, want, NormalizePipName(input), input)
	}
}
