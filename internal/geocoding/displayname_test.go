package geocoding_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/driveless/driveless/internal/geocoding"
)

func TestDisplayName(t *testing.T) {
	tests := []struct {
		address  string
		expected string
	}{
		{"Blue Bottle Coffee, 1 Ferry Building, San Francisco, CA", "Blue Bottle Coffee"},
		{"  Whole Foods Market , 525 N Lamar Blvd, Austin", "Whole Foods Market"},
		{"123 Main St, Springfield, IL", ""},
		{"1600 Amphitheatre Pkwy", ""},
		{"Austin", ""},
		{", Austin, TX", ""},
		{"7-Eleven, 200 Congress Ave", "7-Eleven"},
	}

	for _, tt := range tests {
		t.Run(tt.address, func(t *testing.T) {
			assert.Equal(t, tt.expected, geocoding.DisplayName(tt.address))
		})
	}
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "Joe's Diner", geocoding.Sanitize("<b>Joe's Diner</b>"))
	assert.Equal(t, "alert(1)", geocoding.Sanitize("<script>alert(1)</script>"))
	assert.Equal(t, "Main St", geocoding.Sanitize("Main St<img src=x"))
	assert.Equal(t, "Smith & Sons", geocoding.Sanitize("  Smith & Sons "))
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "123 main st, austin tx", geocoding.Normalize("  123   Main St,\tAustin TX "))
	assert.Equal(t, "", geocoding.Normalize(" \n\t "))
	assert.Equal(t, "geocode_123 main st", geocoding.CacheKey("123 MAIN  st"))
}
