package casenum

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseValid(t *testing.T) {
	tests := []struct {
		name   string
		number string
		want   Parts
	}{
		{
			name:   "canonical format",
			number: "5100342-29.2017.8.13.0024",
			want:   Parts{Sequential: "5100342", Digit: "29", Year: "2017", Court: "0024"},
		},
		{
			name:   "another court",
			number: "0001234-56.2020.8.13.0145",
			want:   Parts{Sequential: "0001234", Digit: "56", Year: "2020", Court: "0145"},
		},
		{
			name:   "surrounding whitespace stripped by normalization",
			number: "  5100342-29.2017.8.13.0024  ",
			want:   Parts{Sequential: "5100342", Digit: "29", Year: "2017", Court: "0024"},
		},
		{
			name:   "letters interleaved are dropped",
			number: "proc 5100342-29.2017.8.13.0024 (TJMG)",
			want:   Parts{Sequential: "5100342", Digit: "29", Year: "2017", Court: "0024"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.number)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseInvalid(t *testing.T) {
	tests := []struct {
		name   string
		number string
	}{
		{name: "empty", number: ""},
		{name: "no hyphen", number: "51003422920178130024"},
		{name: "words only", number: "invalid-format"},
		{name: "too few dot fields", number: "5100342-29.2017"},
		{name: "too many dot fields", number: "5100342-29.2017.8.13.0024.99"},
		{name: "dots without hyphen", number: "29.2017.8.13.0024"},
		{name: "hyphen inside court field", number: "5100342-29.2017.8.13.00-24"},
		{name: "hyphen inside sequential", number: "51-00342-29.2017.8.13.0024"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.number)
			assert.Error(t, err)
		})
	}
}
