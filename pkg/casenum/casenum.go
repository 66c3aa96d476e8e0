// Package casenum parses CNJ-formatted judicial process numbers into the
// structural parts the PJe consultation form expects.
//
// The canonical shape is NNNNNNN-DD.YYYY.J.TR.OOOO: a sequential number,
// a check digit, the filing year, the justice segment, the tribunal and
// the originating court code.
package casenum

import (
	"fmt"
	"strings"
)

// Parts holds the components of a process number that the consultation
// form takes as separate fields. The justice segment and tribunal are
// derived by the portal and never entered manually.
type Parts struct {
	Sequential string
	Digit      string
	Year       string
	Court      string
}

// Parse validates and decomposes a process number.
//
// The input is first normalized by dropping every rune that is not a
// digit, a hyphen or a period. The normalized form must contain exactly
// one hyphen, and the part after it must contain exactly five
// period-separated fields. Anything else is a format error; no partial
// result is returned.
func Parse(number string) (Parts, error) {
	clean := normalize(number)

	segments := strings.Split(clean, "-")
	if len(segments) != 2 {
		return Parts{}, fmt.Errorf("invalid process number format: %s", number)
	}

	sequential := segments[0]

	fields := strings.Split(segments[1], ".")
	if len(fields) != 5 {
		return Parts{}, fmt.Errorf("invalid process number format: %s", number)
	}

	return Parts{
		Sequential: sequential,
		Digit:      fields[0],
		Year:       fields[1],
		Court:      fields[4],
	}, nil
}

// normalize strips every rune that is not a digit, '-' or '.'.
func normalize(number string) string {
	var b strings.Builder
	b.Grow(len(number))
	for _, r := range number {
		if (r >= '0' && r <= '9') || r == '-' || r == '.' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
