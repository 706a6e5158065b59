package ui

import (
	"strings"
	"unicode/utf16"
)

var anonymousNames = []string{
	"Alex", "Jordan", "Taylor", "Casey", "Morgan", "Riley",
	"Avery", "Quinn", "Sage", "River", "Skyler", "Rowan",
	"Charlie", "Dakota", "Eden", "Finley", "Harper", "Hayden",
	"Kai", "Logan", "Marley", "Parker", "Reese", "Sam",
	"Sawyer", "Spencer", "Phoenix", "Elliot", "Emerson", "Jules",
	"Cameron", "Blake", "Peyton", "Drew", "Ashton", "Kendall",
	"Rory", "Bailey", "Ellis", "Frankie", "Jamie", "Jesse",
	"Jules", "Kerry", "Lee", "Max", "Nico", "Pat",
	"Robin", "Sky", "Stevie", "Terry", "Val", "Winter",
}

// AnonymousName maps a handle to a stable pseudonym. With withHandle the
// result is shaped like a handle, e.g. "@kerry.bsky.social".
func AnonymousName(handle string, withHandle bool) string {
	if handle == "" {
		if withHandle {
			return "@anonymous.bsky.social"
		}
		return "Anonymous"
	}

	name := anonymousNames[handleHash(handle)%int64(len(anonymousNames))]
	if withHandle {
		return "@" + strings.ToLower(name) + ".bsky.social"
	}
	return name
}

// handleHash is the 31-multiplier string hash over UTF-16 code units, with
// 32-bit wraparound, returned as an absolute value.
func handleHash(s string) int64 {
	var h int32
	for _, c := range utf16.Encode([]rune(s)) {
		h = (h << 5) - h + int32(c)
	}
	v := int64(h)
	if v < 0 {
		v = -v
	}
	return v
}
