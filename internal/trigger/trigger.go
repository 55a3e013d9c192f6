// Package trigger decides whether recognised text contains the trigger word.
//
// Matching is a case-insensitive literal substring test: "robot" matches
// "robotics". The trigger word is only lower-cased, never trimmed, so
// surrounding spaces are part of what must occur. An empty trigger word never
// matches.
package trigger

import "strings"

// Normalize lower-cases recognised text and trims surrounding whitespace.
func Normalize(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

// Word lower-cases a configured trigger word.
func Word(w string) string {
	return strings.ToLower(w)
}

// Matches reports whether trigger occurs in text, ignoring case.
func Matches(text, trigger string) bool {
	trigger = Word(trigger)
	if trigger == "" {
		return false
	}
	return strings.Contains(Normalize(text), trigger)
}
