// Package stringutil provides common string manipulation utilities.
package stringutil

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Fold returns s in NFC form with Unicode case folding applied, suitable for
// case-insensitive comparison of Cyrillic and Latin text.
func Fold(s string) string {
	return cases.Fold().String(norm.NFC.String(strings.TrimSpace(s)))
}

// ContainsAllRunes checks if s contains all runes from chars (case-insensitive).
// Counts character occurrences: "аа" requires at least 2 'а's in s.
// Supports non-contiguous character matching: "инф" matches "Информатика".
//
// Example:
//
//	ContainsAllRunes("Информатика", "инфа") returns true
//	ContainsAllRunes("Медицина", "мед") returns true
//	ContainsAllRunes("Медицина", "право") returns false
func ContainsAllRunes(s, chars string) bool {
	if chars == "" {
		return true
	}
	if s == "" {
		return false
	}

	runeCount := make(map[rune]int)
	for _, r := range Fold(s) {
		runeCount[r]++
	}

	requiredCount := make(map[rune]int)
	for _, r := range Fold(chars) {
		requiredCount[r]++
	}

	for r, required := range requiredCount {
		if runeCount[r] < required {
			return false
		}
	}
	return true
}

// Truncate returns at most n runes of s. A non-positive n yields "".
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}

// RuneLen returns the number of runes in s.
func RuneLen(s string) int {
	return utf8.RuneCountInString(s)
}
