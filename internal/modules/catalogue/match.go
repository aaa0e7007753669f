package catalogue

import (
	"slices"
	"strings"

	"github.com/garyellow/unibot-go/internal/stringutil"
)

var (
	startKeywords = []string{"/start", "start", "меню"}
	helpKeywords  = []string{"/help", "help", "помощь"}
)

// minFuzzyRunes is the shortest query that may match by scattered runes.
const minFuzzyRunes = 3

// keywordRoute reports whether text is a start or help keyword.
func keywordRoute(text string) (Route, bool) {
	folded := stringutil.Fold(text)
	switch {
	case slices.Contains(startKeywords, folded):
		return Route{State: StateMainMenu}, true
	case slices.Contains(helpKeywords, folded):
		return Route{State: StateHelp}, true
	}
	return Route{}, false
}

// matchSpecialty finds the one specialty a free-text query refers to.
// An exact (case-folded) name wins outright; otherwise the query must pick
// out a single specialty by substring in either direction or, for queries
// of minFuzzyRunes or more, by containing all of its runes.
func matchSpecialty(specialties []string, text string) (string, bool) {
	query := stringutil.Fold(text)
	if query == "" {
		return "", false
	}

	var candidates []string
	for _, name := range specialties {
		folded := stringutil.Fold(name)
		if folded == query {
			return name, true
		}
		if strings.Contains(folded, query) || strings.Contains(query, folded) {
			candidates = append(candidates, name)
			continue
		}
		if stringutil.RuneLen(query) >= minFuzzyRunes && stringutil.ContainsAllRunes(name, query) {
			candidates = append(candidates, name)
		}
	}

	if len(candidates) == 1 {
		return candidates[0], true
	}
	return "", false
}
