package catalogue

// splitText cuts text into a head of at most limit runes and the remainder.
// The head ends at the last newline within the limit when there is one.
// head+tail always equals text. Text within the limit returns an empty tail.
// The tail is not bounded; callers that send it must cap it themselves.
func splitText(text string, limit int) (head, tail string) {
	runes := []rune(text)
	if limit <= 0 || len(runes) <= limit {
		return text, ""
	}

	cut := limit
	for i := limit - 1; i >= 0; i-- {
		if runes[i] == '\n' {
			cut = i + 1
			break
		}
	}
	return string(runes[:cut]), string(runes[cut:])
}
