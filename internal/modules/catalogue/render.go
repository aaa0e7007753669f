package catalogue

import (
	"fmt"
	"html"
	"strings"

	"github.com/garyellow/unibot-go/internal/storage"
)

// styler applies a Format to text fragments. Dynamic values always pass
// through escape before they are wrapped.
type styler struct {
	format Format
}

func (s styler) escape(text string) string {
	if s.format == FormatHTML {
		return html.EscapeString(text)
	}
	return text
}

func (s styler) bold(text string) string {
	if s.format == FormatHTML {
		return "<b>" + text + "</b>"
	}
	return text
}

// link renders a clickable label. Plain text keeps the URL visible.
func (s styler) link(label, url string) string {
	if s.format == FormatHTML {
		return `<a href="` + html.EscapeString(url) + `">` + label + "</a>"
	}
	return label + ": " + url
}

// renderWelcome renders the main menu text.
func renderWelcome(format Format, specialties, universities int, localCity string) string {
	st := styler{format: format}

	var b strings.Builder
	b.WriteString(st.bold(welcomeTitle))
	b.WriteString("\n\n")
	b.WriteString(st.bold(welcomeStatsHead))
	b.WriteString("\n")
	fmt.Fprintf(&b, "• %s\n", st.bold(fmt.Sprintf("%d популярных специальностей", specialties)))
	fmt.Fprintf(&b, "• %s\n", st.bold(fmt.Sprintf("%d вузов", universities)))
	fmt.Fprintf(&b, "• %s\n\n", st.bold(st.escape(localEmphasis(localCity))))
	b.WriteString(welcomePrompt)
	return b.String()
}

// renderResults renders the results for one specialty. universities must be
// non-empty and already ordered local-city first; partitioning only decides
// which section header an entry is listed under.
func renderResults(format Format, specialty, localCity string, universities []storage.University) string {
	st := styler{format: format}
	local, other := partition(universities, localCity)

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n\n", st.bold(resultsSpecialty), st.escape(specialty))
	fmt.Fprintf(&b, "%s %d (%s: %d, другие: %d)\n\n",
		st.bold(resultsFound), len(universities), st.escape(localCity), len(local), len(other))

	if len(local) > 0 {
		b.WriteString(st.bold(st.escape(localSection(localCity))))
		b.WriteString("\n\n")
		for i, u := range local {
			writeEntry(&b, st, i+1, u, false)
		}
	}

	if len(other) > 0 {
		b.WriteString(st.bold(otherSection))
		b.WriteString("\n\n")
		for i, u := range other {
			writeEntry(&b, st, i+1, u, true)
		}
	}

	return strings.TrimRight(b.String(), "\n")
}

func writeEntry(b *strings.Builder, st styler, rank int, u storage.University, withCity bool) {
	fmt.Fprintf(b, "%d. %s", rank, st.bold(st.escape(u.Name)))
	if withCity {
		fmt.Fprintf(b, " (%s)", st.escape(u.City))
	}
	b.WriteString("\n")
	fmt.Fprintf(b, "%s%d\n", passingScoreLine, u.PassingScore)
	if link, ok := NormalizeLink(u.Link); ok {
		b.WriteString(siteLinePrefix)
		b.WriteString(st.link(siteLabel, link))
		b.WriteString("\n")
	}
	b.WriteString("\n")
}

// renderHelp renders the help text for the local city.
func renderHelp(format Format, localCity string) string {
	st := styler{format: format}

	var b strings.Builder
	b.WriteString(st.bold(helpTitle))
	for _, section := range helpSections(localCity) {
		b.WriteString("\n\n")
		b.WriteString(st.bold(section.title))
		for _, line := range section.lines {
			b.WriteString("\n")
			b.WriteString(st.escape(line))
		}
	}
	return b.String()
}

// renderNoMatch renders the empty-results message. It is always plain.
func renderNoMatch(specialty string) string {
	return fmt.Sprintf(noMatchFormat, specialty)
}

// partition splits universities into local-city and other-city groups,
// keeping the input order inside each group.
func partition(universities []storage.University, localCity string) (local, other []storage.University) {
	for _, u := range universities {
		if u.City == localCity {
			local = append(local, u)
		} else {
			other = append(other, u)
		}
	}
	return local, other
}

// NormalizeLink returns a displayable URL for a stored link value.
// Empty and "None" values are absent. Values with an http or https scheme
// (any case) are kept; anything else gets an https:// prefix.
func NormalizeLink(raw string) (string, bool) {
	link := strings.TrimSpace(raw)
	if link == "" || link == "None" {
		return "", false
	}
	lower := strings.ToLower(link)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return link, true
	}
	return "https://" + link, true
}
