package catalogue

import (
	"github.com/garyellow/unibot-go/internal/stringutil"
)

// glyphFor returns the glyph for the specialty at zero-based position i.
// Positions past the table use the table's final glyph.
func glyphFor(glyphs []string, i int) string {
	if len(glyphs) == 0 {
		return ""
	}
	if i < len(glyphs)-1 {
		return glyphs[i]
	}
	return glyphs[len(glyphs)-1]
}

// menuLabel builds a specialty button label from its glyph and name.
func menuLabel(glyph, name string) string {
	name = stringutil.Truncate(name, MaxLabelRunes)
	if glyph == "" {
		return name
	}
	return glyph + " " + name
}

// menuKeyboard lays out one button per specialty, two per row, followed by
// a help row.
func menuKeyboard(specialties []string, glyphs []string) [][]Button {
	rows := make([][]Button, 0, (len(specialties)+1)/2+1)
	var row []Button
	for i, name := range specialties {
		row = append(row, Button{
			Label: menuLabel(glyphFor(glyphs, i), name),
			Data:  SpecialtyToken(name),
		})
		if len(row) == 2 || i == len(specialties)-1 {
			rows = append(rows, row)
			row = nil
		}
	}
	return append(rows, []Button{{Label: labelHelp, Data: TokenHelp}})
}

func resultsKeyboard() [][]Button {
	return [][]Button{
		{{Label: labelOtherSpecialty, Data: TokenBackToStart}},
		{{Label: labelMainMenu, Data: TokenStart}},
	}
}

func noMatchKeyboard() [][]Button {
	return [][]Button{
		{{Label: labelBackToChoice, Data: TokenBackToStart}},
	}
}

func helpKeyboard() [][]Button {
	return [][]Button{
		{{Label: labelMainMenu, Data: TokenStart}},
		{{Label: labelSpecialtyList, Data: TokenBackToStart}},
	}
}
