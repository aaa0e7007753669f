package stringutil

import "testing"

func TestFold(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"Cyrillic upper", "МЕДИЦИНА", "медицина"},
		{"Mixed case Latin", "IT Security", "it security"},
		{"Surrounding space", "  Право ", "право"},
		{"Decomposed short i", "\u0418\u0306", "\u0439"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Fold(tt.input); got != tt.want {
				t.Errorf("Fold(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestContainsAllRunes(t *testing.T) {
	tests := []struct {
		name  string
		s     string
		chars string
		want  bool
	}{
		{"All present", "Информатика", "инф", true},
		{"Non-contiguous", "Медицина", "мдц", true},
		{"Missing char", "Медицина", "право", false},
		{"Repeated char needs count", "Право", "оо", false},
		{"Empty required", "test", "", true},
		{"Empty string", "", "test", false},
		{"Case-insensitive", "Экономика", "ЭКО", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ContainsAllRunes(tt.s, tt.chars)
			if got != tt.want {
				t.Errorf("ContainsAllRunes(%q, %q) = %v, want %v", tt.s, tt.chars, got, tt.want)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name  string
		input string
		n     int
		want  string
	}{
		{"Shorter than limit", "Право", 20, "Право"},
		{"Exactly limit", "Право", 5, "Право"},
		{"Cyrillic cut by runes", "Информационная безопасность", 20, "Информационная безоп"},
		{"Zero limit", "Право", 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Truncate(tt.input, tt.n)
			if got != tt.want {
				t.Errorf("Truncate(%q, %d) = %q, want %q", tt.input, tt.n, got, tt.want)
			}
			if RuneLen(got) > max(tt.n, 0) {
				t.Errorf("Truncate(%q, %d) has %d runes", tt.input, tt.n, RuneLen(got))
			}
		})
	}
}
