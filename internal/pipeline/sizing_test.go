package pipeline

import "testing"

func TestParseHeightWeight(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		height int
		weight int
	}{
		{"plain pair", "boyum 178 kilom 82", 178, 82},
		{"reversed order", "82 kilo 178 boy", 178, 82},
		{"only height", "178 cm", 178, 0},
		{"only weight", "75 kg civari", 0, 75},
		{"adjacent fallback", "178 130", 178, 130},
		{"nothing", "merhaba fiyat nedir", 0, 0},
		{"out of range ignored", "sipariş no 35712", 0, 0},
		{"height then near-range weight", "185 45", 185, 45},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, w := ParseHeightWeight(tt.text)
			if h != tt.height || w != tt.weight {
				t.Errorf("ParseHeightWeight(%q) = %d,%d want %d,%d", tt.text, h, w, tt.height, tt.weight)
			}
		})
	}
}

func TestSuggestSize(t *testing.T) {
	letters := []string{"S", "M", "L", "XL"}

	tests := []struct {
		name      string
		height    int
		weight    int
		available []string
		want      string
	}{
		{"slim build", 180, 60, letters, "S"},
		{"average build", 175, 70, letters, "M"},
		{"larger build", 170, 85, letters, "XL"},
		{"clamped to stock", 160, 95, []string{"S", "M"}, "M"},
		{"numeric sizes", 175, 75, []string{"48", "50", "52"}, "50"},
		{"no sizes", 175, 75, nil, ""},
		{"missing inputs", 0, 75, letters, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SuggestSize(tt.height, tt.weight, tt.available)
			if got != tt.want {
				t.Errorf("SuggestSize(%d,%d,%v) = %q, want %q", tt.height, tt.weight, tt.available, got, tt.want)
			}
		})
	}
}
