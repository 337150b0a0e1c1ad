package cmd

import "testing"

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"a", "", 1},
		{"", "b", 1},
		{"kitten", "sitting", 3},
		{"saturday", "sunday", 3},
		{"abc", "abc", 0},
		{"abc", "abd", 1},
	}
	for _, tt := range tests {
		got := levenshtein(tt.a, tt.b)
		if got != tt.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestSuggestCommand(t *testing.T) {
	commands := []string{"auth", "config", "products", "thumbnails", "cache", "version"}
	tests := []struct {
		input string
		want  string
	}{
		{"prodcts", "products"},
		{"PRODUCTS", "products"},
		{"thumbnals", "thumbnails"},
		{"confg", "config"},
		{"cahce", "cache"},
		{"verison", "version"},
		{"aut", "auth"},
		{"zzzzzzzzz", ""}, // too far, no suggestion
		{"", ""},
	}
	for _, tt := range tests {
		got := suggestCommand(tt.input, commands)
		if got != tt.want {
			t.Errorf("suggestCommand(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestSuggestFlag(t *testing.T) {
	flags := []string{"--page", "--per-page", "--all", "--image", "--price", "--stock", "--output"}
	tests := []struct {
		input string
		want  string
	}{
		{"--pge", "--page"},
		{"--per-pag", "--per-page"},
		{"--imgae", "--image"},
		{"--stok", "--stock"},
		{"--prise", "--price"},
		{"--outpt", "--output"},
		{"--zzzzzzz", ""}, // too far
	}
	for _, tt := range tests {
		got := suggestFlag(tt.input, flags)
		if got != tt.want {
			t.Errorf("suggestFlag(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestSuggestFlag_StripsDashes(t *testing.T) {
	flags := []string{"--stock", "-s"}
	got := suggestFlag("--stok", flags)
	if got != "--stock" {
		t.Errorf("suggestFlag(--stok) = %q, want --stock", got)
	}
}
