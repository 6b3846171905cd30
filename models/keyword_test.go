package models

import "testing"

func TestSlugifyGroup(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"simple", "Coffee Beans", "coffee_beans"},
		{"trimmed", "  Bubble Tea  ", "bubble_tea"},
		{"punctuation", "Kids' Toys & Games", "kids__toys___games"},
		{"already slug", "durian", "durian"},
		{"mixed symbols", "A/B-Test!", "a_b_test"},
		{"digits kept", "iPhone 15", "iphone_15"},
		{"only symbols", "!!!", ""},
		{"empty", "", ""},
		{"unicode letters", "Café au Lait", "café_au_lait"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SlugifyGroup(tc.in); got != tc.want {
				t.Errorf("SlugifyGroup(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestSlugifyGroupTruncates(t *testing.T) {
	long := ""
	for i := 0; i < 10; i++ {
		long += "abcdefgh "
	}
	got := SlugifyGroup(long)
	if len([]rune(got)) > 64 {
		t.Fatalf("slug %q has %d runes, want <= 64", got, len([]rune(got)))
	}
	if got[len(got)-1] == '_' || got[0] == '_' {
		t.Fatalf("slug %q has dangling underscores", got)
	}
}

func TestRawFromSlug(t *testing.T) {
	if got := RawFromSlug("coffee_beans"); got != "coffee beans" {
		t.Errorf("RawFromSlug = %q, want %q", got, "coffee beans")
	}
	if got := RawFromSlug("durian"); got != "durian" {
		t.Errorf("RawFromSlug = %q, want %q", got, "durian")
	}
}

func TestKeywordGroupAnchor(t *testing.T) {
	g := KeywordGroup{Slug: "coffee", Terms: []string{"coffee", "kopi", "espresso"}}
	if got := g.Anchor(); got != "coffee" {
		t.Errorf("Anchor = %q, want coffee", got)
	}
	if got := (KeywordGroup{}).Anchor(); got != "" {
		t.Errorf("empty group Anchor = %q, want empty", got)
	}
}
