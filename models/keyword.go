package models

import (
	"strings"
	"time"
	"unicode"
)

// TrendKeyword is one row of the keyword registry. The registry is owned by
// an external writer; this service only reads active rows and never
// creates, updates, or deletes them.
type TrendKeyword struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Keyword   string    `gorm:"size:128;not null;index:idx_keyword_geo,unique" json:"keyword"`
	GroupName string    `gorm:"size:128;not null" json:"group_name"`
	Geo       string    `gorm:"size:8;not null;index:idx_keyword_geo,unique" json:"geo"`
	Category  int       `json:"category"`
	IsActive  bool      `gorm:"index" json:"is_active"`
	IsAnchor  bool      `json:"is_anchor"` // first term of a group, used for cross-window scaling
	CreatedAt time.Time `json:"created_at"`
}

// KeywordGroup is the in-memory grouping of synonym terms under one slug.
// Terms are ordered anchor-first.
type KeywordGroup struct {
	Slug     string
	Geo      string
	Category int
	Terms    []string
}

// Anchor returns the group's anchor term (the first term).
func (g KeywordGroup) Anchor() string {
	if len(g.Terms) == 0 {
		return ""
	}
	return g.Terms[0]
}

// SlugifyGroup derives the storage slug from a human-readable group name:
// lowercase, trimmed, every non-alphanumeric rune replaced by an
// underscore, truncated to 64 runes, leading/trailing underscores stripped.
func SlugifyGroup(name string) string {
	runes := []rune(strings.TrimSpace(name))
	out := make([]rune, 0, len(runes))
	for _, r := range runes {
		r = unicode.ToLower(r)
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			out = append(out, r)
		} else {
			out = append(out, '_')
		}
	}
	if len(out) > 64 {
		out = out[:64]
	}
	start, end := 0, len(out)
	for start < end && out[start] == '_' {
		start++
	}
	for end > start && out[end-1] == '_' {
		end--
	}
	return string(out[start:end])
}

// RawFromSlug reverses the slug into the display form stored alongside
// interest rows (underscores back to spaces).
func RawFromSlug(slug string) string {
	runes := []rune(slug)
	for i, r := range runes {
		if r == '_' {
			runes[i] = ' '
		}
	}
	return string(runes)
}
