package article

import (
	"regexp"
	"strings"
	"time"
)

// Record is one article extracted from a search result list.
type Record struct {
	Title          string    `json:"title"`
	PublishedAt    time.Time `json:"published_at"`
	DateFallback   bool      `json:"date_fallback"`
	Description    string    `json:"description"`
	ImageReference string    `json:"image_reference"`
	ImageURL       string    `json:"image_url,omitempty"`
	SearchTermHits int       `json:"search_term_hits"`
	MentionsMoney  bool      `json:"mentions_money"`
}

// moneyPattern matches "$12", "$12.50", "12 dollars" and "12 USD".
var moneyPattern = regexp.MustCompile(`\$\d+(\.\d{1,2})?|\d+ dollars|\d+ USD`)

// CountSearchTerm returns the number of case-sensitive, non-overlapping
// occurrences of term in text. An empty term never matches.
func CountSearchTerm(text, term string) int {
	if term == "" {
		return 0
	}
	return strings.Count(text, term)
}

// MentionsMoney reports whether text contains a currency amount.
func MentionsMoney(text string) bool {
	return moneyPattern.MatchString(text)
}

// Columns is the header row used when a record set is exported.
var Columns = []string{
	"title",
	"date",
	"description",
	"picture_filename",
	"count_of_search_phrases",
	"contains_money",
	"date_fallback",
}

// Row returns the record's values in Columns order.
func (r Record) Row() []any {
	return []any{
		r.Title,
		r.PublishedAt,
		r.Description,
		r.ImageReference,
		r.SearchTermHits,
		r.MentionsMoney,
		r.DateFallback,
	}
}
