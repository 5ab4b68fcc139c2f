package article

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestMentionsMoney verifies currency detection precision
func TestMentionsMoney(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"Price is $12.50", true},
		{"costs 5 dollars", true},
		{"raised 300 USD", true},
		{"a $5 fee", true},
		{"report on USD reserves", false},
		{"no money here", false},
		{"dollars and sense", false},
		{"$ alone", false},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, MentionsMoney(tt.text))
		})
	}
}

// TestCountSearchTerm verifies literal case-sensitive substring counting
func TestCountSearchTerm(t *testing.T) {
	assert.Equal(t, 2, CountSearchTerm("GPT and GPT-4", "GPT"))
	assert.Equal(t, 0, CountSearchTerm("gpt and gpt-4", "GPT"), "should be case-sensitive")
	assert.Equal(t, 1, CountSearchTerm("ChatGPT launched", "GPT"), "should match inside words")
	assert.Equal(t, 0, CountSearchTerm("anything", ""), "empty term should not match")
	assert.Equal(t, 1, CountSearchTerm("aaaa", "aaa"), "occurrences should not overlap")
}

// TestRecordRow verifies the row lines up with the header
func TestRecordRow(t *testing.T) {
	published := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	r := Record{
		Title:          "Title",
		PublishedAt:    published,
		Description:    "Desc",
		ImageReference: "image.jpg",
		SearchTermHits: 3,
		MentionsMoney:  true,
	}

	row := r.Row()
	assert.Len(t, row, len(Columns))
	assert.Equal(t, "Title", row[0])
	assert.Equal(t, published, row[1])
	assert.Equal(t, "image.jpg", row[3])
	assert.Equal(t, 3, row[4])
	assert.Equal(t, true, row[5])
	assert.Equal(t, false, row[6])
}
