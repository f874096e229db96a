package search

import (
	"fmt"
	"strings"
)

// searchableFields are the context fields matched against queries.
var searchableFields = []string{"title", "description", "details", "name", "git_branch_name", "branch_name"}

var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "this": true, "that": true,
	"from": true, "into": true, "are": true, "was": true, "will": true, "should": true,
	"can": true, "has": true, "have": true, "not": true, "but": true, "all": true,
	"any": true, "our": true, "you": true, "your": true, "its": true, "then": true,
}

// SearchableText concatenates the text fields of a context payload.
func SearchableText(data map[string]any) string {
	parts := make([]string, 0, len(searchableFields))
	for _, field := range searchableFields {
		switch v := data[field].(type) {
		case nil:
		case string:
			if v != "" {
				parts = append(parts, v)
			}
		default:
			parts = append(parts, fmt.Sprint(v))
		}
	}
	return strings.Join(parts, " ")
}

// Words returns the lower-cased words of text with surrounding punctuation removed.
func Words(text string) map[string]bool {
	words := make(map[string]bool)
	for _, field := range strings.Fields(strings.ToLower(text)) {
		cleaned := strings.Trim(field, ".,!?;:()[]{}\"'`")
		if cleaned != "" {
			words[cleaned] = true
		}
	}
	return words
}

// terms is Words with counts, dropping short words and stop words.
func terms(text string) map[string]int {
	counts := make(map[string]int)
	for _, field := range strings.Fields(strings.ToLower(text)) {
		cleaned := strings.Trim(field, ".,!?;:()[]{}\"'`")
		if len(cleaned) <= 2 || stopWords[cleaned] {
			continue
		}
		counts[cleaned]++
	}
	return counts
}

// WordOverlap is the fraction of query words that also occur in text.
func WordOverlap(query, text string) float64 {
	queryWords := Words(query)
	if len(queryWords) == 0 {
		return 0
	}
	textWords := Words(text)
	common := 0
	for w := range queryWords {
		if textWords[w] {
			common++
		}
	}
	return float64(common) / float64(len(queryWords))
}
