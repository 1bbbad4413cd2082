// Package knowledge loads the curated helpdesk corpus and ranks it against a
// question to build grounding context for the language model.
package knowledge

import (
	"context"
	"strings"
)

type Kind string

const (
	KindQA  Kind = "QA"
	KindDoc Kind = "DOC"
)

// Item is one row of curated knowledge.
type Item struct {
	Kind     Kind   `json:"kind" yaml:"kind"`
	Category string `json:"category" yaml:"category"`
	Question string `json:"question" yaml:"question"`
	Point    string `json:"point,omitempty" yaml:"point,omitempty"`
	Action   string `json:"action,omitempty" yaml:"action,omitempty"`
	Note     string `json:"note,omitempty" yaml:"note,omitempty"`
	URL      string `json:"url,omitempty" yaml:"url,omitempty"`
	Tags     string `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// Source returns the whole corpus. Missing tables mean fewer items, not an
// error.
type Source interface {
	FetchAll(ctx context.Context) ([]Item, error)
}

// QAItem builds an Item from a Q&A row. Rows without a question are skipped
// by returning ok=false.
func QAItem(category, question, point, note, url string) (Item, bool) {
	if strings.TrimSpace(question) == "" {
		return Item{}, false
	}
	return Item{
		Kind:     KindQA,
		Category: category,
		Question: question,
		Point:    point,
		Note:     note,
		URL:      url,
		Tags:     category,
	}, true
}

// DocItem builds an Item from a document row; the category reads
// "major > minor".
func DocItem(major, minor, title, point, url string) (Item, bool) {
	if strings.TrimSpace(title) == "" {
		return Item{}, false
	}
	return Item{
		Kind:     KindDoc,
		Category: major + " > " + minor,
		Question: title,
		Point:    point,
		URL:      url,
		Tags:     major,
	}, true
}
