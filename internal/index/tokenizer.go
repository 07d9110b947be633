package index

import (
	"regexp"
	"strings"
)

// tokenRegex matches alphanumeric word sequences.
var tokenRegex = regexp.MustCompile(`[a-zA-Z0-9]+`)

// defaultStopWords is a compact English stop-word list. Queries and
// documents are filtered with the same list so scoring stays symmetric.
var defaultStopWords = []string{
	"a", "an", "and", "are", "as", "at", "be", "but", "by", "for",
	"from", "has", "have", "if", "in", "into", "is", "it", "its",
	"no", "not", "of", "on", "or", "such", "that", "the", "their",
	"then", "there", "these", "they", "this", "to", "was", "were",
	"will", "with",
}

// Tokenizer normalizes text into scoring tokens: lowercase,
// word-boundary split, stop-word removal, minimum token length.
// Documents and queries must go through the same instance.
type Tokenizer struct {
	stopWords map[string]struct{}
	minLength int
}

// NewTokenizer builds a tokenizer. A nil stopWords slice selects the
// default English list; an empty non-nil slice disables filtering.
func NewTokenizer(stopWords []string, minLength int) *Tokenizer {
	if stopWords == nil {
		stopWords = defaultStopWords
	}
	if minLength <= 0 {
		minLength = 2
	}
	return &Tokenizer{
		stopWords: BuildStopWordMap(stopWords),
		minLength: minLength,
	}
}

// Tokenize splits text into normalized tokens.
func (t *Tokenizer) Tokenize(text string) []string {
	words := tokenRegex.FindAllString(text, -1)

	tokens := make([]string, 0, len(words))
	for _, word := range words {
		lower := strings.ToLower(word)
		if len(lower) < t.minLength {
			continue
		}
		if _, isStop := t.stopWords[lower]; isStop {
			continue
		}
		tokens = append(tokens, lower)
	}
	return tokens
}

// BuildStopWordMap converts a slice of stop words to a lookup map.
func BuildStopWordMap(stopWords []string) map[string]struct{} {
	m := make(map[string]struct{}, len(stopWords))
	for _, word := range stopWords {
		m[strings.ToLower(word)] = struct{}{}
	}
	return m
}
