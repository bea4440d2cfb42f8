// Package analyzer turns free text into comparable terms for the offline
// embedder.
package analyzer

import (
	"strings"
	"unicode"
)

// Tokenizer lowercases text, drops stopwords and folds simple English plurals.
type Tokenizer struct {
	stopwords map[string]struct{}
	fold      bool
}

// NewTokenizer creates a Tokenizer. With foldPlurals set, "walks" and
// "walk" produce the same term.
func NewTokenizer(foldPlurals bool) *Tokenizer {
	return &Tokenizer{
		stopwords: defaultStopwords(),
		fold:      foldPlurals,
	}
}

// Tokenize splits text into terms.
func (t *Tokenizer) Tokenize(text string) []string {
	words := splitWords(text)
	terms := make([]string, 0, len(words))

	for _, word := range words {
		word = strings.ToLower(word)
		if len([]rune(word)) < 2 {
			continue
		}
		if _, isStop := t.stopwords[word]; isStop {
			continue
		}
		if t.fold {
			word = foldPlural(word)
		}
		terms = append(terms, word)
	}

	return terms
}

func foldPlural(word string) string {
	switch {
	case len(word) > 4 && strings.HasSuffix(word, "ies"):
		return word[:len(word)-3] + "y"
	case len(word) > 3 && strings.HasSuffix(word, "s") &&
		!strings.HasSuffix(word, "ss") && !strings.HasSuffix(word, "us"):
		return word[:len(word)-1]
	}
	return word
}

func splitWords(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// defaultStopwords covers common English and Polish function words.
func defaultStopwords() map[string]struct{} {
	stops := []string{
		"a", "an", "and", "are", "as", "at", "be", "by", "for",
		"from", "has", "he", "in", "is", "it", "its", "of", "on",
		"that", "the", "to", "was", "were", "will", "with", "this",
		"have", "had", "but", "not", "you", "your", "we", "our",
		"they", "their", "she", "her", "his", "if", "or", "so",
		"no", "can", "do", "does", "did", "been", "being", "would",
		"could", "should", "may", "might", "which", "who", "what",
		"when", "where", "how", "all", "some", "such", "than",
		"too", "very", "just", "also", "my", "me", "am",
		"i", "w", "z", "na", "się", "do", "nie", "to", "jest",
		"że", "ze", "oraz", "lub", "jak", "po", "od", "mój", "moim", "mnie",
	}
	m := make(map[string]struct{}, len(stops))
	for _, s := range stops {
		m[s] = struct{}{}
	}
	return m
}
