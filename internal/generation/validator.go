package generation

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedResponse means a reply could not be turned into a batch.
// A single bad entry invalidates the whole reply.
var ErrMalformedResponse = errors.New("malformed response")

// Classification is the label attached to a generated search term.
type Classification string

const (
	DirectEmbeddingSearch   Classification = "Direct Embedding Search"
	KeywordExtractionNeeded Classification = "Keyword Extraction Needed"
	ForReview               Classification = "For Review"
)

// ParseClassification maps a label string to a Classification.
func ParseClassification(s string) (Classification, bool) {
	switch c := Classification(s); c {
	case DirectEmbeddingSearch, KeywordExtractionNeeded, ForReview:
		return c, true
	}
	return "", false
}

// Pair is one generated training example.
type Pair struct {
	SearchTerm     string
	Classification Classification
}

// Parse decodes a reply of the form [["term", "label"], ...].
func Parse(raw string) ([]Pair, error) {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "[") {
		return nil, fmt.Errorf("%w: top-level value is not an array", ErrMalformedResponse)
	}

	var entries []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	pairs := make([]Pair, 0, len(entries))
	for i, entry := range entries {
		var fields []any
		if err := json.Unmarshal(entry, &fields); err != nil {
			return nil, fmt.Errorf("%w: entry %d is not an array", ErrMalformedResponse, i)
		}
		if len(fields) != 2 {
			return nil, fmt.Errorf("%w: entry %d has %d elements, want 2", ErrMalformedResponse, i, len(fields))
		}
		term, ok := fields[0].(string)
		if !ok || strings.TrimSpace(term) == "" {
			return nil, fmt.Errorf("%w: entry %d has no search term", ErrMalformedResponse, i)
		}
		label, ok := fields[1].(string)
		if !ok {
			return nil, fmt.Errorf("%w: entry %d label is not a string", ErrMalformedResponse, i)
		}
		class, ok := ParseClassification(label)
		if !ok {
			return nil, fmt.Errorf("%w: entry %d has unknown classification %q", ErrMalformedResponse, i, label)
		}
		pairs = append(pairs, Pair{SearchTerm: term, Classification: class})
	}
	return pairs, nil
}
