package analyzer

import (
	"strings"
	"unicode"
)

// Evidence lists the sentences in which one signal category fired.
type Evidence struct {
	Signal    string   `json:"signal"`
	Count     int      `json:"count"`
	Sentences []string `json:"sentences"`
}

// Evidence explains a score: for every rule with at least one match it returns
// the match count and the sentences containing the matches, in rule order.
// Sentences are split naively on '.', '!' and '?'.
func (s *Scorer) Evidence(text string) []Evidence {
	if len(text) == 0 {
		return nil
	}

	spans := splitSentences(text)
	results := make([]Evidence, 0, len(s.rules))

	for _, r := range s.rules {
		locs := r.Pattern.FindAllStringIndex(text, -1)
		if len(locs) == 0 {
			continue
		}

		var matched []string
		last := -1
		for _, loc := range locs {
			i := spanIndex(spans, loc[0])
			if i < 0 || i == last {
				continue
			}
			matched = append(matched, spans[i].text)
			last = i
		}

		results = append(results, Evidence{
			Signal:    r.Name,
			Count:     len(locs),
			Sentences: matched,
		})
	}
	return results
}

// sentence is a trimmed sentence plus the byte range it covers in the source.
type sentence struct {
	text       string
	start, end int
}

func splitSentences(text string) []sentence {
	// roughly 1 sentence per 50 chars
	estimated := len(text) / 50
	if estimated < 1 {
		estimated = 1
	}

	out := make([]sentence, 0, estimated)
	start := 0

	for i, r := range text {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		end := i + 1
		for end < len(text) && unicode.IsSpace(rune(text[end])) {
			end++
		}
		if t := strings.TrimSpace(text[start:end]); t != "" {
			out = append(out, sentence{text: t, start: start, end: end})
		}
		start = end
	}

	if start < len(text) {
		if t := strings.TrimSpace(text[start:]); t != "" {
			out = append(out, sentence{text: t, start: start, end: len(text)})
		}
	}
	return out
}

// spanIndex returns the index of the sentence covering byte offset off, or -1.
func spanIndex(spans []sentence, off int) int {
	for i, sp := range spans {
		if off >= sp.start && off < sp.end {
			return i
		}
	}
	return -1
}
