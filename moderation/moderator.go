package moderation

import (
	"chat-relay/contract"
	"slices"
	"unicode"

	goahocorasick "github.com/anknown/ahocorasick"
)

var _ contract.Moderator = (*Moderator)(nil)

type Moderator struct {
	matcher      *goahocorasick.Machine
	censoredChar rune
	words        map[string]string
}

type TextMapping struct {
	Normalized []rune
	OrigIdx    []int
}

// NewModerator initializes the Aho-Corasick automaton with a normalized version of the provided censored words list.
// Words that normalize to nothing (pure punctuation, blanks) are ignored.
func NewModerator(censoredWords []string, censoredChar rune) (*Moderator, error) {
	var patterns [][]rune
	words := make(map[string]string)
	for _, word := range censoredWords {
		normalized := normalizeRunes([]rune(word))
		if len(normalized) == 0 {
			continue
		}
		if _, ok := words[string(normalized)]; ok {
			continue
		}
		words[string(normalized)] = word
		patterns = append(patterns, normalized)
	}

	slices.SortFunc(patterns, slices.Compare[[]rune])

	m := new(goahocorasick.Machine)
	if len(patterns) > 0 {
		if err := m.Build(patterns); err != nil {
			return nil, err
		}
	}
	return &Moderator{matcher: m, censoredChar: censoredChar, words: words}, nil
}

// Censor identifies forbidden patterns and replaces the original characters while preserving spacing.
// It returns the censored text and the dictionary words that matched, in order of appearance.
func (m *Moderator) Censor(original string) (string, []string) {
	if len(m.words) == 0 {
		return original, nil
	}
	mapping := m.normalize(original)
	if len(mapping.Normalized) == 0 {
		return original, nil
	}

	spans := m.matcher.MultiPatternSearch(mapping.Normalized, false)
	if len(spans) == 0 {
		return original, nil
	}

	origRunes := []rune(original)
	var found []string
	for _, span := range spans {
		normStart := span.Pos
		normEnd := normStart + len(span.Word)

		if normStart < 0 || normEnd > len(mapping.OrigIdx) {
			continue
		}

		origStart := mapping.OrigIdx[normStart]
		origEnd := mapping.OrigIdx[normEnd-1] + 1

		for i := origStart; i < origEnd; i++ {
			origRunes[i] = m.censoredChar
		}
		found = append(found, m.words[string(span.Word)])
	}

	return string(origRunes), found
}

// normalize transforms the input string into a searchable format and tracks original rune positions.
func (m *Moderator) normalize(input string) TextMapping {
	origRunes := []rune(input)
	norm := make([]rune, 0, len(origRunes))
	origIdx := make([]int, 0, len(origRunes))

	for i, r := range origRunes {
		clean := simplifyRune(r)
		if isNoise(clean) {
			continue
		}
		norm = append(norm, unicode.ToLower(clean))
		origIdx = append(origIdx, i)
	}
	return TextMapping{Normalized: norm, OrigIdx: origIdx}
}

// normalizeRunes applies simplification and noise removal to a slice of runes.
func normalizeRunes(input []rune) []rune {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		clean := simplifyRune(r)
		if isNoise(clean) {
			continue
		}
		out = append(out, unicode.ToLower(clean))
	}
	return out
}

// simplifyRune maps common Leet speak characters back to their standard alphabet counterparts.
func simplifyRune(r rune) rune {
	switch r {
	case '4', '@':
		return 'a'
	case '3', '€':
		return 'e'
	case '1', '!', '|':
		return 'i'
	case '0':
		return 'o'
	case '5', '$':
		return 's'
	default:
		return r
	}
}

// isNoise identifies characters that should be ignored during the pattern matching phase.
func isNoise(r rune) bool {
	return unicode.IsPunct(r) || unicode.IsSpace(r) || unicode.IsSymbol(r)
}
