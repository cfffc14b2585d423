package errors

import (
	"sort"

	"github.com/sahilm/fuzzy"
)

// maxSuggestions bounds the "did you mean" candidates attached to a
// diagnostic.
const maxSuggestions = 3

// Suggest returns up to three candidates closest to name, best match
// first.
func Suggest(name string, candidates []string) []string {
	if name == "" || len(candidates) == 0 {
		return nil
	}

	matches := fuzzy.Find(name, candidates)
	if len(matches) == 0 {
		// fuzzy only matches subsequences; fall back to edit distance so
		// transpositions like "Crad" still find "Card".
		for i, c := range candidates {
			if d := levenshtein(name, c); d <= 2 {
				matches = append(matches, fuzzy.Match{Str: c, Index: i, Score: -d})
			}
		}
		sort.SliceStable(matches, func(i, j int) bool {
			if matches[i].Score != matches[j].Score {
				return matches[i].Score > matches[j].Score
			}
			return matches[i].Str < matches[j].Str
		})
	}

	out := make([]string, 0, maxSuggestions)
	for _, m := range matches {
		if m.Str == name {
			continue
		}
		out = append(out, m.Str)
		if len(out) == maxSuggestions {
			break
		}
	}
	return out
}

// WithSuggestions attaches suggestions for name to ce and returns it.
func (ce *CompilerError) WithSuggestions(name string, candidates []string) *CompilerError {
	ce.Suggestions = Suggest(name, candidates)
	return ce
}

func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)]
}
