package ui

import (
	"sort"
	"strings"
)

const (
	maxSuggestDistance = 3
	maxSuggestions     = 3
)

// Suggest returns up to three known names within a small edit distance of
// the target, closest first. Matching is case-insensitive.
func Suggest(target string, known []string) []string {
	type scored struct {
		name string
		dist int
	}

	lower := strings.ToLower(target)
	var matches []scored
	for _, name := range known {
		d := editDistance(lower, strings.ToLower(name))
		if d <= maxSuggestDistance {
			matches = append(matches, scored{name: name, dist: d})
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].dist != matches[j].dist {
			return matches[i].dist < matches[j].dist
		}
		return matches[i].name < matches[j].name
	})

	out := make([]string, 0, maxSuggestions)
	for i := 0; i < len(matches) && i < maxSuggestions; i++ {
		out = append(out, matches[i].name)
	}
	return out
}

// editDistance is the Levenshtein distance between two strings, computed
// with a rolling single-row buffer.
func editDistance(a, b string) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		cur := i
		diag := prev[0]
		prev[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			next := diag + cost
			if v := prev[j] + 1; v < next {
				next = v
			}
			if v := cur + 1; v < next {
				next = v
			}
			diag = prev[j]
			prev[j] = next
			cur = next
		}
	}
	return prev[len(b)]
}
