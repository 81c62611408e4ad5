package pipeline

import (
	"strings"
	"unicode/utf8"

	"newsradar/internal/domain"
)

const minTextRunes = 8

type FilterRules struct {
	NoiseKeywords []string
	MinRunes      int
}

type FilterResult struct {
	Kept       []domain.NewsItem
	Duplicates int
	Noisy      int
	TooShort   int
}

// Filter drops items already seen (or repeated earlier in the same batch),
// items containing a noise keyword and items shorter than the minimum
// length. Order is preserved and nothing is marked seen here.
func Filter(candidates []domain.NewsItem, seen *SeenSet, rules FilterRules) FilterResult {
	minRunes := rules.MinRunes
	if minRunes <= 0 {
		minRunes = minTextRunes
	}
	var res FilterResult
	batch := make(map[string]bool, len(candidates))
	for _, item := range candidates {
		key := item.DedupKey()
		switch {
		case seen != nil && seen.Contains(key), batch[key]:
			res.Duplicates++
		case containsAny(item.Text, rules.NoiseKeywords):
			res.Noisy++
		case utf8.RuneCountInString(item.Text) < minRunes:
			res.TooShort++
		default:
			batch[key] = true
			res.Kept = append(res.Kept, item)
		}
	}
	return res
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if kw != "" && strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
