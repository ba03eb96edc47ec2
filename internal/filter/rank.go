package filter

import (
	"sort"

	"sniper_bot/internal/model"
)

// Scored pairs a listing with its evaluation.
type Scored struct {
	Listing model.Listing
	Result  model.FilterResult
}

// RankScored keeps passing listings and orders them by descending score.
// Ties keep their input order. Pairs beyond the shorter slice are ignored.
func RankScored(listings []model.Listing, results []model.FilterResult) []Scored {
	n := min(len(listings), len(results))
	out := make([]Scored, 0, n)
	for i := 0; i < n; i++ {
		if results[i].Passed {
			out = append(out, Scored{Listing: listings[i], Result: results[i]})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Result.Score > out[j].Result.Score
	})
	return out
}

// Rank is RankScored without the evaluation results.
func Rank(listings []model.Listing, results []model.FilterResult) []model.Listing {
	scored := RankScored(listings, results)
	out := make([]model.Listing, len(scored))
	for i, s := range scored {
		out[i] = s.Listing
	}
	return out
}
