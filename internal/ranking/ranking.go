// Package ranking aggregates condition scores into a regional risk ranking.
package ranking

import (
	"sort"

	"github.com/cityinfra/heron/internal/domain"
)

// Rank groups scores by region and produces a descending ranking by mean
// score. Ties break on higher max individual score, then more contributing
// assets, then lexicographic region name, so the result is a strict total
// order. Scores without a region must be filtered out by the caller. The
// top K entries are marked critical.
func Rank(scores []domain.ConditionScore, topK int) []domain.RiskRankingEntry {
	type bucket struct {
		sum   float64
		max   float64
		count int
	}
	buckets := make(map[string]*bucket)
	for _, s := range scores {
		if s.Region == "" {
			continue
		}
		b, ok := buckets[s.Region]
		if !ok {
			b = &bucket{}
			buckets[s.Region] = b
		}
		b.sum += s.Score
		b.count++
		if s.Score > b.max {
			b.max = s.Score
		}
	}

	entries := make([]domain.RiskRankingEntry, 0, len(buckets))
	for region, b := range buckets {
		entries = append(entries, domain.RiskRankingEntry{
			Region:     region,
			MeanScore:  b.sum / float64(b.count),
			MaxScore:   b.max,
			AssetCount: b.count,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.MeanScore != b.MeanScore {
			return a.MeanScore > b.MeanScore
		}
		if a.MaxScore != b.MaxScore {
			return a.MaxScore > b.MaxScore
		}
		if a.AssetCount != b.AssetCount {
			return a.AssetCount > b.AssetCount
		}
		return a.Region < b.Region
	})

	for i := range entries {
		entries[i].Rank = i + 1
		entries[i].Critical = i < topK
	}
	return entries
}
