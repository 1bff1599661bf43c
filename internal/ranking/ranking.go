// Package ranking orders short links by popularity.
package ranking

import (
	"container/heap"
	"sort"

	"github.com/MikhailRaia/shortlinks/internal/model"
)

// ranksAbove reports whether a belongs above b on the leaderboard:
// more clicks first, then the older link, then the smaller id.
func ranksAbove(a, b model.URLMapping) bool {
	if a.ClickCount != b.ClickCount {
		return a.ClickCount > b.ClickCount
	}
	if !a.CreatedDate.Equal(b.CreatedDate) {
		return a.CreatedDate.Before(b.CreatedDate)
	}
	return a.ID < b.ID
}

// minHeap keeps the lowest ranked mapping at the root.
type minHeap []model.URLMapping

func (h minHeap) Len() int           { return len(h) }
func (h minHeap) Less(i, j int) bool { return ranksAbove(h[j], h[i]) }
func (h minHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *minHeap) Push(x any) {
	*h = append(*h, x.(model.URLMapping))
}

func (h *minHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// TopByClicks returns the k highest ranked mappings, best first.
// It keeps a heap of at most k entries, so it runs in O(n log k).
func TopByClicks(items []model.URLMapping, k int) []model.URLMapping {
	if k <= 0 || len(items) == 0 {
		return []model.URLMapping{}
	}

	h := make(minHeap, 0, min(k, len(items)))
	for _, item := range items {
		if h.Len() < k {
			heap.Push(&h, item)
			continue
		}
		if ranksAbove(item, h[0]) {
			h[0] = item
			heap.Fix(&h, 0)
		}
	}

	result := make([]model.URLMapping, h.Len())
	for i := len(result) - 1; i >= 0; i-- {
		result[i] = heap.Pop(&h).(model.URLMapping)
	}
	return result
}

// TopBySort returns the same leaderboard as TopByClicks by sorting a copy of every item.
func TopBySort(items []model.URLMapping, k int) []model.URLMapping {
	if k <= 0 || len(items) == 0 {
		return []model.URLMapping{}
	}

	sorted := make([]model.URLMapping, len(items))
	copy(sorted, items)
	sort.Slice(sorted, func(i, j int) bool {
		return ranksAbove(sorted[i], sorted[j])
	})

	if k > len(sorted) {
		k = len(sorted)
	}
	return sorted[:k]
}

// Stats aggregates click counts across items.
func Stats(items []model.URLMapping) model.RankingStats {
	stats := model.RankingStats{TotalURLs: len(items)}
	if len(items) == 0 {
		return stats
	}

	for _, item := range items {
		stats.TotalClicks += item.ClickCount
		if item.ClickCount > stats.MaxClicks {
			stats.MaxClicks = item.ClickCount
		}
	}
	stats.AverageClicks = float64(stats.TotalClicks) / float64(len(items))
	return stats
}
