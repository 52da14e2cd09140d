// Package merger combines per-shard scan results into a single global
// top-K list. Shards score independently, so ordering across shards is
// decided here and nowhere else.
package merger

import "container/heap"

// PatternMatch is one pattern occurrence inside the scanned text.
// Position is the index of the token on which the occurrence ends.
type PatternMatch struct {
	PatternID   string  `json:"pattern_id"`
	PatternName string  `json:"pattern_name"`
	Position    int     `json:"position"`
	Score       float64 `json:"score"`
}

// Merge returns the strongest limit matches across all shards, ordered
// by score descending. Ties order by position ascending, then pattern
// ID, so merged output is stable across runs and shard layouts.
func Merge(shardResults [][]PatternMatch, limit int) []PatternMatch {
	if limit <= 0 {
		limit = 10
	}
	h := &matchHeap{}
	heap.Init(h)
	for _, results := range shardResults {
		for _, m := range results {
			heap.Push(h, m)
			if h.Len() > limit {
				heap.Pop(h)
			}
		}
	}
	result := make([]PatternMatch, h.Len())
	for i := len(result) - 1; i >= 0; i-- {
		result[i] = heap.Pop(h).(PatternMatch)
	}
	return result
}

// matchHeap is a min-heap: the weakest retained match sits at the root
// so it can be evicted as stronger ones arrive.
type matchHeap []PatternMatch

func (h matchHeap) Len() int { return len(h) }

func (h matchHeap) Less(i, j int) bool {
	if h[i].Score != h[j].Score {
		return h[i].Score < h[j].Score
	}
	if h[i].Position != h[j].Position {
		return h[i].Position > h[j].Position
	}
	return h[i].PatternID > h[j].PatternID
}

func (h matchHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *matchHeap) Push(x interface{}) {
	*h = append(*h, x.(PatternMatch))
}

func (h *matchHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
