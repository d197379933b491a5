package product

import "sort"

// MergeLines sums quantities of repeated products and orders the result by id,
// which keeps row-lock acquisition order stable across concurrent reservations.
func MergeLines(lines []Line) []Line {
	totals := make(map[int64]int, len(lines))
	for _, l := range lines {
		totals[l.ProductID] += l.Quantity
	}
	out := make([]Line, 0, len(totals))
	for id, qty := range totals {
		out = append(out, Line{ProductID: id, Quantity: qty})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}

// IDs returns the distinct product ids in lines.
func IDs(lines []Line) []int64 {
	merged := MergeLines(lines)
	ids := make([]int64, len(merged))
	for i, l := range merged {
		ids[i] = l.ProductID
	}
	return ids
}
