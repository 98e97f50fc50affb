// Package sequence derives the next fiscal document number.
package sequence

// Next proposes the fiscal number that follows current.
//
// When current is nil or not positive, the configured seed is used instead.
// Next only proposes a value: two callers that observe the same current
// maximum receive the same proposal, and reserving the number is left to
// whatever persists the document.
func Next(current *int64, seed int64) int64 {
	if current != nil && *current > 0 {
		return *current + 1
	}
	return seed + 1
}
