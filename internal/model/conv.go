package model

import "strconv"

// FormatFloat renders f with the fewest digits that round-trip, so rounded
// quantities and price levels print exactly as they were computed.
func FormatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
