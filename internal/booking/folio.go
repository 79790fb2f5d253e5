package booking

import (
	"fmt"
	"regexp"
)

// Folios look like TM-2026-0042: the TM prefix, the booking year, and a
// zero-padded per-year sequence. The sequence comes from a monotonic
// counter in the store, so folios are unique across concurrent bookings.
const folioPrefix = "TM"

var folioPattern = regexp.MustCompile(`^TM-\d{4}-\d{4,}$`)

// FormatFolio renders a folio from a year and a per-year sequence
// number. Sequences up to 9999 keep the classic 4-digit shape; larger
// ones widen rather than wrap.
func FormatFolio(year, seq int) string {
	return fmt.Sprintf("%s-%d-%04d", folioPrefix, year, seq)
}

// ValidFolio reports whether s has the folio shape. Handlers use it to
// reject garbage before hitting the store.
func ValidFolio(s string) bool {
	return folioPattern.MatchString(s)
}
