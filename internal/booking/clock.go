package booking

import (
	"fmt"
	"strconv"
	"strings"
)

// MinutesFromClock parses a zero-padded 24-hour "HH:MM" string into
// minutes since midnight.
func MinutesFromClock(s string) (int, error) {
	hh, mm, ok := strings.Cut(s, ":")
	if !ok || len(hh) != 2 || len(mm) != 2 {
		return 0, fmt.Errorf("malformed clock time %q", s)
	}

	h, err := strconv.Atoi(hh)
	if err != nil {
		return 0, fmt.Errorf("malformed clock time %q", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil {
		return 0, fmt.Errorf("malformed clock time %q", s)
	}

	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("clock time %q out of range", s)
	}

	return h*60 + m, nil
}

// ClockFromMinutes renders minutes since midnight as "HH:MM", always
// zero-padded to two digits on both sides.
func ClockFromMinutes(min int) string {
	return fmt.Sprintf("%02d:%02d", min/60, min%60)
}
