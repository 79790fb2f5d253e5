package booking

// Interval is a half-open minute range [Start, End) within one day.
type Interval struct {
	Start int
	End   int
}

// Overlaps uses strict half-open semantics: two ranges overlap iff
// a.Start < b.End && a.End > b.Start. Back-to-back intervals do not
// overlap, so a service ending exactly when another starts is legal.
func (iv Interval) Overlaps(other Interval) bool {
	return iv.Start < other.End && iv.End > other.Start
}

// OccupiedIntervals collapses the day's appointments and administrative
// blocks into the set of unbookable ranges. Cancelled appointments
// never occupy. A single-slot block covers one slot interval; a
// whole-day block covers the full operating span.
func OccupiedIntervals(appointments []Appointment, blocks []BlockedPeriod, hours OperatingHours) []Interval {
	var busy []Interval

	for _, a := range appointments {
		if !a.Occupies() {
			continue
		}
		busy = append(busy, Interval{Start: a.StartMinute, End: a.StartMinute + a.DurationMin})
	}

	for _, b := range blocks {
		if b.WholeDay() {
			busy = append(busy, Interval{Start: hours.OpenMinute, End: hours.CloseMinute})
			continue
		}
		start := *b.StartMinute
		busy = append(busy, Interval{Start: start, End: start + hours.SlotInterval})
	}

	return busy
}

// ComputeSlots generates the candidate start times for a service of the
// given duration: openMinute, openMinute+interval, ... while the slot
// still fits before close. A candidate is unavailable iff its range
// overlaps any busy interval. Pure function: same inputs, same output.
func ComputeSlots(hours OperatingHours, serviceDuration int, busy []Interval) []Slot {
	if !hours.Valid() || serviceDuration <= 0 {
		return nil
	}

	var slots []Slot
	for start := hours.OpenMinute; start+serviceDuration <= hours.CloseMinute; start += hours.SlotInterval {
		candidate := Interval{Start: start, End: start + serviceDuration}

		available := true
		for _, iv := range busy {
			if candidate.Overlaps(iv) {
				available = false
				break
			}
		}

		slots = append(slots, Slot{StartMinute: start, Available: available})
	}

	return slots
}
