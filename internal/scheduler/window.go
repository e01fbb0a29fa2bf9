package scheduler

import "time"

// Window is the daily service window. Holds created outside it get their
// clock started at the next opening so nobody loses a reservation overnight.
type Window struct {
	Open     time.Duration // offset from local midnight
	Close    time.Duration
	Location *time.Location
	Hold     time.Duration
}

// Deadline returns when a hold created at now expires.
func (w Window) Deadline(now time.Time) time.Time {
	if w.Open == w.Close {
		return now.Add(w.Hold)
	}
	loc := w.Location
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	offset := time.Duration(local.Hour())*time.Hour +
		time.Duration(local.Minute())*time.Minute +
		time.Duration(local.Second())*time.Second

	if w.inside(offset) {
		return now.Add(w.Hold)
	}

	next := addOffset(midnight, w.Open)
	if offset >= w.Open {
		next = addOffset(midnight.AddDate(0, 0, 1), w.Open)
	}
	return next.Add(w.Hold).In(now.Location())
}

func (w Window) inside(offset time.Duration) bool {
	if w.Open < w.Close {
		return offset >= w.Open && offset < w.Close
	}
	// crosses midnight
	return offset >= w.Open || offset < w.Close
}

// addOffset works in wall-clock time so DST days keep the configured opening hour.
func addOffset(midnight time.Time, offset time.Duration) time.Time {
	h := int(offset / time.Hour)
	m := int((offset % time.Hour) / time.Minute)
	s := int((offset % time.Minute) / time.Second)
	return time.Date(midnight.Year(), midnight.Month(), midnight.Day(), h, m, s, 0, midnight.Location())
}
