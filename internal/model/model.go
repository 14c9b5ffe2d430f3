package model

import (
	"sort"
	"time"
)

// ShiftRecord represents a single confirmed work shift scraped from the
// portal. Records are immutable once created; reconciliation replaces or
// drops whole records, it never mutates them.
type ShiftRecord struct {
	// Key deduplicates the shift across scrape cycles. It is derived from
	// the shift's start time and the portal host, so a re-scraped shift
	// with changed details still maps onto the same calendar entry.
	Key string

	// Summary is the short label shown by calendar clients, built from the
	// shift type, the location code and the break annotation.
	Summary string

	// Location is the full address when the portal links one, otherwise
	// the bare location code. May be empty.
	Location string

	// Notes holds supplementary detail rows and the portal shift ID.
	// May be empty or span multiple lines.
	Notes string

	// Start / End are in the portal's local timezone, minute precision.
	// Start is always before End.
	Start time.Time
	End   time.Time
}

// IdentityKey derives the deduplication key for a shift starting at the
// given local time on the given portal host.
func IdentityKey(start time.Time, host string) string {
	return start.Format("20060102150405") + "@" + host
}

// Calendar is the persisted collection of shift records, holding at most
// one record per identity key.
type Calendar map[string]ShiftRecord

func NewCalendar() Calendar {
	return make(Calendar)
}

// Add inserts rec, replacing any existing record with the same key.
func (c Calendar) Add(rec ShiftRecord) {
	c[rec.Key] = rec
}

// Records returns the records ordered by start time.
func (c Calendar) Records() []ShiftRecord {
	out := make([]ShiftRecord, 0, len(c))
	for _, rec := range c {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Start.Before(out[j].Start)
	})
	return out
}
