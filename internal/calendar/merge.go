package calendar

import (
	"time"

	appLog "shiftcal/internal/log"
	"shiftcal/internal/model"
)

// Merge reconciles freshly scraped records with the previously persisted
// calendar.
//
// Fresh records win for every key they define: the scrape is the source
// of truth for the window it covers. Records only present in previous
// survive while their start lies inside the retention window, measured
// against now with an inclusive boundary at exactly now - retention.
// A record starting exactly on the boundary is kept; the comparison uses
// the full timestamp precision, no truncation to day.
func Merge(fresh []model.ShiftRecord, previous model.Calendar, now time.Time, retention time.Duration) model.Calendar {
	merged := model.NewCalendar()
	for _, rec := range fresh {
		merged.Add(rec)
	}

	cutoff := now.Add(-retention)
	kept := 0
	for key, rec := range previous {
		if _, ok := merged[key]; ok {
			continue
		}
		if rec.Start.Before(cutoff) {
			continue
		}
		merged[key] = rec
		kept++
	}

	appLog.Debug("merged calendar", "fresh", len(fresh), "historical", kept, "total", len(merged))
	return merged
}
