package calendar

import (
	"bytes"
	"errors"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "shiftcal/internal/log"
	"shiftcal/internal/model"
)

const (
	prodID      = "-//TimePool Schedule//EN"
	calName     = "Work Schedule"
	calTimeZone = "Europe/Stockholm"
)

// Encode serializes the calendar into an ICS document, one VEVENT per
// record. The record key becomes the UID and DTSTAMP is set to now for
// every event. Events are marked TRANSP:OPAQUE so clients count shifts
// as busy time.
func Encode(cal model.Calendar, now time.Time) []byte {
	doc := ical.NewCalendar()
	doc.SetProductId(prodID)
	doc.SetVersion("2.0")
	doc.SetXWRCalName(calName)
	doc.SetXWRTimezone(calTimeZone)
	doc.SetCalscale("GREGORIAN")
	doc.SetMethod(ical.MethodPublish)

	for _, rec := range cal.Records() {
		ev := doc.AddEvent(rec.Key)
		ev.SetDtStampTime(now)
		ev.SetStartAt(rec.Start)
		ev.SetEndAt(rec.End)
		ev.SetSummary(rec.Summary)
		if rec.Location != "" {
			ev.SetLocation(rec.Location)
		}
		if rec.Notes != "" {
			ev.SetDescription(rec.Notes)
		}
		ev.SetTimeTransparency(ical.TransparencyOpaque)
	}

	return []byte(doc.Serialize())
}

// Decode parses a previously persisted ICS document back into a calendar.
//
// Decoding is deliberately tolerant: the merge step treats "no prior
// history" as a valid state, so an empty or corrupt document yields an
// empty calendar instead of an error, and individual events missing a
// UID or timestamps are logged and skipped.
func Decode(data []byte) model.Calendar {
	cal := model.NewCalendar()
	if len(data) == 0 {
		return cal
	}

	doc, err := ical.ParseCalendar(bytes.NewReader(data))
	if err != nil {
		appLog.Error("persisted calendar unreadable, starting from empty history", err)
		return cal
	}

	for _, ev := range doc.Events() {
		rec, err := decodeEvent(ev)
		if err != nil {
			appLog.Error("skipping unreadable calendar event", err)
			continue
		}
		cal.Add(rec)
	}

	return cal
}

func decodeEvent(ev *ical.VEvent) (model.ShiftRecord, error) {
	var rec model.ShiftRecord

	uidProp := ev.GetProperty(ical.ComponentPropertyUniqueId)
	if uidProp == nil || uidProp.Value == "" {
		return rec, errors.New("missing UID")
	}
	rec.Key = uidProp.Value

	start, err := ev.GetStartAt()
	if err != nil {
		return rec, err
	}
	end, err := ev.GetEndAt()
	if err != nil {
		return rec, err
	}
	rec.Start = start
	rec.End = end

	// RFC 5545 TEXT escaping is handled by the library on both sides:
	// Serialize escapes property values, the parser unescapes them.
	if p := ev.GetProperty(ical.ComponentPropertySummary); p != nil {
		rec.Summary = p.Value
	}
	if p := ev.GetProperty(ical.ComponentPropertyLocation); p != nil {
		rec.Location = p.Value
	}
	if p := ev.GetProperty(ical.ComponentPropertyDescription); p != nil {
		rec.Notes = p.Value
	}

	return rec, nil
}
