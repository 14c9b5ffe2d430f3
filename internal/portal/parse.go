package portal

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	appLog "shiftcal/internal/log"
	"shiftcal/internal/model"
)

const (
	// dayListPrefix prefixes the id of the per-day list container, which
	// carries the date: "dayShifts-2025-10-17".
	dayListPrefix = "dayShifts-"

	// availabilityMarker is the shift-type label of an availability
	// placeholder, which is not a booked shift and is never emitted.
	availabilityMarker = "Tillgänglighet"

	breakMarker   = "Rast"
	shiftIDMarker = "ID:"
)

var (
	clockRe = regexp.MustCompile(`^\d{1,2}:\d{2}`)
	breakRe = regexp.MustCompile(breakMarker + `\s*(\d+)`)
)

// ExtractShifts parses one week's schedule page into shift records.
//
// Each collapsible block is handled independently: a malformed block is
// logged and skipped, never aborting the rest of the page. Availability
// placeholders are skipped too; only confirmed bookings come out.
func ExtractShifts(doc *goquery.Document, host string, loc *time.Location) []model.ShiftRecord {
	var records []model.ShiftRecord

	blocks := doc.Find("div[data-role='collapsible']")
	blocks.Each(func(_ int, block *goquery.Selection) {
		rec, err := parseShiftBlock(block, host, loc)
		if err != nil {
			appLog.Debug("skipping shift block", "reason", err.Error())
			return
		}
		records = append(records, rec)
	})

	appLog.Info("extracted shifts", "blocks", blocks.Length(), "bookings", len(records))
	return records
}

func parseShiftBlock(block *goquery.Selection, host string, loc *time.Location) (model.ShiftRecord, error) {
	var zero model.ShiftRecord

	// The enclosing day list holds the block's date in its id.
	dayList := block.Closest("ul")
	id, ok := dayList.Attr("id")
	if !ok || !strings.HasPrefix(id, dayListPrefix) {
		return zero, errors.New("no enclosing day list with date id")
	}
	dateStr := strings.TrimPrefix(id, dayListPrefix)

	header := block.Find("h6").First()
	if header.Length() == 0 {
		return zero, errors.New("no header element")
	}

	// Three ordered header rows: shift type, time range, location code.
	rows := header.Find("div.calendarListRow")
	if rows.Length() < 3 {
		return zero, fmt.Errorf("expected 3 header rows, found %d", rows.Length())
	}
	shiftType := trimmedText(rows.Eq(0))
	timeInfo := trimmedText(rows.Eq(1))
	locationCode := trimmedText(rows.Eq(2))

	if shiftType == availabilityMarker {
		return zero, errors.New("availability placeholder, not a booking")
	}

	start, end, err := parseTimeRange(dateStr, timeInfo, loc)
	if err != nil {
		return zero, err
	}

	// A linked full address wins over the bare location code.
	location := trimmedText(block.Find("a[id*='lnkAddress']").First())
	if location == "" {
		location = locationCode
	}

	notes := collectNotes(block, shiftType, timeInfo, locationCode)
	if shiftID := parseShiftID(block.Text()); shiftID != "" {
		notes = append(notes, shiftIDMarker+" "+shiftID)
	}

	summary := []string{shiftType}
	if locationCode != "" {
		summary = append(summary, locationCode)
	}
	if breakNote := parseBreak(timeInfo); breakNote != "" {
		summary = append(summary, breakNote)
	}

	return model.ShiftRecord{
		Key:      model.IdentityKey(start, host),
		Summary:  strings.Join(summary, " - "),
		Location: location,
		Notes:    strings.Join(notes, "\n"),
		Start:    start,
		End:      end,
	}, nil
}

// parseTimeRange parses "HH:MM-HH:MM" combined with the block's date.
// Trailing text after either clock value (such as the break annotation)
// is tolerated. A range that wraps past midnight ends on the following
// day, so the record's start always precedes its end.
func parseTimeRange(dateStr, timeInfo string, loc *time.Location) (time.Time, time.Time, error) {
	// Only the first line carries the range.
	line := strings.TrimSpace(strings.SplitN(timeInfo, "\n", 2)[0])

	sep := strings.Index(line, "-")
	if sep < 0 {
		return time.Time{}, time.Time{}, fmt.Errorf("time range %q has no separator", line)
	}

	startTok := clockRe.FindString(strings.TrimSpace(line[:sep]))
	endTok := clockRe.FindString(strings.TrimSpace(line[sep+1:]))
	if startTok == "" || endTok == "" {
		return time.Time{}, time.Time{}, fmt.Errorf("time range %q is not HH:MM-HH:MM", line)
	}

	start, err := time.ParseInLocation("2006-01-02 15:04", dateStr+" "+startTok, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := time.ParseInLocation("2006-01-02 15:04", dateStr+" "+endTok, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}

	if end.Before(start) {
		// Overnight shift.
		end = end.AddDate(0, 0, 1)
	}
	if !end.After(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("time range %q is empty", line)
	}

	return start, end, nil
}

// parseBreak extracts the break annotation embedded in the time-range
// text, e.g. "08:30-16:30 Rast 30" yields "Rast 30 min".
func parseBreak(timeInfo string) string {
	m := breakRe.FindStringSubmatch(timeInfo)
	if m == nil {
		return ""
	}
	return fmt.Sprintf("%s %s min", breakMarker, m[1])
}

// collectNotes gathers the remaining text rows of a block that are not
// already captured as shift type, time range or location code. Rows
// containing an anchor hold the linked address and are excluded to avoid
// duplicating it.
func collectNotes(block *goquery.Selection, seen ...string) []string {
	var notes []string
	block.Find("div.calendarListRow").Each(func(_ int, row *goquery.Selection) {
		text := trimmedText(row)
		if text == "" || strings.HasPrefix(text, shiftIDMarker) {
			return
		}
		for _, s := range seen {
			if text == s {
				return
			}
		}
		if row.Find("a").Length() > 0 {
			return
		}
		notes = append(notes, text)
	})
	return notes
}

// parseShiftID finds a trailing identifier after the last "ID:" marker
// anywhere in the block's text.
func parseShiftID(blockText string) string {
	i := strings.LastIndex(blockText, shiftIDMarker)
	if i < 0 {
		return ""
	}
	fields := strings.Fields(blockText[i+len(shiftIDMarker):])
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func trimmedText(sel *goquery.Selection) string {
	return strings.TrimSpace(sel.Text())
}
