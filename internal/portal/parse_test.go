package portal

import (
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"

	"shiftcal/internal/model"
)

const testHost = "timepool.example.se"

// One day of the mobile schedule page: a booking with linked address,
// extra note row and shift ID, next to an availability placeholder.
const scheduleFixture = `<!DOCTYPE html>
<html><body>
<ul data-role="listview" id="dayShifts-2025-10-17">
  <li>
    <div data-role="collapsible">
      <h6>
        <div class="calendarListRow">Bokning</div>
        <div class="calendarListRow">08:30-16:30 Rast 30</div>
        <div class="calendarListRow">23 LärKan</div>
      </h6>
      <div class="calendarListRow"><a id="ctl00_ContentMain_lnkAddress_0" href="#">Lärkgatan 5, Borås</a></div>
      <div class="calendarListRow">Ta med egen nyckel</div>
      <div class="calendarListRow">ID: 123456</div>
    </div>
  </li>
  <li>
    <div data-role="collapsible">
      <h6>
        <div class="calendarListRow">Tillgänglighet</div>
        <div class="calendarListRow">07:00-15:00</div>
        <div class="calendarListRow">Pool</div>
      </h6>
    </div>
  </li>
</ul>
</body></html>`

func parseFixture(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

func TestExtractShifts(t *testing.T) {
	doc := parseFixture(t, scheduleFixture)

	records := ExtractShifts(doc, testHost, time.UTC)

	require.Len(t, records, 1, "availability placeholder must not be emitted")

	rec := records[0]
	require.True(t, strings.HasPrefix(rec.Summary, "Bokning - 23 LärKan"), "summary %q", rec.Summary)
	require.Equal(t, "Bokning - 23 LärKan - Rast 30 min", rec.Summary)
	require.Equal(t, time.Date(2025, 10, 17, 8, 30, 0, 0, time.UTC), rec.Start)
	require.Equal(t, time.Date(2025, 10, 17, 16, 30, 0, 0, time.UTC), rec.End)
	require.Equal(t, "Lärkgatan 5, Borås", rec.Location)
	require.Equal(t, "Ta med egen nyckel\nID: 123456", rec.Notes)
	require.Equal(t, model.IdentityKey(rec.Start, testHost), rec.Key)
}

func TestExtractShiftsSkipsMalformedBlocks(t *testing.T) {
	const html = `<html><body>
<div data-role="collapsible">
  <h6>
    <div class="calendarListRow">Bokning</div>
    <div class="calendarListRow">08:00-12:00</div>
    <div class="calendarListRow">11 Centrum</div>
  </h6>
</div>
<ul id="dayShifts-2025-10-18">
  <li><div data-role="collapsible">
    <h6>
      <div class="calendarListRow">Bokning</div>
      <div class="calendarListRow">08:00-12:00</div>
    </h6>
  </div></li>
  <li><div data-role="collapsible">
    <h6>
      <div class="calendarListRow">Bokning</div>
      <div class="calendarListRow">hela dagen</div>
      <div class="calendarListRow">11 Centrum</div>
    </h6>
  </div></li>
  <li><div data-role="collapsible">
    <h6>
      <div class="calendarListRow">Bokning</div>
      <div class="calendarListRow">13:00-17:00</div>
      <div class="calendarListRow">11 Centrum</div>
    </h6>
  </div></li>
</ul>
</body></html>`

	records := ExtractShifts(parseFixture(t, html), testHost, time.UTC)

	// Block outside a dated day list, block with too few header rows and
	// block without a time separator are all skipped; the last block
	// still comes through.
	require.Len(t, records, 1)
	require.Equal(t, time.Date(2025, 10, 18, 13, 0, 0, 0, time.UTC), records[0].Start)
}

func TestExtractShiftsEmptyLocationCode(t *testing.T) {
	const html = `<html><body>
<ul id="dayShifts-2025-10-19">
  <li><div data-role="collapsible">
    <h6>
      <div class="calendarListRow">Bokning</div>
      <div class="calendarListRow">09:00-13:00</div>
      <div class="calendarListRow"></div>
    </h6>
    <div class="calendarListRow"><a id="x_lnkAddress_1" href="#">Storgatan 1</a></div>
  </div></li>
</ul>
</body></html>`

	records := ExtractShifts(parseFixture(t, html), testHost, time.UTC)

	require.Len(t, records, 1)
	require.Equal(t, "Bokning", records[0].Summary)
	require.Equal(t, "Storgatan 1", records[0].Location)
}

func TestExtractShiftsDuplicateHeaderRows(t *testing.T) {
	const html = `<html><body>
<ul id="dayShifts-2025-10-19">
  <li><div data-role="collapsible">
    <h6>
      <div class="calendarListRow">Natt</div>
      <div class="calendarListRow">13:00-21:00</div>
      <div class="calendarListRow">Natt</div>
    </h6>
  </div></li>
</ul>
</body></html>`

	records := ExtractShifts(parseFixture(t, html), testHost, time.UTC)

	require.Len(t, records, 1)
	require.Equal(t, "Natt - Natt", records[0].Summary)
}

func TestExtractShiftsNoBreakAnnotation(t *testing.T) {
	const html = `<html><body>
<ul id="dayShifts-2025-10-19">
  <li><div data-role="collapsible">
    <h6>
      <div class="calendarListRow">Bokning</div>
      <div class="calendarListRow">09:00-13:00</div>
      <div class="calendarListRow">11 Centrum</div>
    </h6>
  </div></li>
</ul>
</body></html>`

	records := ExtractShifts(parseFixture(t, html), testHost, time.UTC)

	require.Len(t, records, 1)
	require.Equal(t, "Bokning - 11 Centrum", records[0].Summary)
	require.Equal(t, "11 Centrum", records[0].Location)
	require.Empty(t, records[0].Notes)
}

func TestParseTimeRange(t *testing.T) {
	cases := []struct {
		name     string
		timeInfo string
		wantErr  bool
		start    string
		end      string
	}{
		{name: "plain range", timeInfo: "08:30-16:30", start: "2025-10-17 08:30", end: "2025-10-17 16:30"},
		{name: "trailing break text", timeInfo: "08:30-16:30 Rast 30", start: "2025-10-17 08:30", end: "2025-10-17 16:30"},
		{name: "spaced range", timeInfo: "08:30 - 16:30", start: "2025-10-17 08:30", end: "2025-10-17 16:30"},
		{name: "multiline", timeInfo: "08:30-16:30\nRast 30", start: "2025-10-17 08:30", end: "2025-10-17 16:30"},
		{name: "overnight range", timeInfo: "22:00-06:00", start: "2025-10-17 22:00", end: "2025-10-18 06:00"},
		{name: "zero length", timeInfo: "08:00-08:00", wantErr: true},
		{name: "no separator", timeInfo: "hela dagen", wantErr: true},
		{name: "separator without clocks", timeInfo: "fm-em", wantErr: true},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			start, end, err := parseTimeRange("2025-10-17", c.timeInfo, time.UTC)
			if c.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, c.start, start.Format("2006-01-02 15:04"))
			require.Equal(t, c.end, end.Format("2006-01-02 15:04"))
			require.True(t, start.Before(end))
		})
	}
}

func TestParseBreak(t *testing.T) {
	require.Equal(t, "Rast 30 min", parseBreak("08:30-16:30 Rast 30"))
	require.Equal(t, "Rast 45 min", parseBreak("08:30-16:30\nRast  45"))
	require.Empty(t, parseBreak("08:30-16:30"))
	require.Empty(t, parseBreak("08:30-16:30 Rast"))
}

func TestParseShiftID(t *testing.T) {
	require.Equal(t, "123456", parseShiftID("Bokning 08:30-16:30 ID: 123456"))
	require.Equal(t, "987", parseShiftID("ID: 1 something ID: 987 trailing"))
	require.Empty(t, parseShiftID("no identifier here"))
	require.Empty(t, parseShiftID("ID:"))
}
