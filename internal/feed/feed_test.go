package feed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"shiftcal/internal/scrape"
	"shiftcal/internal/store"
)

const testToken = "0123456789abcdef0123456789abcdef"

// stubRefresher lets tests control what a triggered cycle reports.
type stubRefresher struct {
	err   error
	calls int
}

func (s *stubRefresher) Run(ctx context.Context) error {
	s.calls++
	return s.err
}

func newTestServer(t *testing.T) (*Server, *store.Store, *stubRefresher) {
	t.Helper()
	st, err := store.New(t.TempDir())
	require.NoError(t, err)
	refresher := &stubRefresher{}
	return NewServer("127.0.0.1:0", st, refresher, testToken), st, refresher
}

func do(t *testing.T, s *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestCalendarWrongTokenIsNotFound(t *testing.T) {
	s, st, _ := newTestServer(t)
	require.NoError(t, st.Write([]byte("BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n"), time.Now()))

	rec := do(t, s, http.MethodGet, "/calendar/wrong-token.ics")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCalendarBeforeFirstScrape(t *testing.T) {
	s, _, _ := newTestServer(t)

	rec := do(t, s, http.MethodGet, "/calendar/"+testToken+".ics")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCalendarServesDocument(t *testing.T) {
	s, st, _ := newTestServer(t)
	payload := []byte("BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n")
	require.NoError(t, st.Write(payload, time.Now()))

	rec := do(t, s, http.MethodGet, "/calendar/"+testToken+".ics")

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "text/calendar; charset=utf-8", rec.Header().Get("Content-Type"))
	require.Contains(t, rec.Header().Get("Cache-Control"), "no-cache")
	require.Equal(t, payload, rec.Body.Bytes())
}

func TestRefreshTriggersCycle(t *testing.T) {
	s, _, refresher := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/refresh/"+testToken)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, refresher.calls)
}

func TestRefreshWrongTokenDoesNotTrigger(t *testing.T) {
	s, _, refresher := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/refresh/nope")

	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Zero(t, refresher.calls)
}

func TestRefreshWhileCycleRunning(t *testing.T) {
	s, _, refresher := newTestServer(t)
	refresher.err = scrape.ErrCycleInProgress

	rec := do(t, s, http.MethodPost, "/refresh/"+testToken)
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestStatusReportsLastUpdate(t *testing.T) {
	s, st, _ := newTestServer(t)

	rec := do(t, s, http.MethodGet, "/")
	require.Equal(t, http.StatusOK, rec.Code)

	var status struct {
		Service    string     `json:"service"`
		LastUpdate *time.Time `json:"last_update"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	require.Equal(t, "shiftcal", status.Service)
	require.Nil(t, status.LastUpdate)

	require.NoError(t, st.Write([]byte("x"), time.Now()))

	rec = do(t, s, http.MethodGet, "/")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	require.NotNil(t, status.LastUpdate)
}

func TestHealthz(t *testing.T) {
	s, _, _ := newTestServer(t)

	rec := do(t, s, http.MethodGet, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
}
