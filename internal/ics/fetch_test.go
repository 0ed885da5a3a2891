package ics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const newYearCalendar = "BEGIN:VCALENDAR\r\n" +
	"VERSION:2.0\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:newyear\r\n" +
	"SUMMARY:New Year\r\n" +
	"DTSTART;VALUE=DATE:20240101\r\n" +
	"END:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

const captivePortal = "<html><body>Please sign in to the guest network</body></html>"

// feedServer serves newYearCalendar until mode is switched.
type feedServer struct {
	*httptest.Server
	mode atomic.Value // "ok", "down", "html", "304"
	hits atomic.Int32
}

func newFeedServer(t *testing.T) *feedServer {
	t.Helper()
	fs := &feedServer{}
	fs.mode.Store("ok")
	fs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fs.hits.Add(1)
		switch fs.mode.Load().(string) {
		case "down":
			http.Error(w, "down", http.StatusServiceUnavailable)
		case "html":
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte(captivePortal))
		case "304":
			w.WriteHeader(http.StatusNotModified)
		default:
			if r.Header.Get("If-None-Match") == `"v1"` {
				w.WriteHeader(http.StatusNotModified)
				return
			}
			w.Header().Set("ETag", `"v1"`)
			_, _ = w.Write([]byte(newYearCalendar))
		}
	}))
	t.Cleanup(fs.Close)
	return fs
}

func uids(res FetchResult) []string {
	out := make([]string, len(res.Events))
	for i, ev := range res.Events {
		out[i] = ev.UID
	}
	return out
}

func TestFetchParsesAndRevalidates(t *testing.T) {
	srv := newFeedServer(t)
	f := NewFetcher(t.TempDir())
	feed := Feed{ID: "holidays", URL: srv.URL + "/cal.ics"}

	res, err := f.FetchOne(context.Background(), feed)
	require.NoError(t, err)
	assert.False(t, res.FromCache)
	assert.Equal(t, feed, res.Feed)
	assert.Equal(t, []string{"newyear"}, uids(res))
	assert.Equal(t, feed, res.Events[0].Feed)

	res, err = f.FetchOne(context.Background(), feed)
	require.NoError(t, err)
	assert.True(t, res.FromCache)
	assert.False(t, res.Stale)
	assert.Equal(t, []string{"newyear"}, uids(res))
	assert.EqualValues(t, 2, srv.hits.Load())
}

func TestFetchFallsBackToCache(t *testing.T) {
	srv := newFeedServer(t)
	f := NewFetcher(t.TempDir())
	feed := Feed{ID: "holidays", URL: srv.URL}

	_, err := f.FetchOne(context.Background(), feed)
	require.NoError(t, err)

	srv.mode.Store("down")
	res, err := f.FetchOne(context.Background(), feed)
	require.NoError(t, err)
	assert.True(t, res.FromCache)
	assert.True(t, res.Stale)
	assert.Equal(t, []string{"newyear"}, uids(res))
}

func TestFetchKeepsCacheOnNonCalendarBody(t *testing.T) {
	srv := newFeedServer(t)
	dir := t.TempDir()
	f := NewFetcher(dir)
	feed := Feed{ID: "holidays", URL: srv.URL + "/cal.ics"}

	_, err := f.FetchOne(context.Background(), feed)
	require.NoError(t, err)

	srv.mode.Store("html")
	res, err := f.FetchOne(context.Background(), feed)
	require.NoError(t, err)
	assert.True(t, res.Stale)
	assert.Equal(t, []string{"newyear"}, uids(res))

	bodies, err := filepath.Glob(filepath.Join(dir, "*", "body.ics"))
	require.NoError(t, err)
	require.Len(t, bodies, 1)
	cached, err := os.ReadFile(bodies[0])
	require.NoError(t, err)
	assert.Equal(t, newYearCalendar, string(cached), "cache still holds the last calendar")

	// Later outages keep serving the calendar, not the portal page.
	srv.mode.Store("down")
	res, err = f.FetchOne(context.Background(), feed)
	require.NoError(t, err)
	assert.Equal(t, []string{"newyear"}, uids(res))
}

func TestFetchRejectsNonCalendarWithoutCache(t *testing.T) {
	srv := newFeedServer(t)
	srv.mode.Store("html")

	_, err := NewFetcher(t.TempDir()).FetchOne(context.Background(), Feed{ID: "holidays", URL: srv.URL})
	assert.ErrorIs(t, err, ErrNotCalendar)
}

func TestFetchNotModifiedWithoutCache(t *testing.T) {
	srv := newFeedServer(t)
	srv.mode.Store("304")

	_, err := NewFetcher(t.TempDir()).FetchOne(context.Background(), Feed{ID: "holidays", URL: srv.URL})
	assert.ErrorContains(t, err, "nothing cached")
}

func TestFetchAllCollectsErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.ics" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(newYearCalendar))
	}))
	defer srv.Close()

	f := NewFetcher(t.TempDir()).WithClient(srv.Client())
	results, errs := f.FetchAll(context.Background(), []Feed{
		{ID: "ok", URL: srv.URL + "/ok.ics"},
		{ID: "missing", URL: srv.URL + "/missing.ics"},
		{ID: "empty"},
	})
	require.Len(t, results, 1)
	assert.Equal(t, "ok", results[0].Feed.ID)
	assert.Len(t, results[0].Events, 1)
	assert.Len(t, errs, 2)
}

func TestRedactURL(t *testing.T) {
	assert.Equal(t, "https://example.com/...(redacted)", redactURL("https://example.com/private/basic.ics?token=abc"))
	assert.Equal(t, "ics://...(redacted)", redactURL("not a url"))
}
