package ics

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	appLog "recurcal/internal/log"
)

// maxFeedSize caps a downloaded holiday feed.
const maxFeedSize = 8 << 20

// ErrNotCalendar is returned when a feed answers with something other than
// a VCALENDAR, e.g. a captive portal or an error page served with 200.
var ErrNotCalendar = errors.New("ics: feed body is not a VCALENDAR")

var errNotModified = errors.New("not modified")

// Feed is a holiday calendar subscription.
type Feed struct {
	// ID names the feed in logs, usually the owning schedule ID.
	ID string
	// URL is the ICS endpoint.
	URL string
}

// FetchResult holds the parsed events of one feed.
type FetchResult struct {
	Feed   Feed
	Events []ParsedEvent
	// FromCache is set when the events were read from the disk cache.
	FromCache bool
	// Stale is set when the download failed or was not a calendar and the
	// last good copy was served instead.
	Stale bool
}

// cacheMeta is stored next to the cached body of a feed.
type cacheMeta struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	Events       int       `json:"events"`
	FetchedAt    time.Time `json:"fetched_at"`
}

// feedCache is the on-disk copy of the last feed body that parsed.
type feedCache struct {
	dir  string
	meta cacheMeta
	body []byte
}

// Fetcher downloads holiday feeds with conditional requests and keeps the
// last valid calendar of each on disk.
type Fetcher struct {
	client   *http.Client
	cacheDir string
}

// NewFetcher creates a Fetcher caching under cacheDir, one subdirectory per
// feed URL.
func NewFetcher(cacheDir string) *Fetcher {
	if cacheDir == "" {
		cacheDir = "./var/ics-cache"
	}
	return &Fetcher{
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
		cacheDir: cacheDir,
	}
}

// WithClient replaces the HTTP client.
func (f *Fetcher) WithClient(c *http.Client) *Fetcher {
	f.client = c
	return f
}

// FetchAll fetches every feed. Failures are logged and collected; results
// only hold feeds that produced events, from network or cache.
func (f *Fetcher) FetchAll(ctx context.Context, feeds []Feed) ([]FetchResult, []error) {
	results := make([]FetchResult, 0, len(feeds))
	var errs []error

	for _, feed := range feeds {
		res, err := f.FetchOne(ctx, feed)
		if err != nil {
			errs = append(errs, err)
			appLog.Error("holiday feed fetch failed", err, "id", feed.ID, "url", redactURL(feed.URL))
			continue
		}
		results = append(results, res)
	}
	return results, errs
}

// FetchOne downloads a feed and parses its events. A body is written to the
// cache only after it parses as a calendar. When the download fails or is
// not a calendar, the cached copy is served with Stale set.
func (f *Fetcher) FetchOne(ctx context.Context, feed Feed) (FetchResult, error) {
	if feed.URL == "" {
		return FetchResult{}, errors.New("feed URL is empty")
	}
	cache, err := f.openCache(feed.URL)
	if err != nil {
		return FetchResult{}, err
	}

	appLog.Info("holiday feed fetch start", "id", feed.ID, "url", redactURL(feed.URL))

	body, meta, err := f.download(ctx, feed, cache.meta)
	switch {
	case errors.Is(err, errNotModified):
		if len(cache.body) == 0 {
			return FetchResult{}, fmt.Errorf("holiday feed %s: 304 Not Modified with nothing cached", feed.ID)
		}
		events, err := Parse(feed, cache.body)
		if err != nil {
			return FetchResult{}, fmt.Errorf("cached holiday feed %s: %w", feed.ID, err)
		}
		appLog.Debug("holiday feed not modified", "id", feed.ID, "events", len(events))
		return FetchResult{Feed: feed, Events: events, FromCache: true}, nil
	case err != nil:
		return f.fallback(feed, cache, err)
	}

	events, err := decode(feed, body)
	if err != nil {
		return f.fallback(feed, cache, err)
	}

	meta.Events = len(events)
	if err := cache.save(meta, body); err != nil {
		appLog.Error("holiday feed cache save failed", err, "id", feed.ID, "url", redactURL(feed.URL))
	}
	appLog.Info("holiday feed fetched", "id", feed.ID, "url", redactURL(feed.URL), "events", len(events))
	return FetchResult{Feed: feed, Events: events}, nil
}

// download performs the conditional GET. A 304 returns errNotModified.
func (f *Fetcher) download(ctx context.Context, feed Feed, prev cacheMeta) ([]byte, cacheMeta, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feed.URL, nil)
	if err != nil {
		return nil, cacheMeta{}, err
	}
	if prev.ETag != "" {
		req.Header.Set("If-None-Match", prev.ETag)
	}
	if prev.LastModified != "" {
		req.Header.Set("If-Modified-Since", prev.LastModified)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, cacheMeta{}, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedSize))
		if err != nil {
			return nil, cacheMeta{}, err
		}
		return body, cacheMeta{
			URL:          feed.URL,
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
			FetchedAt:    time.Now().UTC(),
		}, nil
	case http.StatusNotModified:
		return nil, prev, errNotModified
	default:
		return nil, cacheMeta{}, fmt.Errorf("holiday feed %s: %s", feed.ID, resp.Status)
	}
}

// decode parses a downloaded body, rejecting anything that does not open
// with BEGIN:VCALENDAR.
func decode(feed Feed, body []byte) ([]ParsedEvent, error) {
	const begin = "BEGIN:VCALENDAR"
	trimmed := bytes.TrimSpace(bytes.TrimPrefix(body, []byte("\xef\xbb\xbf")))
	if len(trimmed) < len(begin) || !bytes.EqualFold(trimmed[:len(begin)], []byte(begin)) {
		return nil, fmt.Errorf("%w: %s", ErrNotCalendar, feed.ID)
	}
	return Parse(feed, body)
}

func (f *Fetcher) fallback(feed Feed, cache *feedCache, cause error) (FetchResult, error) {
	if len(cache.body) == 0 {
		return FetchResult{}, cause
	}
	events, err := Parse(feed, cache.body)
	if err != nil {
		return FetchResult{}, cause
	}
	appLog.Error("holiday feed unusable, serving cache", cause,
		"id", feed.ID, "url", redactURL(feed.URL), "cached_at", cache.meta.FetchedAt.Format(time.RFC3339))
	return FetchResult{Feed: feed, Events: events, FromCache: true, Stale: true}, nil
}

// openCache loads the cache directory of a feed URL, keyed by a hash of the
// URL. A missing or unreadable cache is empty.
func (f *Fetcher) openCache(rawURL string) (*feedCache, error) {
	sum := sha256.Sum256([]byte(rawURL))
	c := &feedCache{dir: filepath.Join(f.cacheDir, hex.EncodeToString(sum[:8]))}
	if err := os.MkdirAll(c.dir, 0o700); err != nil {
		return nil, err
	}
	if data, err := os.ReadFile(filepath.Join(c.dir, "meta.json")); err == nil {
		if err := json.Unmarshal(data, &c.meta); err != nil {
			c.meta = cacheMeta{}
		}
	}
	c.body, _ = os.ReadFile(filepath.Join(c.dir, "body.ics"))
	return c, nil
}

// save replaces the cached body and then its metadata, each via a temp
// file and rename.
func (c *feedCache) save(meta cacheMeta, body []byte) error {
	if err := writeAtomic(filepath.Join(c.dir, "body.ics"), body); err != nil {
		return err
	}
	data, err := json.MarshalIndent(&meta, "", "  ")
	if err != nil {
		return err
	}
	if err := writeAtomic(filepath.Join(c.dir, "meta.json"), data); err != nil {
		return err
	}
	c.meta, c.body = meta, body
	return nil
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".feed-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// redactURL keeps only the scheme and host of a feed URL for logging;
// private calendar URLs carry tokens in the path or query.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "ics://...(redacted)"
	}
	return u.Scheme + "://" + u.Host + "/...(redacted)"
}
