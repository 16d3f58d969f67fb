package source

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	appLog "calpost/internal/log"
)

// Feed identifies a single ICS subscription.
type Feed struct {
	ID  string
	URL string
}

// feedResult is the outcome of fetching one feed.
type feedResult struct {
	Feed      Feed
	Body      []byte
	FromCache bool // body reused from disk cache (304 or network fallback)
}

// feedCacheMeta holds HTTP cache metadata for one feed URL.
type feedCacheMeta struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// feedFetcher fetches ICS feeds with conditional requests (ETag /
// Last-Modified) backed by a small disk cache keyed by URL hash. On
// network failure it falls back to the cached body when one exists, so
// a flaky feed does not wipe the calendar.
type feedFetcher struct {
	client   *http.Client
	cacheDir string
}

func newFeedFetcher(cacheDir string) *feedFetcher {
	if cacheDir == "" {
		cacheDir = "./var/ics-cache"
	}
	return &feedFetcher{
		client:   &http.Client{Timeout: 15 * time.Second},
		cacheDir: cacheDir,
	}
}

func (f *feedFetcher) fetch(ctx context.Context, feed Feed) (feedResult, error) {
	if feed.URL == "" {
		return feedResult{}, errors.New("feed URL is empty")
	}

	cachePath := filepath.Join(f.cacheDir, urlKey(feed.URL))
	if err := os.MkdirAll(cachePath, 0o700); err != nil {
		return feedResult{}, err
	}

	meta, _ := loadFeedMeta(cachePath)
	cachedBody, _ := os.ReadFile(filepath.Join(cachePath, "body.ics"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feed.URL, nil)
	if err != nil {
		return feedResult{}, err
	}
	if meta.ETag != "" {
		req.Header.Set("If-None-Match", meta.ETag)
	}
	if meta.LastModified != "" {
		req.Header.Set("If-Modified-Since", meta.LastModified)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if len(cachedBody) > 0 {
			appLog.Error("ics fetch network error, using cached body", err, "id", feed.ID, "url", redactURL(feed.URL))
			return feedResult{Feed: feed, Body: cachedBody, FromCache: true}, nil
		}
		return feedResult{}, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return feedResult{}, readErr
		}
		newMeta := feedCacheMeta{
			URL:          feed.URL,
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
			UpdatedAt:    time.Now().UTC(),
		}
		if err := saveFeedCache(cachePath, newMeta, body); err != nil {
			// The fresh body is still usable even if caching failed.
			appLog.Error("ics cache save failed", err, "id", feed.ID, "url", redactURL(feed.URL))
		}
		return feedResult{Feed: feed, Body: body}, nil

	case http.StatusNotModified:
		if len(cachedBody) == 0 {
			return feedResult{}, errors.New("304 Not Modified but no cached body available")
		}
		return feedResult{Feed: feed, Body: cachedBody, FromCache: true}, nil

	default:
		if len(cachedBody) > 0 {
			appLog.Error("ics fetch non-OK, using cached body", errors.New(resp.Status), "id", feed.ID, "status", resp.StatusCode)
			return feedResult{Feed: feed, Body: cachedBody, FromCache: true}, nil
		}
		return feedResult{}, fmt.Errorf("fetching %s: %s", redactURL(feed.URL), resp.Status)
	}
}

func urlKey(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:8])
}

func loadFeedMeta(cachePath string) (feedCacheMeta, error) {
	var meta feedCacheMeta
	data, err := os.ReadFile(filepath.Join(cachePath, "meta.json"))
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return feedCacheMeta{}, err
	}
	return meta, nil
}

func saveFeedCache(cachePath string, meta feedCacheMeta, body []byte) error {
	// Write body first so meta never points at a missing body.
	if err := os.WriteFile(filepath.Join(cachePath, "body.ics"), body, 0o600); err != nil {
		return err
	}
	data, err := json.MarshalIndent(&meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(cachePath, "meta.json"), data, 0o600)
}

// redactURL hides the path and query of a feed URL in logs; private
// ICS links usually embed a secret token.
func redactURL(u string) string {
	const redactedSuffix = "/...(redacted)"

	i := -1
	for idx := 0; idx+2 < len(u); idx++ {
		if u[idx:idx+3] == "://" {
			i = idx + 3
			break
		}
	}
	if i == -1 {
		return "ics://...(redacted)"
	}

	j := i
	for j < len(u) && u[j] != '/' {
		j++
	}
	return u[:j] + redactedSuffix
}
