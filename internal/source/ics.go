package source

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	appLog "calpost/internal/log"
	"calpost/internal/model"
)

// ICSSource reads events from one or more ICS feed subscriptions. The
// freshness token is a digest over the feed bodies, so it changes
// exactly when the published calendar content changes, whether or not
// the feed server emits ETags.
type ICSSource struct {
	fetcher *feedFetcher
	feeds   []Feed
	loc     *time.Location
}

// NewICSSource builds the feed-backed source. cacheDir hosts the
// conditional-GET disk cache.
func NewICSSource(cacheDir string, feeds []Feed, loc *time.Location) *ICSSource {
	return &ICSSource{
		fetcher: newFeedFetcher(cacheDir),
		feeds:   feeds,
		loc:     loc,
	}
}

// FetchMonth implements Source. A feed that fails without a cached
// fallback fails the whole fetch: a token computed over partial data
// would otherwise flap and trigger spurious re-renders.
func (s *ICSSource) FetchMonth(ctx context.Context, m model.Month) (string, []model.RawEvent, error) {
	if len(s.feeds) == 0 {
		return "", nil, fmt.Errorf("no ICS feeds configured")
	}

	results := make([]feedResult, 0, len(s.feeds))
	for _, feed := range s.feeds {
		res, err := s.fetcher.fetch(ctx, feed)
		if err != nil {
			return "", nil, fmt.Errorf("feed %s: %w", feed.ID, err)
		}
		results = append(results, res)
	}

	token := digestToken(results)

	rangeStart, rangeEnd := monthWindow(m, s.loc)
	raws := make([]model.RawEvent, 0)
	for _, res := range results {
		events, err := parseICS(res.Feed, res.Body)
		if err != nil {
			// A syntactically broken feed is logged and skipped; its body
			// still participates in the token so recovery is detected.
			appLog.Error("ics parse failed, skipping feed", err, "id", res.Feed.ID)
			continue
		}
		raws = append(raws, expandEvents(events, rangeStart, rangeEnd)...)
	}

	appLog.Info("ics fetch completed",
		"month", m.String(), "feed_count", len(s.feeds), "event_count", len(raws))
	return token, raws, nil
}

// digestToken hashes the feed bodies in a feed-order-independent way.
func digestToken(results []feedResult) string {
	sums := make([]string, 0, len(results))
	for _, res := range results {
		sum := sha256.Sum256(res.Body)
		sums = append(sums, res.Feed.ID+":"+hex.EncodeToString(sum[:]))
	}
	sort.Strings(sums)

	h := sha256.New()
	for _, s := range sums {
		h.Write([]byte(s))
	}
	return hex.EncodeToString(h.Sum(nil)[:16])
}
