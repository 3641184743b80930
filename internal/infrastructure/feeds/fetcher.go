package feeds

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/mmcdole/gofeed"
	"golang.org/x/sync/errgroup"

	"github.com/isaac-evs/safeway-etl/internal/config"
	"github.com/isaac-evs/safeway-etl/internal/domain"
	"github.com/isaac-evs/safeway-etl/internal/ports"
)

// Browser-like headers reduce 403 rejections from news origin servers.
const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/90.0.4430.93 Safari/537.36"

// Fetcher pulls the configured RSS feeds, normalizes entries into articles
// and filters out already-seen URLs. The seen set is owned by the Fetcher
// and is only touched from the producer goroutine, so it needs no locking.
type Fetcher struct {
	urls           []string
	maxRetries     int
	retryDelay     time.Duration
	requestTimeout time.Duration
	http           *http.Client
	parser         *gofeed.Parser
	seen           map[string]struct{}
	logger         *slog.Logger
}

var _ ports.ArticleSource = (*Fetcher)(nil)

// NewFetcher wires the feed list and retry policy. client may be nil.
func NewFetcher(cfg config.FeedsConfig, client *http.Client, logger *slog.Logger) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: cfg.RequestTimeout}
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 1 {
		maxRetries = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		urls:           cfg.URLs,
		maxRetries:     maxRetries,
		retryDelay:     cfg.RetryDelay,
		requestTimeout: cfg.RequestTimeout,
		http:           client,
		parser:         gofeed.NewParser(),
		seen:           map[string]struct{}{},
		logger:         logger,
	}
}

// Seed loads the known-URL set, typically from the store at startup, so
// previously persisted articles are never re-enqueued.
func (f *Fetcher) Seed(urls map[string]struct{}) {
	for u := range urls {
		f.seen[u] = struct{}{}
	}
	if f.logger != nil {
		f.logger.Info("seeded feed fetcher", "known_urls", len(urls))
	}
}

// FetchAll fetches every configured feed concurrently and returns the
// normalized, not-yet-seen articles. A feed that fails all retries or
// returns a malformed document contributes zero articles; it is never fatal.
func (f *Fetcher) FetchAll(ctx context.Context) ([]*domain.Article, error) {
	perFeed := make([]*gofeed.Feed, len(f.urls))

	g, gctx := errgroup.WithContext(ctx)
	for i, feedURL := range f.urls {
		g.Go(func() error {
			feed, err := f.fetchFeed(gctx, feedURL)
			if err != nil {
				f.logger.Error("feed fetch failed", "feed", feedURL, "error", err)
				return nil
			}
			perFeed[i] = feed
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var fresh []*domain.Article
	for i, feed := range perFeed {
		if feed == nil {
			continue
		}
		sourceName := feed.Title
		if sourceName == "" {
			sourceName = f.urls[i]
		}
		for _, entry := range feed.Items {
			article := normalizeEntry(entry, sourceName)
			if article == nil {
				continue
			}
			if _, ok := f.seen[article.URL]; ok {
				continue
			}
			f.seen[article.URL] = struct{}{}
			fresh = append(fresh, article)
		}
	}

	f.logger.Info("fetched new articles", "count", len(fresh), "feeds", len(f.urls))
	return fresh, nil
}

// fetchFeed retrieves one feed with fixed-delay retries. A 403 is logged as
// a rejection hint but follows the same retry policy as any other non-200.
func (f *Fetcher) fetchFeed(ctx context.Context, feedURL string) (*gofeed.Feed, error) {
	if !strings.HasPrefix(feedURL, "http") {
		return nil, fmt.Errorf("invalid feed url %q", feedURL)
	}

	bo := backoff.NewConstantBackOff(f.retryDelay)

	var lastErr error
	for attempt := 1; attempt <= f.maxRetries; attempt++ {
		feed, err := f.fetchOnce(ctx, feedURL)
		if err == nil {
			return feed, nil
		}
		lastErr = err

		if attempt < f.maxRetries {
			select {
			case <-time.After(bo.NextBackOff()):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return nil, fmt.Errorf("after %d attempts: %w", f.maxRetries, lastErr)
}

func (f *Fetcher) fetchOnce(ctx context.Context, feedURL string) (*gofeed.Feed, error) {
	if f.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.requestTimeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/rss+xml, application/xml;q=0.9, */*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	if idx := strings.LastIndex(feedURL, "/"); idx > len("https://") {
		req.Header.Set("Referer", feedURL[:idx])
	}

	resp, err := f.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusForbidden {
		f.logger.Warn("feed rejected request", "feed", feedURL, "status", resp.Status)
		return nil, fmt.Errorf("feed status %s", resp.Status)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed status %s", resp.Status)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read feed body: %w", err)
	}

	feed, err := f.parser.Parse(bytes.NewReader(raw))
	if err != nil {
		// Malformed documents are a zero-article result for this feed.
		f.logger.Warn("feed parse failed", "feed", feedURL, "error", err)
		return &gofeed.Feed{Title: feedURL}, nil
	}
	return feed, nil
}

// normalizeEntry maps a syndication item onto the pipeline's article shape.
// Entries without a link, title or description are dropped here, before the
// queue ever sees them.
func normalizeEntry(entry *gofeed.Item, sourceName string) *domain.Article {
	if entry == nil || entry.Link == "" {
		return nil
	}

	title := strings.TrimSpace(entry.Title)
	description := strings.TrimSpace(entry.Description)
	if description == "" {
		description = strings.TrimSpace(entry.Content)
	}
	if title == "" || description == "" {
		return nil
	}

	return &domain.Article{
		Source:      sourceName,
		Title:       title,
		Description: description,
		URL:         entry.Link,
		PublishedAt: entryDate(entry),
	}
}

// entryDate resolves a publish date from the available representations,
// falling back to the current date when none parse.
func entryDate(entry *gofeed.Item) time.Time {
	if entry.PublishedParsed != nil {
		return dateOnly(*entry.PublishedParsed)
	}
	if entry.UpdatedParsed != nil {
		return dateOnly(*entry.UpdatedParsed)
	}
	for _, raw := range []string{entry.Published, entry.Updated} {
		if raw == "" {
			continue
		}
		for _, layout := range []string{time.RFC3339, time.RFC1123Z, time.RFC1123, "2006-01-02"} {
			if parsed, err := time.Parse(layout, raw); err == nil {
				return dateOnly(parsed)
			}
		}
	}
	return dateOnly(time.Now().UTC())
}

func dateOnly(t time.Time) time.Time {
	return t.UTC().Truncate(24 * time.Hour)
}
