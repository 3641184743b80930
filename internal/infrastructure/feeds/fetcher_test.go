package feeds

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/isaac-evs/safeway-etl/internal/config"
)

const sampleRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Portada Mural</title>
    <item>
      <title>Incendio en Bosque de Chapultepec</title>
      <link>http://x/1</link>
      <description>Un incendio consumió varias hectáreas del bosque.</description>
      <pubDate>Mon, 10 Mar 2025 12:30:00 -0600</pubDate>
    </item>
    <item>
      <title>Sin descripción</title>
      <link>http://x/2</link>
    </item>
    <item>
      <link>http://x/3</link>
      <description>Entrada sin título.</description>
    </item>
    <item>
      <title>Nota sin fecha</title>
      <link>http://x/4</link>
      <description>Fecha ausente, se usa la fecha actual.</description>
    </item>
  </channel>
</rss>`

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newTestFetcher(t *testing.T, handler http.HandlerFunc) (*Fetcher, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	fetcher := NewFetcher(config.FeedsConfig{
		URLs:           []string{server.URL + "/rss/portada.xml"},
		MaxRetries:     3,
		RetryDelay:     time.Millisecond,
		RequestTimeout: 5 * time.Second,
	}, server.Client(), discardLogger())
	return fetcher, server
}

func TestFetchAllNormalizesAndDrops(t *testing.T) {
	t.Parallel()

	fetcher, _ := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(sampleRSS))
	})

	articles, err := fetcher.FetchAll(context.Background())
	if err != nil {
		t.Fatalf("FetchAll error: %v", err)
	}

	// Entries missing a title or a description never reach the queue.
	if len(articles) != 2 {
		t.Fatalf("expected 2 articles, got %d", len(articles))
	}

	first := articles[0]
	if first.URL != "http://x/1" {
		t.Fatalf("unexpected url: %s", first.URL)
	}
	if first.Source != "Portada Mural" {
		t.Fatalf("unexpected source: %s", first.Source)
	}
	if first.Title != "Incendio en Bosque de Chapultepec" {
		t.Fatalf("unexpected title: %s", first.Title)
	}
	wantDay := time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC)
	if !first.PublishedAt.Equal(wantDay) {
		t.Fatalf("unexpected date: %v", first.PublishedAt)
	}

	// Date-less entry defaults to today.
	today := time.Now().UTC().Truncate(24 * time.Hour)
	if !articles[1].PublishedAt.Equal(today) {
		t.Fatalf("expected today's date, got %v", articles[1].PublishedAt)
	}
}

func TestFetchAllFiltersSeenURLs(t *testing.T) {
	t.Parallel()

	fetcher, _ := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(sampleRSS))
	})

	fetcher.Seed(map[string]struct{}{"http://x/1": {}})

	articles, err := fetcher.FetchAll(context.Background())
	if err != nil {
		t.Fatalf("FetchAll error: %v", err)
	}
	if len(articles) != 1 {
		t.Fatalf("expected 1 article after seed filter, got %d", len(articles))
	}
	if articles[0].URL != "http://x/4" {
		t.Fatalf("unexpected url: %s", articles[0].URL)
	}

	// The second poll sees nothing new within the same process run.
	again, err := fetcher.FetchAll(context.Background())
	if err != nil {
		t.Fatalf("FetchAll error: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("expected 0 articles on refetch, got %d", len(again))
	}
}

func TestFetchAllRetriesThenGivesUp(t *testing.T) {
	t.Parallel()

	var requests atomic.Int32
	fetcher, _ := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		http.Error(w, "forbidden", http.StatusForbidden)
	})

	articles, err := fetcher.FetchAll(context.Background())
	if err != nil {
		t.Fatalf("a failing feed must not be fatal: %v", err)
	}
	if len(articles) != 0 {
		t.Fatalf("expected 0 articles, got %d", len(articles))
	}
	if got := requests.Load(); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}

func TestFetchAllMalformedFeedYieldsNothing(t *testing.T) {
	t.Parallel()

	fetcher, _ := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("this is not xml at all"))
	})

	articles, err := fetcher.FetchAll(context.Background())
	if err != nil {
		t.Fatalf("malformed feed must not be fatal: %v", err)
	}
	if len(articles) != 0 {
		t.Fatalf("expected 0 articles, got %d", len(articles))
	}
}

func TestFetchSendsBrowserHeaders(t *testing.T) {
	t.Parallel()

	var ua, referer string
	fetcher, _ := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		ua = r.Header.Get("User-Agent")
		referer = r.Header.Get("Referer")
		_, _ = w.Write([]byte(sampleRSS))
	})

	if _, err := fetcher.FetchAll(context.Background()); err != nil {
		t.Fatalf("FetchAll error: %v", err)
	}
	if ua != userAgent {
		t.Fatalf("unexpected user agent: %s", ua)
	}
	if referer == "" {
		t.Fatal("expected a referer header")
	}
}
