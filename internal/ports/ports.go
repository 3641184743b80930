package ports

import (
	"context"

	"github.com/isaac-evs/safeway-etl/internal/domain"
)

// ArticleSource pulls fresh, not-yet-seen articles from the configured feeds.
type ArticleSource interface {
	FetchAll(ctx context.Context) ([]*domain.Article, error)
}

// Classifier drives the inference backend for categorization and location
// extraction. Classify returns ok=false when the article should be discarded;
// a transport failure substitutes the default category instead of failing.
// ExtractLocation never fails in transport terms: a failed call yields a
// country-level fallback result, a sentinel answer yields LocationNone.
type Classifier interface {
	Classify(ctx context.Context, article *domain.Article) (domain.Category, bool)
	ExtractLocation(ctx context.Context, article *domain.Article) domain.LocationResult
}

// Geocoder resolves a free-text location into coordinates. A nil result with
// a nil error means no match (or retries exhausted): discard, not an error.
type Geocoder interface {
	Resolve(ctx context.Context, location string) (*domain.Coordinates, error)
}

// ArticleStore persists enriched articles with URL-based deduplication.
type ArticleStore interface {
	// InitSchema idempotently creates the table and its indexes.
	InitSchema(ctx context.Context) error
	// Insert stores the article. inserted=false with a nil error means the
	// URL already existed; that is a normal terminal outcome.
	Insert(ctx context.Context, article *domain.Article) (id int64, inserted bool, err error)
	// KnownURLs returns the set of already-persisted URLs, used once at
	// startup to seed the feed source's dedup set.
	KnownURLs(ctx context.Context) (map[string]struct{}, error)
	Close() error
}
