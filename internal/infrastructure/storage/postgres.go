package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"

	"github.com/isaac-evs/safeway-etl/internal/domain"
	"github.com/isaac-evs/safeway-etl/internal/ports"
)

const schemaDDL = `
CREATE EXTENSION IF NOT EXISTS postgis;

CREATE TABLE IF NOT EXISTS news (
    id SERIAL PRIMARY KEY,
    news_source TEXT,
    title TEXT,
    description TEXT,
    coordinates GEOGRAPHY(POINT, 4326),
    type TEXT CHECK (type IN ('crime', 'infrastructure', 'hazard', 'social')),
    date DATE,
    url TEXT UNIQUE,
    processed_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS news_coordinates_idx ON news USING GIST(coordinates);
CREATE INDEX IF NOT EXISTS news_type_idx ON news(type);
CREATE INDEX IF NOT EXISTS news_date_idx ON news(date);
`

// PostgresStore persists enriched articles into a PostGIS-backed news table.
// Every operation acquires its own connection from the sql.DB pool, so the
// store is safe for concurrent use by the worker pool.
type PostgresStore struct {
	db      *sql.DB
	builder sq.StatementBuilderType
	logger  *slog.Logger
}

var _ ports.ArticleStore = (*PostgresStore)(nil)

// Open connects to Postgres and verifies the connection.
func Open(ctx context.Context, dsn string, logger *slog.Logger) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return NewPostgresStore(db, logger), nil
}

// NewPostgresStore wires an existing sql.DB, used directly by tests.
func NewPostgresStore(db *sql.DB, logger *slog.Logger) *PostgresStore {
	return &PostgresStore{
		db:      db,
		builder: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
		logger:  logger,
	}
}

// InitSchema idempotently creates the news table, the PostGIS extension and
// the spatial/category/date indexes. Failure here is fatal at startup.
func (s *PostgresStore) InitSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("initialize schema: %w", err)
	}
	if s.logger != nil {
		s.logger.Info("database schema initialized")
	}
	return nil
}

// Insert stores a fully-enriched article. A URL conflict is a normal
// terminal outcome reported as inserted=false, not an error.
func (s *PostgresStore) Insert(ctx context.Context, article *domain.Article) (int64, bool, error) {
	if article.Coordinates == nil {
		return 0, false, fmt.Errorf("article %q has no coordinates", article.Title)
	}

	query, args, err := s.builder.
		Insert("news").
		Columns("news_source", "title", "description", "coordinates", "type", "date", "url").
		Values(
			article.Source,
			article.Title,
			article.Description,
			sq.Expr("ST_SetSRID(ST_MakePoint(?, ?), 4326)", article.Coordinates.Longitude, article.Coordinates.Latitude),
			string(article.Category),
			article.PublishedAt,
			article.URL,
		).
		Suffix("ON CONFLICT (url) DO NOTHING RETURNING id").
		ToSql()
	if err != nil {
		return 0, false, fmt.Errorf("build insert: %w", err)
	}

	var id int64
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		// ON CONFLICT DO NOTHING returns no row for a duplicate URL.
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("insert article: %w", err)
	}
	return id, true, nil
}

// KnownURLs returns every persisted URL, used once at startup to seed the
// feed source's dedup set.
func (s *PostgresStore) KnownURLs(ctx context.Context) (map[string]struct{}, error) {
	query, args, err := s.builder.Select("url").From("news").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query urls: %w", err)
	}
	defer rows.Close()

	urls := map[string]struct{}{}
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("scan url: %w", err)
		}
		urls[u] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return urls, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
