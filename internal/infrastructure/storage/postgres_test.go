package storage

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/isaac-evs/safeway-etl/internal/domain"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgresStore(db, nil), mock
}

func enrichedArticle() *domain.Article {
	return &domain.Article{
		Source:      "Portada Mural",
		Title:       "Incendio en Bosque de Chapultepec",
		Description: "Un incendio consumió varias hectáreas.",
		URL:         "http://x/1",
		PublishedAt: time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC),
		Category:    domain.CategoryHazard,
		Location:    "Bosque de Chapultepec, Ciudad de Mexico, Mexico",
		Coordinates: &domain.Coordinates{Longitude: -99.1, Latitude: 19.4},
	}
}

func TestInitSchema(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec("CREATE EXTENSION IF NOT EXISTS postgis").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := store.InitSchema(context.Background()); err != nil {
		t.Fatalf("InitSchema error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestInsertNewArticle(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	article := enrichedArticle()

	mock.ExpectQuery(`INSERT INTO news .+ ON CONFLICT \(url\) DO NOTHING RETURNING id`).
		WithArgs(
			article.Source,
			article.Title,
			article.Description,
			article.Coordinates.Longitude,
			article.Coordinates.Latitude,
			string(article.Category),
			article.PublishedAt,
			article.URL,
		).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(42)))

	id, inserted, err := store.Insert(context.Background(), article)
	if err != nil {
		t.Fatalf("Insert error: %v", err)
	}
	if !inserted {
		t.Fatal("expected inserted=true")
	}
	if id != 42 {
		t.Fatalf("expected id 42, got %d", id)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestInsertDuplicateURLIsNoOp(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	article := enrichedArticle()

	// ON CONFLICT DO NOTHING returns no row when the url already exists.
	mock.ExpectQuery(`INSERT INTO news`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	id, inserted, err := store.Insert(context.Background(), article)
	if err != nil {
		t.Fatalf("duplicate insert must not error: %v", err)
	}
	if inserted {
		t.Fatal("expected inserted=false for duplicate url")
	}
	if id != 0 {
		t.Fatalf("expected zero id, got %d", id)
	}
}

func TestInsertRejectsMissingCoordinates(t *testing.T) {
	t.Parallel()

	store, _ := newMockStore(t)
	article := enrichedArticle()
	article.Coordinates = nil

	if _, _, err := store.Insert(context.Background(), article); err == nil {
		t.Fatal("expected error for article without coordinates")
	}
}

func TestKnownURLs(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT url FROM news`).
		WillReturnRows(sqlmock.NewRows([]string{"url"}).
			AddRow("http://x/1").
			AddRow("http://x/2"))

	urls, err := store.KnownURLs(context.Background())
	if err != nil {
		t.Fatalf("KnownURLs error: %v", err)
	}
	if len(urls) != 2 {
		t.Fatalf("expected 2 urls, got %d", len(urls))
	}
	if _, ok := urls["http://x/1"]; !ok {
		t.Fatal("missing http://x/1")
	}
}
