package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/isaac-evs/safeway-etl/internal/domain"
	"github.com/isaac-evs/safeway-etl/internal/ports"
)

const (
	defaultWorkers   = 3
	defaultQueueSize = 256
)

// Deps wires the pipeline's collaborators.
type Deps struct {
	Source     ports.ArticleSource
	Classifier ports.Classifier
	Geocoder   ports.Geocoder
	Store      ports.ArticleStore
	Logger     *slog.Logger
}

// Options size the worker pool, the queue and the polling cadence.
type Options struct {
	Workers      int
	QueueSize    int
	PollInterval time.Duration
}

// Pipeline coordinates the producer and a fixed pool of workers through a
// buffered FIFO queue. Each dequeued article runs the four-stage sequence
// classify, extract location, geocode, persist; any stage may discard.
//
// A Pipeline instance supports a single RunContinuous or RunOnce call.
type Pipeline struct {
	source     ports.ArticleSource
	classifier ports.Classifier
	geocoder   ports.Geocoder
	store      ports.ArticleStore
	logger     *slog.Logger

	workers      int
	pollInterval time.Duration

	queue chan *domain.Article
	// pending counts enqueued-but-unfinished articles, letting the one-shot
	// mode wait for a full drain before closing the queue.
	pending sync.WaitGroup
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps Deps, opts Options) *Pipeline {
	workers := opts.Workers
	if workers < 1 {
		workers = defaultWorkers
	}
	queueSize := opts.QueueSize
	if queueSize < 1 {
		queueSize = defaultQueueSize
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	return &Pipeline{
		source:       deps.Source,
		classifier:   deps.Classifier,
		geocoder:     deps.Geocoder,
		store:        deps.Store,
		logger:       deps.Logger,
		workers:      workers,
		pollInterval: opts.PollInterval,
		queue:        make(chan *domain.Article, queueSize),
	}
}

// RunContinuous polls the source on the configured interval until ctx is
// cancelled, feeding the worker pool as new articles arrive. Cancellation
// closes the queue and waits for the workers to finish their in-flight
// articles; the caller bounds that wait with its own grace period.
func (p *Pipeline) RunContinuous(ctx context.Context) error {
	done := p.startWorkers(ctx)

	for {
		p.cycle(ctx)

		select {
		case <-time.After(p.pollInterval):
		case <-ctx.Done():
			close(p.queue)
			<-done
			return nil
		}
	}
}

// RunOnce performs a single fetch, waits for every enqueued article to be
// fully processed (persisted or discarded) and returns. Suited to
// externally-scheduled invocation.
func (p *Pipeline) RunOnce(ctx context.Context) error {
	done := p.startWorkers(ctx)

	enqueued, err := p.cycle(ctx)

	p.pending.Wait()
	close(p.queue)
	<-done

	if err != nil {
		return fmt.Errorf("fetch articles: %w", err)
	}
	p.logger.Info("batch run complete", "enqueued", enqueued)
	return nil
}

// cycle runs one fetch-filter-enqueue pass. Fetch failures are logged and
// yield an empty batch in continuous mode; RunOnce surfaces them.
func (p *Pipeline) cycle(ctx context.Context) (int, error) {
	articles, err := p.source.FetchAll(ctx)
	if err != nil {
		p.logger.Error("polling cycle failed", "error", err)
		return 0, err
	}

	enqueued := 0
	for _, article := range articles {
		p.pending.Add(1)
		select {
		case p.queue <- article:
			enqueued++
		case <-ctx.Done():
			p.pending.Done()
			p.logger.Info("enqueue aborted by shutdown", "queued", enqueued, "dropped", len(articles)-enqueued)
			return enqueued, nil
		}
	}
	if enqueued > 0 {
		p.logger.Info("queued new articles", "count", enqueued)
	}
	return enqueued, nil
}

// startWorkers launches the fixed pool and returns a channel closed once
// every worker has exited (the queue was closed and drained).
func (p *Pipeline) startWorkers(ctx context.Context) <-chan struct{} {
	var wg sync.WaitGroup
	wg.Add(p.workers)
	for i := 0; i < p.workers; i++ {
		logger := p.logger.With("worker", i)
		go func() {
			defer wg.Done()
			for article := range p.queue {
				p.process(ctx, article, logger)
				p.pending.Done()
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	return done
}

// process drives one article through the stage sequence. Every exit path is
// terminal: persisted, duplicate, or discarded. A panic in a stage is caught
// and treated as a discard; it must never take down the worker.
func (p *Pipeline) process(ctx context.Context, article *domain.Article, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("article processing panicked", "title", article.Title, "panic", r)
		}
	}()

	category, ok := p.classifier.Classify(ctx, article)
	if !ok {
		logger.Info("article discarded at classification", "title", article.Title)
		return
	}
	article.Category = category

	result := p.classifier.ExtractLocation(ctx, article)
	if result.Kind == domain.LocationNone {
		logger.Info("article discarded, no location extracted", "title", article.Title)
		return
	}
	article.Location = result.Value

	coords, err := p.geocoder.Resolve(ctx, article.Location)
	if err != nil {
		logger.Warn("article discarded, geocoding failed",
			"title", article.Title, "location", article.Location, "error", err)
		return
	}
	if coords == nil {
		logger.Info("article discarded, no geocoding match",
			"title", article.Title, "location", article.Location)
		return
	}
	article.Coordinates = coords

	id, inserted, err := p.store.Insert(ctx, article)
	if err != nil {
		logger.Error("article discarded, persistence failed", "title", article.Title, "error", err)
		return
	}
	if !inserted {
		logger.Info("article already stored", "title", article.Title, "url", article.URL)
		return
	}
	logger.Info("article processed", "id", id, "title", article.Title, "category", article.Category)
}
