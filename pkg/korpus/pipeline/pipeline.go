// Package pipeline orchestrates the full ingestion flow:
// dump record → cache/dedup gate → normalize → annotate → quality filter
// → batched commit to the sentence index.
package pipeline

import (
	"context"
	"errors"
	"io"
	"math/rand"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cognicore/korpus/pkg/korpus/annotate"
	"github.com/cognicore/korpus/pkg/korpus/cache"
	"github.com/cognicore/korpus/pkg/korpus/dedup"
	"github.com/cognicore/korpus/pkg/korpus/dump"
	"github.com/cognicore/korpus/pkg/korpus/index"
	"github.com/cognicore/korpus/pkg/korpus/quality"
)

// ErrNothingIndexed is returned when a run finishes without committing a
// single article.
var ErrNothingIndexed = errors.New("pipeline: no articles indexed")

// Source feeds article records to the runner. *dump.Reader satisfies it.
type Source interface {
	Next() (dump.Record, error)
	Skipped() int
}

// Options tunes a run. Zero values fall back to defaults.
type Options struct {
	// Target is the number of newly indexed articles after which the
	// runner stops pulling records. Required, must be positive.
	Target int
	// Workers bounds the annotation pool. Default 2.
	Workers int
	// BatchSize is the number of sentence documents per bulk commit.
	// Default 256.
	BatchSize int
	// CheckpointEvery persists the cache after that many recorded
	// outcomes. Default 50.
	CheckpointEvery int
}

func (o *Options) applyDefaults() {
	if o.Workers <= 0 {
		o.Workers = 2
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 256
	}
	if o.CheckpointEvery <= 0 {
		o.CheckpointEvery = 50
	}
}

// Stats summarizes a finished run.
type Stats struct {
	RunID             string
	Processed         int
	Indexed           int
	Rejected          int
	Similar           int
	CacheHits         int
	Errors            int
	MalformedSkipped  int
	SentencesIndexed  int
	SentencesFiltered int
	SentenceFailures  int
	Elapsed           time.Duration
}

// Runner drives one ingestion run. All cache and batch mutations happen on
// the goroutine executing Run; workers only transform text into candidate
// documents.
type Runner struct {
	source    Source
	cache     *cache.Cache
	dedup     *dedup.Engine
	filter    *quality.Filter
	annotator annotate.Engine
	normalize func(string) string
	sink      index.Index
	existing  map[string]struct{}
	opts      Options
	log       *zap.Logger

	inFlight  map[string]struct{}
	batch     []index.SentenceDocument
	pending   map[string]int // title → docs in open batch
	order     []string       // titles in batch order
	decisions int            // outcomes recorded this run
	stats     Stats
}

// New assembles a runner. existing holds the titles already present in the
// sink, exported once at startup.
func New(
	source Source,
	titleCache *cache.Cache,
	engine *dedup.Engine,
	filter *quality.Filter,
	annotator annotate.Engine,
	normalize func(string) string,
	sink index.Index,
	existing map[string]struct{},
	opts Options,
	logger *zap.Logger,
) *Runner {
	opts.applyDefaults()
	if normalize == nil {
		normalize = func(s string) string { return s }
	}
	if existing == nil {
		existing = map[string]struct{}{}
	}
	return &Runner{
		source:    source,
		cache:     titleCache,
		dedup:     engine,
		filter:    filter,
		annotator: annotator,
		normalize: normalize,
		sink:      sink,
		existing:  existing,
		opts:      opts,
		log:       logger,
		inFlight:  make(map[string]struct{}),
		pending:   make(map[string]int),
	}
}

type job struct {
	title string
	body  string
}

type result struct {
	title    string
	docs     []index.SentenceDocument
	filtered int
	err      error
}

// Run pulls records until the indexed-article target is met or the source
// is exhausted, then drains in-flight work and commits the final batch.
// Zero indexed articles is reported as ErrNothingIndexed.
func (r *Runner) Run(ctx context.Context) (Stats, error) {
	start := time.Now()
	entropy := ulid.Monotonic(rand.New(rand.NewSource(start.UnixNano())), 0)
	r.stats.RunID = ulid.MustNew(ulid.Timestamp(start), entropy).String()

	r.log.Info("run starting",
		zap.String("run_id", r.stats.RunID),
		zap.Int("target", r.opts.Target),
		zap.Int("workers", r.opts.Workers),
		zap.Int("batch_size", r.opts.BatchSize))

	jobs := make(chan job)
	// Buffered so a slow commit does not stall workers that are done.
	results := make(chan result, r.opts.Workers)

	g, workerCtx := errgroup.WithContext(ctx)
	for i := 0; i < r.opts.Workers; i++ {
		g.Go(func() error {
			for j := range jobs {
				select {
				case results <- r.process(workerCtx, j):
				case <-workerCtx.Done():
					return workerCtx.Err()
				}
			}
			return nil
		})
	}

	outstanding := 0
	var runErr error

pull:
	for r.stats.Indexed < r.opts.Target {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}

		rec, err := r.source.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			runErr = err
			break
		}
		if outcome, ok := r.cache.Lookup(rec.Title); ok {
			r.stats.CacheHits++
			r.log.Debug("cache hit", zap.String("title", rec.Title), zap.String("outcome", string(outcome)))
			continue
		}

		if dup, against := r.dedup.IsDuplicate(rec.Title, r.inFlight, r.existing); dup {
			r.recordOutcome(rec.Title, cache.Similar)
			r.log.Info("similar title skipped",
				zap.String("title", rec.Title),
				zap.String("against", against))
			continue
		}
		r.inFlight[rec.Title] = struct{}{}
		// Processed counts titles that reach the annotation stage, not
		// cache hits or duplicates.
		r.stats.Processed++

		j := job{title: rec.Title, body: rec.RawBody}
		for {
			select {
			case jobs <- j:
				outstanding++
			case res := <-results:
				outstanding--
				if err := r.handleResult(ctx, res); err != nil {
					runErr = err
					break pull
				}
				continue
			case <-ctx.Done():
				runErr = ctx.Err()
				break pull
			}
			break
		}
	}

	close(jobs)
drain:
	for outstanding > 0 {
		select {
		case res := <-results:
			outstanding--
			if err := r.handleResult(ctx, res); err != nil && runErr == nil {
				runErr = err
			}
		case <-ctx.Done():
			// Workers unwind through the same cancellation.
			break drain
		}
	}
	if err := g.Wait(); err != nil && runErr == nil {
		runErr = err
	}

	if runErr == nil {
		runErr = r.commit(ctx)
	} else if err := r.commit(ctx); err != nil {
		r.log.Warn("final commit failed", zap.Error(err))
	}

	if err := r.cache.Checkpoint(); err != nil {
		r.log.Warn("final checkpoint failed", zap.Error(err))
	}

	r.stats.MalformedSkipped = r.source.Skipped()
	r.stats.Elapsed = time.Since(start)

	if runErr == nil && r.stats.Indexed == 0 {
		runErr = ErrNothingIndexed
	}

	r.log.Info("run finished",
		zap.String("run_id", r.stats.RunID),
		zap.Int("processed", r.stats.Processed),
		zap.Int("indexed", r.stats.Indexed),
		zap.Int("rejected", r.stats.Rejected),
		zap.Int("similar", r.stats.Similar),
		zap.Int("cache_hits", r.stats.CacheHits),
		zap.Int("errors", r.stats.Errors),
		zap.Int("sentences_indexed", r.stats.SentencesIndexed),
		zap.Duration("elapsed", r.stats.Elapsed))

	return r.stats, runErr
}

// process runs the per-title stage on a worker: normalize, annotate in
// chunks, filter sentences, assemble documents. It touches no shared state.
func (r *Runner) process(ctx context.Context, j job) result {
	text := r.normalize(j.body)

	sentences, err := r.annotator.Annotate(ctx, text)
	if err != nil {
		return result{title: j.title, err: err}
	}

	res := result{title: j.title}
	for _, sent := range sentences {
		if !r.filter.IsQuality(sent.Text()) {
			res.filtered++
			continue
		}
		res.docs = append(res.docs, index.NewSentenceDocument(j.title, len(res.docs), sent))
	}
	return res
}

// handleResult folds a worker result into the shared state: outcome for
// empty or failed titles, batch growth and commits for accepted documents.
func (r *Runner) handleResult(ctx context.Context, res result) error {
	r.stats.SentencesFiltered += res.filtered

	if res.err != nil {
		delete(r.inFlight, res.title)
		r.stats.Errors++
		r.recordOutcome(res.title, cache.Errored)
		r.log.Warn("article failed", zap.String("title", res.title), zap.Error(res.err))
		return nil
	}
	if len(res.docs) == 0 {
		delete(r.inFlight, res.title)
		r.recordOutcome(res.title, cache.Rejected)
		r.log.Debug("article rejected", zap.String("title", res.title))
		return nil
	}

	r.batch = append(r.batch, res.docs...)
	r.pending[res.title] = len(res.docs)
	r.order = append(r.order, res.title)

	if len(r.batch) >= r.opts.BatchSize {
		return r.commit(ctx)
	}
	return nil
}

// commit flushes the open batch and records a terminal outcome for every
// title it contained. A title whose documents all failed at the sink is
// Errored; one or more committed documents make it Indexed.
func (r *Runner) commit(ctx context.Context) error {
	if len(r.batch) == 0 {
		return nil
	}

	bulk, err := r.sink.BulkUpsert(ctx, r.batch)
	if err != nil {
		// The sink never judged these documents, so the titles stay
		// undecided and a resumed run retries them from scratch.
		for _, title := range r.order {
			delete(r.inFlight, title)
		}
		r.resetBatch()
		return err
	}

	failedByTitle := make(map[string]int)
	if len(bulk.Failed) > 0 {
		byID := make(map[string]string, len(r.batch))
		for _, doc := range r.batch {
			byID[doc.ID] = doc.Title
		}
		for _, item := range bulk.Failed {
			failedByTitle[byID[item.ID]]++
			r.log.Warn("document rejected by sink",
				zap.String("id", item.ID),
				zap.String("reason", item.Reason))
		}
	}

	for _, title := range r.order {
		delete(r.inFlight, title)
		failed := failedByTitle[title]
		total := r.pending[title]
		if failed >= total {
			r.stats.Errors++
			r.recordOutcome(title, cache.Errored)
			continue
		}
		// Committed titles keep guarding later near-duplicates.
		r.existing[title] = struct{}{}
		r.stats.Indexed++
		r.stats.SentencesIndexed += total - failed
		r.recordOutcome(title, cache.Indexed)
	}
	r.stats.SentenceFailures += len(bulk.Failed)

	r.log.Info("batch committed",
		zap.Int("docs", bulk.Indexed),
		zap.Int("failed", len(bulk.Failed)),
		zap.Int("indexed_total", r.stats.Indexed))

	r.resetBatch()
	return nil
}

func (r *Runner) resetBatch() {
	r.batch = r.batch[:0]
	r.pending = make(map[string]int)
	r.order = r.order[:0]
}

// recordOutcome writes a terminal decision to the cache and checkpoints on
// the configured period.
func (r *Runner) recordOutcome(title string, outcome cache.Outcome) {
	if outcome == cache.Similar {
		r.stats.Similar++
	}
	if outcome == cache.Rejected {
		r.stats.Rejected++
	}
	r.cache.Record(title, outcome)

	r.decisions++
	if r.decisions%r.opts.CheckpointEvery == 0 {
		if err := r.cache.Checkpoint(); err != nil {
			r.log.Warn("checkpoint failed", zap.Error(err))
		}
	}
}
