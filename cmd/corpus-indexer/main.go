// Command corpus-indexer streams articles from a wiki dump, annotates them
// sentence by sentence and commits the accepted sentences to a search
// index. Runs are resumable through the title cache.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/cognicore/korpus/internal/logging"
	"github.com/cognicore/korpus/internal/stanza"
	"github.com/cognicore/korpus/pkg/korpus/annotate"
	"github.com/cognicore/korpus/pkg/korpus/cache"
	"github.com/cognicore/korpus/pkg/korpus/config"
	"github.com/cognicore/korpus/pkg/korpus/dedup"
	"github.com/cognicore/korpus/pkg/korpus/dump"
	"github.com/cognicore/korpus/pkg/korpus/index"
	"github.com/cognicore/korpus/pkg/korpus/index/elastic"
	"github.com/cognicore/korpus/pkg/korpus/index/sqlite"
	"github.com/cognicore/korpus/pkg/korpus/pipeline"
	"github.com/cognicore/korpus/pkg/korpus/quality"
	"github.com/cognicore/korpus/pkg/korpus/wikitext"
)

func main() {
	var (
		configPath    = flag.String("config", "", "YAML config file (optional)")
		dumpPath      = flag.String("dump", "", "Article dump path (.xml, .xml.bz2, .xml.gz, .xml.zst)")
		target        = flag.Int("target", 0, "Number of articles to index")
		threshold     = flag.Float64("threshold", 0, "Title similarity threshold (0, 1]")
		batchSize     = flag.Int("batch", 0, "Sentence documents per bulk commit")
		workers       = flag.Int("workers", 0, "Annotation worker count")
		chunkBudget   = flag.Int("chunk-budget", 0, "Character budget per annotation request")
		language      = flag.String("lang", "", "Article language (ISO 639-1)")
		sinkDSN       = flag.String("sink", "", "Sink DSN: http(s) URL or local database file")
		indexName     = flag.String("index", "", "Index name")
		cachePath     = flag.String("cache", "", "Title cache path")
		rulesFile     = flag.String("rules", "", "Sentence rule override file (optional)")
		forceRecreate = flag.Bool("force-recreate", false, "Delete and recreate the index at startup")
		clearCache    = flag.Bool("clear-cache", false, "Discard the title cache at startup")
		logLevel      = flag.String("log-level", "", "Log level: debug, info, warn, error")
		development   = flag.Bool("dev", false, "Console log output")
	)
	flag.Parse()

	cfg, err := loadConfig(*configPath, func(c *config.Config) {
		applyString(&c.Dump.Path, *dumpPath)
		applyInt(&c.Pipeline.Target, *target)
		applyFloat(&c.Pipeline.SimilarityThreshold, *threshold)
		applyInt(&c.Pipeline.BatchSize, *batchSize)
		applyInt(&c.Pipeline.Workers, *workers)
		applyInt(&c.Annotator.ChunkBudget, *chunkBudget)
		applyString(&c.Annotator.Language, *language)
		applyString(&c.Index.DSN, *sinkDSN)
		applyString(&c.Index.Name, *indexName)
		applyString(&c.Cache.Path, *cachePath)
		applyString(&c.Quality.RulesFile, *rulesFile)
		applyString(&c.Log.Level, *logLevel)
		c.Index.ForceRecreate = c.Index.ForceRecreate || *forceRecreate
		c.Cache.Clear = c.Cache.Clear || *clearCache
	})
	if err != nil {
		log.Fatal(err)
	}

	logger, err := logging.New(cfg.Log.Level, *development)
	if err != nil {
		log.Fatal("init logger: ", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		if errors.Is(err, pipeline.ErrNothingIndexed) {
			logger.Error("run indexed nothing", zap.Error(err))
			os.Exit(1)
		}
		logger.Fatal("run failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx := context.Background()

	sink, err := openSink(ctx, cfg)
	if err != nil {
		return err
	}
	defer sink.Close()

	if err := sink.Ping(ctx); err != nil {
		return err
	}

	if cfg.Index.ForceRecreate {
		logger.Warn("recreating index", zap.String("name", cfg.Index.Name))
		if err := sink.DeleteIndex(ctx); err != nil {
			return err
		}
	}
	if err := sink.EnsureIndex(ctx); err != nil {
		return err
	}

	if count, err := sink.Count(ctx); err == nil {
		logger.Info("sink ready", zap.String("dsn", cfg.Index.DSN), zap.Int64("documents", count))
	}

	titleCache := cache.Load(cfg.Cache.Path, logger)
	if cfg.Cache.Clear {
		logger.Warn("clearing title cache", zap.String("path", cfg.Cache.Path))
		if err := titleCache.Clear(); err != nil {
			return err
		}
	}

	existing, err := sink.Titles(ctx)
	if err != nil {
		return err
	}
	logger.Info("existing titles exported", zap.Int("count", len(existing)))

	rules := quality.DefaultConfig()
	if cfg.Quality.RulesFile != "" {
		rules, err = quality.LoadConfig(cfg.Quality.RulesFile)
		if err != nil {
			return err
		}
	}

	engine := &stanza.Client{
		BaseURL:  cfg.Annotator.BaseURL,
		Language: cfg.Annotator.Language,
		Timeout:  time.Duration(cfg.Annotator.TimeoutSeconds) * time.Second,
	}

	reader, err := dump.Open(cfg.Dump.Path)
	if err != nil {
		return err
	}
	defer reader.Close()

	runner := pipeline.New(
		reader,
		titleCache,
		dedup.New(cfg.Pipeline.SimilarityThreshold),
		quality.NewFilter(rules, cfg.Annotator.Language),
		annotate.NewChunker(engine, cfg.Annotator.ChunkBudget, logger),
		wikitext.Normalize,
		sink,
		existing,
		pipeline.Options{
			Target:          cfg.Pipeline.Target,
			Workers:         cfg.Pipeline.Workers,
			BatchSize:       cfg.Pipeline.BatchSize,
			CheckpointEvery: cfg.Pipeline.CheckpointEvery,
		},
		logger,
	)

	stats, err := runner.Run(ctx)
	logger.Info("summary",
		zap.String("run_id", stats.RunID),
		zap.Int("processed", stats.Processed),
		zap.Int("indexed", stats.Indexed),
		zap.Int("rejected", stats.Rejected),
		zap.Int("similar", stats.Similar),
		zap.Int("cache_hits", stats.CacheHits),
		zap.Int("errors", stats.Errors),
		zap.Int("malformed_skipped", stats.MalformedSkipped),
		zap.Int("sentences_indexed", stats.SentencesIndexed),
		zap.Int("sentences_filtered", stats.SentencesFiltered),
		zap.Int("sentence_failures", stats.SentenceFailures),
		zap.Duration("elapsed", stats.Elapsed))
	return err
}

// loadConfig resolves the file and environment configuration, then lets
// flag values override it before validation.
func loadConfig(path string, override func(*config.Config)) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	override(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func openSink(ctx context.Context, cfg *config.Config) (index.Index, error) {
	if cfg.ElasticDSN() {
		return elastic.New(cfg.Index.DSN, cfg.Index.Name, nil), nil
	}
	return sqlite.Open(ctx, cfg.Index.DSN)
}

func applyString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func applyInt(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}

func applyFloat(dst *float64, v float64) {
	if v > 0 {
		*dst = v
	}
}
