package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/signal-ingest/internal/config"
	"github.com/sells-group/signal-ingest/internal/embed"
	"github.com/sells-group/signal-ingest/internal/filter"
	"github.com/sells-group/signal-ingest/internal/limiter"
	"github.com/sells-group/signal-ingest/internal/pipeline"
	"github.com/sells-group/signal-ingest/internal/plugin"
	"github.com/sells-group/signal-ingest/internal/store"
	"github.com/sells-group/signal-ingest/pkg/phantombuster"
)

func initStore(ctx context.Context) (store.Store, error) {
	return store.Open(ctx, cfg.Store.Driver, cfg.Store.DatabaseURL, cfg.Store.SQLitePath)
}

// buildRegistry registers a factory for every enabled source in the config.
func buildRegistry(cfg *config.Config) (*plugin.Registry, error) {
	registry := plugin.NewRegistry()
	for _, src := range cfg.Sources {
		if !src.Enabled {
			continue
		}
		factory, err := pluginFactory(cfg, src)
		if err != nil {
			return nil, err
		}
		if err := registry.Register(src.Name, factory); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

func pluginFactory(cfg *config.Config, src config.SourceConfig) (plugin.Factory, error) {
	switch src.Plugin {
	case "news":
		return func() (plugin.Plugin, error) {
			timeout := time.Duration(cfg.News.FeedTimeoutSecs) * time.Second
			return plugin.NewNews(src.Name, cfg.News.Feeds, timeout), nil
		}, nil
	case "linkedin":
		return func() (plugin.Plugin, error) {
			if cfg.Phantombuster.Key == "" {
				return nil, eris.Errorf("source %s: phantombuster key not configured", src.Name)
			}
			client := phantombuster.NewClient(cfg.Phantombuster.Key,
				phantombuster.AgentIDs{
					Finder:   cfg.Phantombuster.FinderAgentID,
					Scraper:  cfg.Phantombuster.ScraperAgentID,
					Activity: cfg.Phantombuster.ActivityAgentID,
				},
				phantombuster.WithBaseURL(cfg.Phantombuster.BaseURL),
			)
			return plugin.NewLinkedIn(src.Name, client, cfg.Phantombuster.MaxPosts), nil
		}, nil
	default:
		return nil, eris.Errorf("source %s: unknown plugin type %q", src.Name, src.Plugin)
	}
}

// buildOrchestrator wires the limiters, the embedding-backed filter and the
// plugin registry into a ready orchestrator.
func buildOrchestrator(cfg *config.Config, st store.Store) (*pipeline.Orchestrator, error) {
	registry, err := buildRegistry(cfg)
	if err != nil {
		return nil, err
	}

	engine, err := embed.New(cfg.Embedding.Provider, cfg.Embedding.Host, cfg.Embedding.Key,
		cfg.Embedding.Model, cfg.Embedding.Dimension)
	if err != nil {
		return nil, eris.Wrap(err, "init embedding engine")
	}

	global := limiter.NewConcurrency(cfg.Limits.MaxConcurrentFetches, cfg.Limits.AcquireTimeout())
	throttle := limiter.NewSourceThrottle(
		limiter.Bucket{RatePerSec: cfg.Limits.DefaultBucket.RatePerSec, Burst: cfg.Limits.DefaultBucket.Burst},
		sourceBuckets(cfg.Limits.SourceBuckets),
		cfg.Limits.AcquireTimeout(),
	)
	filterEngine := filter.New(engine, cfg.Filter.Threshold, cfg.Filter.MaxEmbedChars, cfg.Filter.EmbedRetries)

	return pipeline.New(cfg, registry, global, throttle, filterEngine, st), nil
}

func sourceBuckets(buckets map[string]config.BucketConfig) map[string]limiter.Bucket {
	if len(buckets) == 0 {
		return nil
	}
	out := make(map[string]limiter.Bucket, len(buckets))
	for name, b := range buckets {
		out[name] = limiter.Bucket{RatePerSec: b.RatePerSec, Burst: b.Burst}
	}
	return out
}
