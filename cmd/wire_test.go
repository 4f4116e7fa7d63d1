package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/signal-ingest/internal/config"
)

func wireConfig() *config.Config {
	return &config.Config{
		Limits: config.LimitsConfig{
			MaxConcurrentFetches: 3,
			AcquireTimeoutSecs:   30,
			FetchTimeoutSecs:     120,
			DefaultBucket:        config.BucketConfig{RatePerSec: 1, Burst: 3},
			SourceBuckets: map[string]config.BucketConfig{
				"linkedin": {RatePerSec: 0.5, Burst: 1},
			},
		},
		Filter:    config.FilterConfig{Threshold: 0.35, MaxEmbedChars: 2000, EmbedRetries: 3},
		Embedding: config.EmbeddingConfig{Provider: "hash", Dimension: 64},
		News:      config.NewsConfig{Feeds: []string{"https://news.example.com/rss"}, FeedTimeoutSecs: 30},
		Phantombuster: config.PhantombusterConfig{
			Key:      "pb-key",
			MaxPosts: 3,
		},
		Sources: []config.SourceConfig{
			{Name: "news", Plugin: "news", Enabled: true},
			{Name: "linkedin", Plugin: "linkedin", Enabled: true},
			{Name: "disabled-feed", Plugin: "news", Enabled: false},
		},
	}
}

func TestBuildRegistry(t *testing.T) {
	registry, err := buildRegistry(wireConfig())
	require.NoError(t, err)

	assert.Equal(t, []string{"linkedin", "news"}, registry.List())

	plugins, err := registry.Resolve([]string{"news", "linkedin"})
	require.NoError(t, err)
	require.Len(t, plugins, 2)
	assert.Equal(t, "news", plugins[0].Name())
	assert.Equal(t, "linkedin", plugins[1].Name())
}

func TestBuildRegistry_UnknownPluginType(t *testing.T) {
	cfg := wireConfig()
	cfg.Sources = append(cfg.Sources, config.SourceConfig{Name: "blog", Plugin: "blog", Enabled: true})

	_, err := buildRegistry(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown plugin type")
}

func TestBuildRegistry_MissingPhantombusterKey(t *testing.T) {
	cfg := wireConfig()
	cfg.Phantombuster.Key = ""

	registry, err := buildRegistry(cfg)
	require.NoError(t, err)

	_, err = registry.Resolve([]string{"linkedin"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "phantombuster key")
}

func TestBuildOrchestrator(t *testing.T) {
	orch, err := buildOrchestrator(wireConfig(), &nopStore{})
	require.NoError(t, err)
	assert.NotNil(t, orch.Tracker())
}

func TestBuildOrchestrator_UnknownEmbeddingProvider(t *testing.T) {
	cfg := wireConfig()
	cfg.Embedding.Provider = "quantum"

	_, err := buildOrchestrator(cfg, &nopStore{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown provider")
}

func TestFormatSources(t *testing.T) {
	var buf bytes.Buffer
	formatSources(&buf, wireConfig().Sources)

	output := buf.String()
	assert.Contains(t, output, "NAME")
	assert.Contains(t, output, "news")
	assert.Contains(t, output, "linkedin")
	assert.Contains(t, output, "false")
}
