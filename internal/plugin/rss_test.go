package plugin

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/signal-ingest/internal/model"
)

const rssBody = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Trade News</title>
    <item>
      <title>Acme raises Series B</title>
      <link>https://news.example.com/acme-series-b</link>
      <description>&lt;p&gt;Acme Corp closed a &amp;euro;30M round.&lt;/p&gt;</description>
      <pubDate>Mon, 13 Jul 2026 10:30:00 +0000</pubDate>
    </item>
    <item>
      <title>Old story</title>
      <link>https://news.example.com/old</link>
      <description>Stale content</description>
      <pubDate>Mon, 06 Jan 2020 08:00:00 +0000</pubDate>
    </item>
  </channel>
</rss>`

const atomBody = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Security Feed</title>
  <entry>
    <title>Vendor breach disclosed</title>
    <link href="https://sec.example.com/breach"/>
    <summary>Details of the incident.</summary>
    <updated>2026-07-14T09:00:00Z</updated>
  </entry>
</feed>`

func newsTarget() model.CompanyTarget {
	return model.CompanyTarget{Name: "Acme Corp"}
}

func TestNewsPlugin_FetchRSS(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Write([]byte(rssBody))
	}))
	defer srv.Close()

	p := NewNews("news", []string{srv.URL}, 0)
	records, err := p.Fetch(context.Background(), newsTarget(), nil)
	require.NoError(t, err)
	require.Len(t, records, 2)

	first := records[0]
	assert.Equal(t, "news", first.Source)
	assert.Equal(t, "Acme raises Series B", first.Title)
	assert.Equal(t, "Acme Corp closed a €30M round.", first.Body)
	assert.Equal(t, "https://news.example.com/acme-series-b", first.URL)
	require.NotNil(t, first.PublishedAt)
	assert.Equal(t, 2026, first.PublishedAt.Year())
	assert.Equal(t, srv.URL, first.Metadata["feed_url"])
}

func TestNewsPlugin_FetchAtom(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(atomBody))
	}))
	defer srv.Close()

	p := NewNews("news", []string{srv.URL}, 0)
	records, err := p.Fetch(context.Background(), newsTarget(), nil)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Vendor breach disclosed", records[0].Title)
	assert.Equal(t, "https://sec.example.com/breach", records[0].URL)
}

func TestNewsPlugin_SinceCutoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(rssBody))
	}))
	defer srv.Close()

	since := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	p := NewNews("news", []string{srv.URL}, 0)
	records, err := p.Fetch(context.Background(), newsTarget(), &since)
	require.NoError(t, err)

	require.Len(t, records, 1)
	assert.Equal(t, "Acme raises Series B", records[0].Title)
}

func TestNewsPlugin_OneBrokenFeedTolerated(t *testing.T) {
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(atomBody))
	}))
	defer good.Close()
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer bad.Close()

	p := NewNews("news", []string{bad.URL, good.URL}, 0)
	records, err := p.Fetch(context.Background(), newsTarget(), nil)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestNewsPlugin_AllFeedsBroken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p := NewNews("news", []string{srv.URL}, 0)
	_, err := p.Fetch(context.Background(), newsTarget(), nil)
	require.Error(t, err)
	assert.True(t, IsUnavailable(err))
}

func TestNewsPlugin_QuotaStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := NewNews("news", []string{srv.URL}, 0)
	_, err := p.Fetch(context.Background(), newsTarget(), nil)
	require.Error(t, err)
	assert.True(t, IsQuotaExceeded(err))
}

func TestNewsPlugin_MalformedFeed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("this is not xml at all {"))
	}))
	defer srv.Close()

	p := NewNews("news", []string{srv.URL}, 0)
	_, err := p.Fetch(context.Background(), newsTarget(), nil)
	require.Error(t, err)
	assert.True(t, IsMalformed(err))
}

func TestNewsPlugin_EmptyFeedIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`<?xml version="1.0"?><rss version="2.0"><channel></channel></rss>`))
	}))
	defer srv.Close()

	p := NewNews("news", []string{srv.URL}, 0)
	records, err := p.Fetch(context.Background(), newsTarget(), nil)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestParseFeedTime(t *testing.T) {
	for _, s := range []string{
		"Mon, 13 Jul 2026 10:30:00 +0000",
		"Mon, 13 Jul 2026 10:30:00 GMT",
		"2026-07-13T10:30:00Z",
	} {
		require.NotNil(t, parseFeedTime(s), "layout %q", s)
	}
	assert.Nil(t, parseFeedTime(""))
	assert.Nil(t, parseFeedTime("yesterday"))
}
