package plugin

import (
	"context"
	"encoding/xml"
	"html"
	"io"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/sells-group/signal-ingest/internal/model"
)

// tagPattern strips HTML markup from feed summaries.
var tagPattern = regexp.MustCompile(`<[^<]+?>`)

// rssFeed covers the RSS 2.0 and Atom shapes we care about in one struct;
// unknown elements are ignored by the decoder.
type rssFeed struct {
	XMLName xml.Name
	Channel struct {
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
	Entries []atomEntry `xml:"entry"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	Description string `xml:"description"`
	PubDate     string `xml:"pubDate"`
}

type atomEntry struct {
	Title   string `xml:"title"`
	Summary string `xml:"summary"`
	Updated string `xml:"updated"`
	Link    struct {
		Href string `xml:"href,attr"`
	} `xml:"link"`
}

// NewsPlugin aggregates articles from configured RSS/Atom feeds. Feeds are
// fetched concurrently; one broken feed only fails the fetch when every
// feed is broken.
type NewsPlugin struct {
	name    string
	feeds   []string
	http    *http.Client
	timeout time.Duration
}

// NewNews creates the plugin for the given feed URLs.
func NewNews(name string, feeds []string, timeout time.Duration) *NewsPlugin {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &NewsPlugin{
		name:    name,
		feeds:   feeds,
		http:    &http.Client{Timeout: timeout},
		timeout: timeout,
	}
}

// Name implements Plugin.
func (p *NewsPlugin) Name() string {
	return p.name
}

// Fetch downloads and parses all configured feeds.
func (p *NewsPlugin) Fetch(ctx context.Context, target model.CompanyTarget, since *time.Time) ([]model.RawRecord, error) {
	if err := ValidateFetchInput(target, since); err != nil {
		return nil, err
	}
	if len(p.feeds) == 0 {
		return nil, nil
	}
	log := zap.L().With(zap.String("plugin", p.name))

	type feedResult struct {
		records []model.RawRecord
		err     error
	}
	results := make([]feedResult, len(p.feeds))

	var wg sync.WaitGroup
	for i, feedURL := range p.feeds {
		wg.Add(1)
		go func(i int, feedURL string) {
			defer wg.Done()
			records, err := p.fetchFeed(ctx, feedURL, since)
			results[i] = feedResult{records: records, err: err}
			if err != nil {
				log.Warn("news: feed failed", zap.String("feed", feedURL), zap.Error(err))
			}
		}(i, feedURL)
	}
	wg.Wait()

	var all []model.RawRecord
	var failures int
	var lastErr error
	for _, res := range results {
		if res.err != nil {
			failures++
			lastErr = res.err
			continue
		}
		all = append(all, res.records...)
	}
	if failures == len(p.feeds) {
		return nil, lastErr
	}

	log.Info("news: fetch complete",
		zap.Int("feeds", len(p.feeds)),
		zap.Int("failed_feeds", failures),
		zap.Int("records", len(all)),
	)
	return all, nil
}

func (p *NewsPlugin) fetchFeed(ctx context.Context, feedURL string, since *time.Time) ([]model.RawRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, NewUnavailable(p.name, eris.Wrap(err, "news: create request"))
	}

	resp, err := p.http.Do(req)
	if err != nil {
		return nil, NewUnavailable(p.name, eris.Wrap(err, "news: fetch feed"))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, NewQuotaExceeded(p.name, eris.Errorf("news: feed %s returned 429", feedURL))
	case resp.StatusCode != http.StatusOK:
		return nil, NewUnavailable(p.name, eris.Errorf("news: feed %s status %d", feedURL, resp.StatusCode))
	}

	feed, err := decodeFeed(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, NewMalformed(p.name, err)
	}

	return p.feedRecords(feed, feedURL, since), nil
}

// decodeFeed parses RSS 2.0 or Atom, honoring declared charsets.
func decodeFeed(r io.Reader) (*rssFeed, error) {
	decoder := xml.NewDecoder(r)
	decoder.CharsetReader = func(charset string, input io.Reader) (io.Reader, error) {
		enc, err := htmlindex.Get(charset)
		if err != nil {
			return nil, eris.Wrapf(err, "news: unsupported charset %q", charset)
		}
		return enc.NewDecoder().Reader(input), nil
	}

	var feed rssFeed
	if err := decoder.Decode(&feed); err != nil {
		return nil, eris.Wrap(err, "news: decode feed")
	}
	return &feed, nil
}

func (p *NewsPlugin) feedRecords(feed *rssFeed, feedURL string, since *time.Time) []model.RawRecord {
	var records []model.RawRecord

	add := func(title, link, summary, dateStr string) {
		published := parseFeedTime(dateStr)
		if since != nil && published != nil && published.Before(*since) {
			return
		}
		records = append(records, model.RawRecord{
			Source:      p.name,
			Title:       cleanText(title),
			Body:        cleanText(summary),
			URL:         link,
			PublishedAt: published,
			Metadata:    map[string]string{"feed_url": feedURL},
		})
	}

	for _, item := range feed.Channel.Items {
		add(item.Title, item.Link, item.Description, item.PubDate)
	}
	for _, entry := range feed.Entries {
		add(entry.Title, entry.Link.Href, entry.Summary, entry.Updated)
	}
	return records
}

// cleanText strips markup and entities left in feed content.
func cleanText(s string) string {
	s = tagPattern.ReplaceAllString(s, "")
	return strings.TrimSpace(html.UnescapeString(s))
}

// parseFeedTime tries the date formats seen in the wild: RFC 1123 variants
// for RSS pubDate, RFC 3339 for Atom updated.
func parseFeedTime(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range []string{
		time.RFC1123Z,
		time.RFC1123,
		time.RFC3339,
		time.RFC822Z,
		time.RFC822,
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	zap.L().Debug("news: unparseable date", zap.String("date", s))
	return nil
}
