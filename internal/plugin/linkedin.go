package plugin

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/signal-ingest/internal/model"
	"github.com/sells-group/signal-ingest/internal/resilience"
	"github.com/sells-group/signal-ingest/pkg/phantombuster"
)

// LinkedInPlugin fetches professional-network signals for a company: its
// profile page and recent activity posts, via PhantomBuster agents.
type LinkedInPlugin struct {
	name     string
	client   phantombuster.Client
	maxPosts int
	retry    resilience.RetryConfig
}

// NewLinkedIn creates the plugin. maxPosts caps the activity items fetched
// per run.
func NewLinkedIn(name string, client phantombuster.Client, maxPosts int) *LinkedInPlugin {
	if maxPosts <= 0 {
		maxPosts = 3
	}
	// The default transient check already covers quota responses and
	// transport failures; decode failures are not retried.
	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger("phantombuster", "agent")
	return &LinkedInPlugin{
		name:     name,
		client:   client,
		maxPosts: maxPosts,
		retry:    retry,
	}
}

// Name implements Plugin.
func (p *LinkedInPlugin) Name() string {
	return p.name
}

// Fetch finds the company page, scrapes its profile, and converts recent
// posts into records. A company with no findable page yields no records.
func (p *LinkedInPlugin) Fetch(ctx context.Context, target model.CompanyTarget, since *time.Time) ([]model.RawRecord, error) {
	if err := ValidateFetchInput(target, since); err != nil {
		return nil, err
	}
	log := zap.L().With(zap.String("plugin", p.name), zap.String("company", target.Name))

	pageURL, err := resilience.DoVal(ctx, p.retry, func(ctx context.Context) (string, error) {
		return p.client.FindCompanyURL(ctx, target.Name, target.Industry)
	})
	if err != nil {
		return nil, p.classify(err)
	}
	if pageURL == "" {
		log.Info("linkedin: no company page found")
		return nil, nil
	}

	profile, err := resilience.DoVal(ctx, p.retry, func(ctx context.Context) (*phantombuster.Profile, error) {
		return p.client.CompanyProfile(ctx, pageURL)
	})
	if err != nil {
		return nil, p.classify(err)
	}

	posts, err := resilience.DoVal(ctx, p.retry, func(ctx context.Context) ([]phantombuster.Post, error) {
		return p.client.RecentPosts(ctx, pageURL, p.maxPosts)
	})
	if err != nil {
		return nil, p.classify(err)
	}

	meta := profileMetadata(profile)
	records := make([]model.RawRecord, 0, len(posts)+1)

	// The profile itself is a signal even when there are no posts.
	records = append(records, model.RawRecord{
		Source:   p.name,
		Title:    profile.CompanyName,
		Body:     profile.Description,
		URL:      pageURL,
		Metadata: meta,
	})

	for _, post := range posts {
		published := parsePostTime(post.Timestamp)
		if since != nil && published != nil && published.Before(*since) {
			continue
		}
		records = append(records, model.RawRecord{
			Source:      p.name,
			Title:       post.Author,
			Body:        post.Content,
			URL:         post.URL,
			PublishedAt: published,
			Metadata:    meta,
		})
	}

	log.Info("linkedin: fetch complete",
		zap.String("page_url", pageURL),
		zap.Int("records", len(records)),
	)
	return records, nil
}

// classify maps client failures onto the plugin error taxonomy.
func (p *LinkedInPlugin) classify(err error) error {
	var quota *phantombuster.QuotaError
	var decode *phantombuster.DecodeError
	switch {
	case errors.As(err, &quota):
		return NewQuotaExceeded(p.name, err)
	case errors.As(err, &decode):
		return NewMalformed(p.name, err)
	default:
		return NewUnavailable(p.name, err)
	}
}

func profileMetadata(profile *phantombuster.Profile) map[string]string {
	meta := map[string]string{}
	for key, val := range map[string]string{
		"company_name":   profile.CompanyName,
		"industry":       profile.Industry,
		"employee_count": profile.EmployeeCount,
		"headquarters":   profile.Headquarters,
		"founded":        profile.Founded,
		"website":        profile.Website,
	} {
		if val != "" {
			meta[key] = val
		}
	}
	return meta
}

func parsePostTime(ts string) *time.Time {
	if ts == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		zap.L().Warn("linkedin: unparseable post timestamp", zap.String("timestamp", ts))
		return nil
	}
	return &t
}
