package plugin

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/signal-ingest/internal/model"
)

type stubPlugin struct {
	name string
}

func (s *stubPlugin) Name() string { return s.name }

func (s *stubPlugin) Fetch(context.Context, model.CompanyTarget, *time.Time) ([]model.RawRecord, error) {
	return nil, nil
}

func stubFactory(name string) Factory {
	return func() (Plugin, error) {
		return &stubPlugin{name: name}, nil
	}
}

func TestRegistry_RegisterAndResolve(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register("news", stubFactory("news")))
	require.NoError(t, reg.Register("linkedin", stubFactory("linkedin")))

	plugins, err := reg.Resolve([]string{"linkedin", "news"})
	require.NoError(t, err)
	require.Len(t, plugins, 2)

	// Input order is preserved for deterministic scheduling.
	assert.Equal(t, "linkedin", plugins[0].Name())
	assert.Equal(t, "news", plugins[1].Name())
}

func TestRegistry_DuplicateName(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register("news", stubFactory("news")))

	err := reg.Register("news", stubFactory("news"))
	require.ErrorIs(t, err, ErrDuplicateName)
}

func TestRegistry_UnknownPlugin(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register("news", stubFactory("news")))

	_, err := reg.Resolve([]string{"news", "blog"})
	require.ErrorIs(t, err, ErrUnknownPlugin)
	assert.Contains(t, err.Error(), "blog")
}

func TestRegistry_List(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register("linkedin", stubFactory("linkedin")))
	require.NoError(t, reg.Register("news", stubFactory("news")))

	assert.Equal(t, []string{"linkedin", "news"}, reg.List())
}

func TestValidateFetchInput(t *testing.T) {
	target := model.CompanyTarget{Name: "Acme"}
	require.NoError(t, ValidateFetchInput(target, nil))

	past := time.Now().Add(-time.Hour)
	require.NoError(t, ValidateFetchInput(target, &past))

	future := time.Now().Add(time.Hour)
	require.Error(t, ValidateFetchInput(target, &future))
	require.Error(t, ValidateFetchInput(model.CompanyTarget{}, nil))
}

func TestSourceErrorTaxonomy(t *testing.T) {
	unavailable := NewUnavailable("news", assert.AnError)
	quota := NewQuotaExceeded("linkedin", assert.AnError)
	malformed := NewMalformed("news", assert.AnError)

	assert.True(t, IsUnavailable(unavailable))
	assert.False(t, IsUnavailable(quota))
	assert.True(t, IsQuotaExceeded(quota))
	assert.True(t, IsMalformed(malformed))

	assert.True(t, IsRetryable(unavailable))
	assert.True(t, IsRetryable(quota))
	assert.False(t, IsRetryable(malformed))
	assert.False(t, IsRetryable(assert.AnError))

	// Kind survives wrapping.
	wrapped := fmt.Errorf("fetch failed: %w", unavailable)
	assert.True(t, IsUnavailable(wrapped))
}
