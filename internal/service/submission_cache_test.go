package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/journal-portal-api/internal/models"
	"github.com/noah-isme/journal-portal-api/internal/workflow"
)

type failingCache struct{ memoryCache }

func (f *failingCache) Get(context.Context, string, interface{}) error {
	return errors.New("connection reset")
}

func TestSubmissionCacheRoundTrip(t *testing.T) {
	repo := newMemoryCache()
	metrics := NewMetricsService()
	c := NewSubmissionCache(repo, metrics, time.Minute, nil)
	ctx := context.Background()

	_, hit := c.Submission(ctx, "s-1")
	assert.False(t, hit)

	c.StoreSubmission(ctx, &models.Submission{ID: "s-1", GroupID: "g-1", Status: workflow.StatusSubmitted, Version: 2})
	sub, hit := c.Submission(ctx, "s-1")
	require.True(t, hit)
	assert.Equal(t, workflow.StatusSubmitted, sub.Status)
	assert.Equal(t, 2, sub.Version)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.cacheHits))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.cacheMisses))
}

func TestSubmissionCacheGroupPages(t *testing.T) {
	repo := newMemoryCache()
	c := NewSubmissionCache(repo, nil, 0, nil)
	ctx := context.Background()
	filter := models.SubmissionFilter{GroupID: "g-1", Page: 1, PageSize: 20, Status: []workflow.Status{workflow.StatusSubmitted}}
	other := models.SubmissionFilter{GroupID: "g-2", Page: 1, PageSize: 20}

	c.StoreGroupPage(ctx, filter, "all", []models.Submission{{ID: "s-1"}}, 7)
	c.StoreGroupPage(ctx, filter, "reviewer:7", []models.Submission{}, 0)
	c.StoreGroupPage(ctx, other, "all", []models.Submission{{ID: "s-9"}}, 1)

	subs, total, hit := c.GroupPage(ctx, filter, "all")
	require.True(t, hit)
	assert.Equal(t, 7, total)
	require.Len(t, subs, 1)

	_, _, hit = c.GroupPage(ctx, filter, "author:1")
	assert.False(t, hit)

	searched := filter
	searched.Search = "graphs"
	c.StoreGroupPage(ctx, searched, "all", []models.Submission{{ID: "s-1"}}, 1)
	_, _, hit = c.GroupPage(ctx, searched, "all")
	assert.False(t, hit)

	c.Forget(ctx, &models.Submission{ID: "s-1", GroupID: "g-1"})
	assert.Equal(t, []string{submissionKey("s-1")}, repo.evicted)
	_, _, hit = c.GroupPage(ctx, filter, "all")
	assert.False(t, hit)
	_, _, hit = c.GroupPage(ctx, filter, "reviewer:7")
	assert.False(t, hit)
	_, _, hit = c.GroupPage(ctx, other, "all")
	assert.True(t, hit)
}

func TestSubmissionCacheTreatsErrorsAsMiss(t *testing.T) {
	repo := &failingCache{memoryCache: *newMemoryCache()}
	c := NewSubmissionCache(repo, nil, time.Minute, nil)

	c.StoreSubmission(context.Background(), &models.Submission{ID: "s-1"})
	_, hit := c.Submission(context.Background(), "s-1")
	assert.False(t, hit)
}
