package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/journal-portal-api/internal/models"
	"github.com/noah-isme/journal-portal-api/pkg/cache"
	appErrors "github.com/noah-isme/journal-portal-api/pkg/errors"
)

// CacheRepository abstracts persistence for cached payloads.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// SubmissionCache is the read-through cache for single submissions and group list pages.
// Entries are only ever replaced or dropped, never patched. Cache failures are logged and
// treated as misses.
type SubmissionCache struct {
	repo    CacheRepository
	metrics *MetricsService
	ttl     time.Duration
	logger  *zap.Logger
}

// NewSubmissionCache constructs a submission cache. A non-positive ttl defaults to two minutes.
func NewSubmissionCache(repo CacheRepository, metrics *MetricsService, ttl time.Duration, logger *zap.Logger) *SubmissionCache {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubmissionCache{repo: repo, metrics: metrics, ttl: ttl, logger: logger}
}

type groupPage struct {
	Items []models.Submission `json:"items"`
	Total int                 `json:"total"`
}

// Submission returns the cached row for id.
func (c *SubmissionCache) Submission(ctx context.Context, id string) (*models.Submission, bool) {
	var sub models.Submission
	if !c.load(ctx, submissionKey(id), &sub) {
		return nil, false
	}
	return &sub, true
}

// StoreSubmission caches sub under its id.
func (c *SubmissionCache) StoreSubmission(ctx context.Context, sub *models.Submission) {
	if sub == nil || sub.ID == "" {
		return
	}
	c.store(ctx, submissionKey(sub.ID), sub)
}

// GroupPage returns a cached list page. Searches are never cached.
func (c *SubmissionCache) GroupPage(ctx context.Context, filter models.SubmissionFilter, scope string) ([]models.Submission, int, bool) {
	key := groupListKey(filter, scope)
	if key == "" {
		return nil, 0, false
	}
	var page groupPage
	if !c.load(ctx, key, &page) {
		return nil, 0, false
	}
	return page.Items, page.Total, true
}

// StoreGroupPage caches one list page for the viewer scope.
func (c *SubmissionCache) StoreGroupPage(ctx context.Context, filter models.SubmissionFilter, scope string, subs []models.Submission, total int) {
	key := groupListKey(filter, scope)
	if key == "" {
		return
	}
	c.store(ctx, key, groupPage{Items: subs, Total: total})
}

// Forget drops the cached row of sub and every list page of its group.
func (c *SubmissionCache) Forget(ctx context.Context, sub *models.Submission) {
	if c == nil || c.repo == nil || sub == nil {
		return
	}
	if err := c.repo.Delete(ctx, submissionKey(sub.ID)); err != nil {
		c.logger.Warn("cache evict failed", zap.String("submission_id", sub.ID), zap.Error(err))
	}
	c.ForgetGroup(ctx, sub.GroupID)
}

// ForgetGroup drops every cached list page of groupID.
func (c *SubmissionCache) ForgetGroup(ctx context.Context, groupID string) {
	if c == nil || c.repo == nil || groupID == "" {
		return
	}
	if err := c.repo.DeleteByPattern(ctx, groupPattern(groupID)); err != nil {
		c.logger.Warn("cache invalidate failed", zap.String("group_id", groupID), zap.Error(err))
	}
}

func (c *SubmissionCache) load(ctx context.Context, key string, dest interface{}) bool {
	if c == nil || c.repo == nil {
		return false
	}
	start := time.Now()
	err := c.repo.Get(ctx, key, dest)
	c.metrics.RecordCacheOperation(err == nil, time.Since(start))
	if err != nil && !errors.Is(err, appErrors.ErrCacheMiss) {
		c.logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
	}
	return err == nil
}

func (c *SubmissionCache) store(ctx context.Context, key string, value interface{}) {
	if c == nil || c.repo == nil {
		return
	}
	start := time.Now()
	err := c.repo.Set(ctx, key, value, c.ttl)
	c.metrics.ObserveCacheWrite(time.Since(start))
	if err != nil {
		c.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
}

func submissionKey(id string) string {
	return cache.Key("submission", id)
}

func groupPattern(groupID string) string {
	return cache.Key("submissions", "group", groupID) + ":*"
}

func groupListKey(filter models.SubmissionFilter, scope string) string {
	if filter.Search != "" {
		return ""
	}
	statuses := make([]string, len(filter.Status))
	for i, st := range filter.Status {
		statuses[i] = string(st)
	}
	return cache.Key("submissions", "group", filter.GroupID, scope,
		"p"+strconv.Itoa(filter.Page), "s"+strconv.Itoa(filter.PageSize), strings.Join(statuses, ","))
}
