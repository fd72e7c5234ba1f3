package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/journal-portal-api/internal/dto"
	"github.com/noah-isme/journal-portal-api/internal/models"
	"github.com/noah-isme/journal-portal-api/internal/workflow"
	appErrors "github.com/noah-isme/journal-portal-api/pkg/errors"
)

type submissionStore interface {
	Create(ctx context.Context, sub *models.Submission) error
	GetByID(ctx context.Context, id string) (*models.Submission, error)
	List(ctx context.Context, filter models.SubmissionFilter) ([]models.Submission, int, error)
	UpdateWorkflow(ctx context.Context, sub *models.Submission, expected workflow.Status) error
}

type reviewerDirectory interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	ListReviewers(ctx context.Context, filter models.UserFilter) ([]models.Reviewer, error)
}

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type submissionCache interface {
	Submission(ctx context.Context, id string) (*models.Submission, bool)
	StoreSubmission(ctx context.Context, sub *models.Submission)
	GroupPage(ctx context.Context, filter models.SubmissionFilter, scope string) ([]models.Submission, int, bool)
	StoreGroupPage(ctx context.Context, filter models.SubmissionFilter, scope string, subs []models.Submission, total int)
	Forget(ctx context.Context, sub *models.Submission)
	ForgetGroup(ctx context.Context, groupID string)
}

// ReviewService runs the abstract review pipeline against persisted submissions.
type ReviewService struct {
	repo      submissionStore
	users     reviewerDirectory
	audit     auditLogger
	cache     submissionCache
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// ReviewServiceOption configures the service.
type ReviewServiceOption func(*ReviewService)

// WithReviewCache enables the per-submission read cache.
func WithReviewCache(c submissionCache) ReviewServiceOption {
	return func(s *ReviewService) {
		s.cache = c
	}
}

// WithReviewMetrics records transition outcomes.
func WithReviewMetrics(m *MetricsService) ReviewServiceOption {
	return func(s *ReviewService) {
		s.metrics = m
	}
}

// WithReviewClock overrides the clock used to stamp transitions.
func WithReviewClock(now func() time.Time) ReviewServiceOption {
	return func(s *ReviewService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewReviewService constructs the service with defaults.
func NewReviewService(repo submissionStore, users reviewerDirectory, audit auditLogger, validate *validator.Validate, logger *zap.Logger, opts ...ReviewServiceOption) *ReviewService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	svc := &ReviewService{
		repo:      repo,
		users:     users,
		audit:     audit,
		validator: validate,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// Create stores a new abstract in Submitted status.
func (s *ReviewService) Create(ctx context.Context, req dto.CreateSubmissionRequest, actor *models.JWTClaims) (*dto.SubmissionView, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleAuthor {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only authors can submit abstracts")
	}
	req.Title = strings.TrimSpace(req.Title)
	req.Abstract = strings.TrimSpace(req.Abstract)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid submission payload")
	}

	now := s.now().UTC()
	sub := &models.Submission{
		GroupID:    strings.TrimSpace(req.GroupID),
		Title:      req.Title,
		Abstract:   req.Abstract,
		Keywords:   strings.TrimSpace(req.Keywords),
		AuthorID:   actor.UserID,
		AuthorName: actor.FullName,
		Version:    1,
		CreatedAt:  now,
	}
	sub.SetRecord(workflow.NewRecord(now))
	if err := s.repo.Create(ctx, sub); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create submission")
	}

	if s.cache != nil {
		s.cache.ForgetGroup(ctx, sub.GroupID)
	}
	s.emitAudit(ctx, actor.UserID, models.AuditActionSubmissionCreate, sub.ID, nil, sub)
	view := dto.NewSubmissionView(*sub, actor.Actor())
	return &view, nil
}

// Get returns one submission the actor may see.
func (s *ReviewService) Get(ctx context.Context, id string, actor *models.JWTClaims) (*dto.SubmissionView, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	sub, err := s.cached(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canView(sub, actor) {
		return nil, appErrors.ErrForbidden
	}
	view := dto.NewSubmissionView(*sub, actor.Actor())
	return &view, nil
}

// Timeline returns the stage projection of a submission.
func (s *ReviewService) Timeline(ctx context.Context, id string, actor *models.JWTClaims) (*dto.TimelineView, error) {
	view, err := s.Get(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	rec := view.Record()
	return &dto.TimelineView{SubmissionID: view.ID, Status: rec.Status, Entries: workflow.Timeline(rec)}, nil
}

// ListByGroup returns the submissions of a group visible to the actor.
// Admins see everything, reviewers their assignments, authors their own abstracts.
func (s *ReviewService) ListByGroup(ctx context.Context, query dto.SubmissionQuery, actor *models.JWTClaims) ([]dto.SubmissionView, int, error) {
	if actor == nil {
		return nil, 0, appErrors.ErrUnauthorized
	}
	if strings.TrimSpace(query.GroupID) == "" {
		return nil, 0, appErrors.Clone(appErrors.ErrValidation, "groupId is required")
	}
	filter := models.SubmissionFilter{
		GroupID:  query.GroupID,
		Status:   query.Status,
		Search:   strings.TrimSpace(query.Search),
		Page:     query.Page,
		PageSize: query.PageSize,
	}
	scope := "all"
	switch {
	case actor.IsAdmin():
	case actor.Role.IsReviewer():
		filter.ReviewerID = actor.UserID
		scope = "reviewer:" + actor.UserID
	case actor.Role == models.RoleAuthor:
		filter.AuthorID = actor.UserID
		scope = "author:" + actor.UserID
	default:
		return nil, 0, appErrors.ErrForbidden
	}

	if s.cache != nil {
		if subs, total, hit := s.cache.GroupPage(ctx, filter, scope); hit {
			return s.views(subs, actor), total, nil
		}
	}

	subs, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list submissions")
	}
	if s.cache != nil {
		s.cache.StoreGroupPage(ctx, filter, scope, subs, total)
	}
	return s.views(subs, actor), total, nil
}

// Reviewers lists users that can be assigned to a stage.
func (s *ReviewService) Reviewers(ctx context.Context, query dto.ReviewerQuery) ([]models.Reviewer, error) {
	filter := models.UserFilter{Search: strings.TrimSpace(query.Search)}
	if raw := strings.TrimSpace(query.Role); raw != "" {
		role := models.UserRole(strings.ToUpper(raw))
		if !role.IsReviewer() {
			return nil, appErrors.Clone(appErrors.ErrValidation, "role must be EDITOR or CONFERENCE_EDITOR")
		}
		filter.Role = &role
	}
	reviewers, err := s.users.ListReviewers(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list reviewers")
	}
	if reviewers == nil {
		reviewers = []models.Reviewer{}
	}
	return reviewers, nil
}

// AssignEditor moves a submitted abstract to its editor.
func (s *ReviewService) AssignEditor(ctx context.Context, id string, req dto.AssignEditorRequest, actor *models.JWTClaims) (*dto.SubmissionView, error) {
	return s.assign(ctx, id, req.EditorID, actor, func(r workflow.Reviewer) workflow.Action {
		return workflow.AssignEditor{Editor: r}
	})
}

// AssignConferenceEditor moves an editor-approved abstract to its conference editor.
func (s *ReviewService) AssignConferenceEditor(ctx context.Context, id string, req dto.AssignEditorRequest, actor *models.JWTClaims) (*dto.SubmissionView, error) {
	return s.assign(ctx, id, req.EditorID, actor, func(r workflow.Reviewer) workflow.Action {
		return workflow.AssignConferenceEditor{Editor: r}
	})
}

// Review records the assigned reviewer's verdict for the current stage.
func (s *ReviewService) Review(ctx context.Context, id string, req dto.ReviewRequest, actor *models.JWTClaims) (*dto.SubmissionView, error) {
	return s.transition(ctx, id, actor, workflow.Review{Verdict: req.Decision, Comment: req.Comment})
}

// FinalDecision records the admin's accept or reject.
func (s *ReviewService) FinalDecision(ctx context.Context, id string, req dto.ReviewRequest, actor *models.JWTClaims) (*dto.SubmissionView, error) {
	return s.transition(ctx, id, actor, workflow.FinalDecision{Verdict: req.Decision, Comment: req.Comment})
}

func (s *ReviewService) assign(ctx context.Context, id, editorID string, actor *models.JWTClaims, build func(workflow.Reviewer) workflow.Action) (*dto.SubmissionView, error) {
	editorID = strings.TrimSpace(editorID)
	action := build(workflow.Reviewer{ID: editorID})
	if err := workflow.ValidateLocally(action); err != nil {
		s.observe(action.Kind(), TransitionRefused)
		return nil, rejectionToError(err)
	}
	user, err := s.users.FindByID(ctx, editorID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "selected editor does not exist")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load editor")
	}
	if !user.Active || !user.Role.IsReviewer() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "selected user cannot review abstracts")
	}
	return s.transition(ctx, id, actor, build(workflow.Reviewer{ID: user.ID, Name: user.FullName}))
}

// transition loads the authoritative record, applies the action, persists it
// conditionally on the status it was read in and returns the re-read row.
func (s *ReviewService) transition(ctx context.Context, id string, actor *models.JWTClaims, action workflow.Action) (*dto.SubmissionView, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	kind := action.Kind()
	if err := workflow.ValidateLocally(action); err != nil {
		s.observe(kind, TransitionRefused)
		return nil, rejectionToError(err)
	}

	sub, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	rec := sub.Record()
	next, err := workflow.Apply(rec, actor.Actor(), action, s.now().UTC())
	if err != nil {
		s.observe(kind, TransitionRefused)
		s.logger.Info("workflow transition refused",
			zap.String("submission_id", id),
			zap.String("action", string(kind)),
			zap.String("status", string(rec.Status)),
			zap.Error(err),
		)
		return nil, rejectionToError(err)
	}

	updated := *sub
	updated.SetRecord(next)
	if err := s.repo.UpdateWorkflow(ctx, &updated, rec.Status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.observe(kind, TransitionConflict)
			s.evict(ctx, sub)
			return nil, appErrors.Clone(appErrors.ErrConflict, "submission changed while you were acting on it, reload and try again")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update submission")
	}

	fresh, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	s.evict(ctx, fresh)
	s.observe(kind, TransitionApplied)
	s.emitAudit(ctx, actor.UserID, models.AuditActionWorkflowTransition, fresh.ID, rec, fresh.Record())
	s.logger.Info("workflow transition applied",
		zap.String("submission_id", id),
		zap.String("action", string(kind)),
		zap.String("from", string(rec.Status)),
		zap.String("to", string(fresh.Status)),
		zap.String("actor_id", actor.UserID),
	)

	view := dto.NewSubmissionView(*fresh, actor.Actor())
	return &view, nil
}

func (s *ReviewService) load(ctx context.Context, id string) (*models.Submission, error) {
	sub, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "submission not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submission")
	}
	return sub, nil
}

func (s *ReviewService) cached(ctx context.Context, id string) (*models.Submission, error) {
	if s.cache != nil {
		if sub, hit := s.cache.Submission(ctx, id); hit {
			return sub, nil
		}
	}
	sub, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.StoreSubmission(ctx, sub)
	}
	return sub, nil
}

// evict drops every cached copy that may hold sub so readers see the new row wholesale.
func (s *ReviewService) evict(ctx context.Context, sub *models.Submission) {
	if s.cache == nil || sub == nil {
		return
	}
	s.cache.Forget(ctx, sub)
}

func (s *ReviewService) views(subs []models.Submission, actor *models.JWTClaims) []dto.SubmissionView {
	out := make([]dto.SubmissionView, 0, len(subs))
	for _, sub := range subs {
		out = append(out, dto.NewSubmissionView(sub, actor.Actor()))
	}
	return out
}

func (s *ReviewService) observe(kind workflow.ActionKind, result string) {
	s.metrics.ObserveTransition(string(kind), result)
}

func (s *ReviewService) emitAudit(ctx context.Context, userID, action, resourceID string, before, after interface{}) {
	if s.audit == nil {
		return
	}
	entry := &models.AuditLog{
		UserID:     &userID,
		Action:     action,
		Resource:   models.AuditResourceSubmission,
		ResourceID: &resourceID,
		IPAddress:  "system",
		UserAgent:  "review-service",
	}
	if before != nil {
		entry.OldValues, _ = json.Marshal(before)
	}
	if after != nil {
		entry.NewValues, _ = json.Marshal(after)
	}
	if err := s.audit.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}

func canView(sub *models.Submission, actor *models.JWTClaims) bool {
	switch {
	case actor.IsAdmin():
		return true
	case actor.Role.IsReviewer():
		return (sub.EditorID != nil && *sub.EditorID == actor.UserID) ||
			(sub.ConferenceEditorID != nil && *sub.ConferenceEditorID == actor.UserID)
	case actor.Role == models.RoleAuthor:
		return sub.AuthorID == actor.UserID
	}
	return false
}

// rejectionToError maps a refused transition onto the API error taxonomy.
func rejectionToError(err error) error {
	var rej *workflow.Rejection
	if !errors.As(err, &rej) {
		return appErrors.FromError(err)
	}
	var base *appErrors.Error
	switch rej.Reason {
	case workflow.ReasonTerminal:
		base = appErrors.ErrTerminalState
	case workflow.ReasonInvalidTransition:
		base = appErrors.ErrInvalidTransition
	case workflow.ReasonForbidden:
		base = appErrors.ErrForbidden
	case workflow.ReasonCommentRequired:
		base = appErrors.ErrCommentRequired
	case workflow.ReasonReviewerRequired, workflow.ReasonInvalidDecision:
		base = appErrors.ErrValidation
	default:
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, fmt.Sprintf("unexpected rejection %q", rej.Reason))
	}
	clone := appErrors.Clone(base, rej.Message)
	clone.Err = rej
	return clone
}
