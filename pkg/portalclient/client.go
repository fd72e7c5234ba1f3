// Package portalclient is a typed client for the journal portal API. It keeps a
// per-submission cache that every view of the same submission subscribes to, so a
// mutation made through one view is reflected in all of them.
package portalclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/journal-portal-api/internal/dto"
	"github.com/noah-isme/journal-portal-api/internal/models"
	"github.com/noah-isme/journal-portal-api/internal/workflow"
	"github.com/noah-isme/journal-portal-api/pkg/poller"
)

// ErrMutationInFlight is returned when a mutation for the same submission is still pending.
var ErrMutationInFlight = errors.New("portalclient: a request for this submission is already in flight")

// APIError wraps non-2xx responses.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// Client talks to the portal REST API.
type Client struct {
	BaseURL      string
	BearerToken  string
	HTTPClient   *http.Client
	PollInterval time.Duration
	Logger       *zap.Logger

	mu          sync.RWMutex
	submissions map[string]dto.SubmissionView
	subscribers map[string]map[int]func(dto.SubmissionView)
	nextSub     int

	flightMu sync.Mutex
	inflight map[string]struct{}

	initOnce sync.Once
}

// New creates a client with sane defaults. baseURL includes the API prefix.
// A Client built as a struct literal works too; unset fields fall back to the same defaults.
func New(baseURL, token string) *Client {
	return &Client{
		BaseURL:      baseURL,
		BearerToken:  token,
		HTTPClient:   &http.Client{Timeout: 15 * time.Second},
		PollInterval: poller.DefaultInterval,
		Logger:       zap.NewNop(),
	}
}

func (c *Client) init() {
	c.initOnce.Do(func() {
		c.submissions = make(map[string]dto.SubmissionView)
		c.subscribers = make(map[string]map[int]func(dto.SubmissionView))
		c.inflight = make(map[string]struct{})
	})
}

// groupPageSize is the page size requested when listing a group.
const groupPageSize = 100

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Pagination *pagination `json:"pagination"`
}

type pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}

// GetSubmissionsByGroup lists the group's submissions visible to the caller and
// refreshes the cached entry of each one.
func (c *Client) GetSubmissionsByGroup(ctx context.Context, groupID string) ([]dto.SubmissionView, error) {
	if strings.TrimSpace(groupID) == "" {
		return nil, errors.New("portalclient: groupId is required")
	}
	base := "groups/" + url.PathEscape(groupID) + "/submissions"
	var items []dto.SubmissionView
	for page := 1; ; page++ {
		var batch []dto.SubmissionView
		endpoint := fmt.Sprintf("%s?page=%d&limit=%d", base, page, groupPageSize)
		pg, err := c.send(ctx, http.MethodGet, endpoint, nil, &batch)
		if err != nil {
			return nil, err
		}
		items = append(items, batch...)
		if len(batch) == 0 || pg == nil || len(items) >= pg.TotalCount {
			break
		}
	}
	for _, item := range items {
		c.store(item)
	}
	return items, nil
}

// GetSubmission fetches one submission and refreshes its cache entry.
func (c *Client) GetSubmission(ctx context.Context, id string) (dto.SubmissionView, error) {
	var view dto.SubmissionView
	if err := c.do(ctx, http.MethodGet, "submissions/"+url.PathEscape(id), nil, &view); err != nil {
		return dto.SubmissionView{}, err
	}
	c.store(view)
	return view, nil
}

// GetReviewersList lists assignable reviewers, optionally narrowed to one role.
func (c *Client) GetReviewersList(ctx context.Context, role models.UserRole) ([]models.Reviewer, error) {
	path := "reviewers"
	if role != "" {
		path += "?role=" + url.QueryEscape(string(role))
	}
	var out []models.Reviewer
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

// AssignEditor assigns the editor of a submitted abstract.
func (c *Client) AssignEditor(ctx context.Context, id, editorID string) (dto.SubmissionView, error) {
	action := workflow.AssignEditor{Editor: workflow.Reviewer{ID: editorID}}
	return c.mutate(ctx, id, action, "assign-editor", dto.AssignEditorRequest{EditorID: editorID})
}

// AssignConferenceEditor assigns the conference editor of an editor-approved abstract.
func (c *Client) AssignConferenceEditor(ctx context.Context, id, editorID string) (dto.SubmissionView, error) {
	action := workflow.AssignConferenceEditor{Editor: workflow.Reviewer{ID: editorID}}
	return c.mutate(ctx, id, action, "assign-conference-editor", dto.AssignEditorRequest{EditorID: editorID})
}

// SubmitReview records an editor or conference editor verdict.
func (c *Client) SubmitReview(ctx context.Context, id string, verdict workflow.Verdict, comment string) (dto.SubmissionView, error) {
	action := workflow.Review{Verdict: verdict, Comment: comment}
	return c.mutate(ctx, id, action, "review", dto.ReviewRequest{Decision: verdict, Comment: comment})
}

// SubmitFinalDecision records the admin's final verdict.
func (c *Client) SubmitFinalDecision(ctx context.Context, id string, verdict workflow.Verdict, comment string) (dto.SubmissionView, error) {
	action := workflow.FinalDecision{Verdict: verdict, Comment: comment}
	return c.mutate(ctx, id, action, "final-decision", dto.ReviewRequest{Decision: verdict, Comment: comment})
}

// GetActiveFormTemplate returns the active copyright form template.
func (c *Client) GetActiveFormTemplate(ctx context.Context) (dto.TemplateView, error) {
	var out dto.TemplateView
	err := c.do(ctx, http.MethodGet, "copyright/template", nil, &out)
	return out, err
}

// ListJournals returns the journals accepting full papers.
func (c *Client) ListJournals(ctx context.Context) ([]models.Journal, error) {
	var out []models.Journal
	err := c.do(ctx, http.MethodGet, "journals", nil, &out)
	return out, err
}

// GetCopyrightSubmission returns the current agreement and the template it renders with.
func (c *Client) GetCopyrightSubmission(ctx context.Context, submissionID string) (dto.CopyrightView, error) {
	var out dto.CopyrightView
	err := c.do(ctx, http.MethodGet, "copyright/"+url.PathEscape(submissionID), nil, &out)
	return out, err
}

// SubmitCopyright submits the agreement after checking completeness locally.
func (c *Client) SubmitCopyright(ctx context.Context, submissionID string, req dto.SubmitCopyrightRequest) (dto.SubmitCopyrightResponse, error) {
	if err := req.Validate(); err != nil {
		return dto.SubmitCopyrightResponse{}, err
	}
	if err := req.CheckSignatureImages(); err != nil {
		return dto.SubmitCopyrightResponse{}, err
	}
	key := "copyright:" + submissionID
	if err := c.begin(key); err != nil {
		return dto.SubmitCopyrightResponse{}, err
	}
	defer c.end(key)

	var out dto.SubmitCopyrightResponse
	err := c.do(ctx, http.MethodPost, "copyright/"+url.PathEscape(submissionID), req, &out)
	return out, err
}

// WatchGroup polls the group's submissions until ctx is cancelled and hands every
// successful result to fn. A failed poll is logged and retried on the next tick.
func (c *Client) WatchGroup(ctx context.Context, groupID string, fn func([]dto.SubmissionView)) {
	p := poller.New(c.PollInterval, func(ctx context.Context) error {
		items, err := c.GetSubmissionsByGroup(ctx, groupID)
		if err != nil {
			return err
		}
		if fn != nil {
			fn(items)
		}
		return nil
	}, poller.WithLogger(c.Logger))
	p.Run(ctx)
}

// Cached returns the cached submission.
func (c *Client) Cached(id string) (dto.SubmissionView, bool) {
	c.init()
	c.mu.RLock()
	defer c.mu.RUnlock()
	view, ok := c.submissions[id]
	return view, ok
}

// Subscribe registers fn for every refresh of submission id. The returned func unsubscribes.
func (c *Client) Subscribe(id string, fn func(dto.SubmissionView)) func() {
	c.init()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subscribers[id] == nil {
		c.subscribers[id] = make(map[int]func(dto.SubmissionView))
	}
	token := c.nextSub
	c.nextSub++
	c.subscribers[id][token] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subscribers[id], token)
		if len(c.subscribers[id]) == 0 {
			delete(c.subscribers, id)
		}
	}
}

func (c *Client) mutate(ctx context.Context, id string, action workflow.Action, verb string, body interface{}) (dto.SubmissionView, error) {
	if strings.TrimSpace(id) == "" {
		return dto.SubmissionView{}, errors.New("portalclient: submission id is required")
	}
	if err := workflow.ValidateLocally(action); err != nil {
		return dto.SubmissionView{}, err
	}
	if err := c.begin(id); err != nil {
		return dto.SubmissionView{}, err
	}
	defer c.end(id)

	var view dto.SubmissionView
	if err := c.do(ctx, http.MethodPost, "submissions/"+url.PathEscape(id)+"/"+verb, body, &view); err != nil {
		return dto.SubmissionView{}, err
	}
	c.store(view)
	return view, nil
}

// store replaces the cached entry and fans it out to subscribers.
func (c *Client) store(view dto.SubmissionView) {
	if view.ID == "" {
		return
	}
	c.init()
	c.mu.Lock()
	c.submissions[view.ID] = view
	subs := make([]func(dto.SubmissionView), 0, len(c.subscribers[view.ID]))
	for _, fn := range c.subscribers[view.ID] {
		subs = append(subs, fn)
	}
	c.mu.Unlock()

	for _, fn := range subs {
		fn(view)
	}
}

func (c *Client) begin(key string) error {
	c.init()
	c.flightMu.Lock()
	defer c.flightMu.Unlock()
	if _, busy := c.inflight[key]; busy {
		return ErrMutationInFlight
	}
	c.inflight[key] = struct{}{}
	return nil
}

func (c *Client) end(key string) {
	c.init()
	c.flightMu.Lock()
	defer c.flightMu.Unlock()
	delete(c.inflight, key)
}

func (c *Client) do(ctx context.Context, method, endpoint string, body, out interface{}) error {
	_, err := c.send(ctx, method, endpoint, body, out)
	return err
}

// send performs the request and returns the envelope's pagination, if any.
func (c *Client) send(ctx context.Context, method, endpoint string, body, out interface{}) (*pagination, error) {
	target := strings.TrimRight(c.BaseURL, "/") + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}

	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode, Message: fmt.Sprintf("request failed with status %d", resp.StatusCode)}
		if decodeErr == nil && env.Error != nil {
			apiErr.Code = env.Error.Code
			if env.Error.Message != "" {
				apiErr.Message = env.Error.Message
			}
		}
		return nil, apiErr
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("portalclient: decode response: %w", decodeErr)
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return nil, err
		}
	}
	return env.Pagination, nil
}
