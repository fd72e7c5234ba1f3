package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/journal-portal-api/internal/dto"
	"github.com/noah-isme/journal-portal-api/internal/models"
	appErrors "github.com/noah-isme/journal-portal-api/pkg/errors"
)

func TestTemplatePublishSupersedesActive(t *testing.T) {
	repo := &templateRepoStub{}
	audit := &auditStub{}
	txCalls := 0
	tx := func(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
		txCalls++
		return fn(nil)
	}
	svc := NewTemplateService(repo, audit, tx, nil, nil)
	ctx := context.Background()

	_, err := svc.Active(ctx)
	requireCode(t, err, appErrors.ErrNotFound)

	first, err := svc.Publish(ctx, dto.PublishTemplateRequest{Name: "Copyright", Schema: json.RawMessage(copyrightTemplate)}, adminClaims)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Version)

	second, err := svc.Publish(ctx, dto.PublishTemplateRequest{Name: "Copyright v2", Schema: json.RawMessage(copyrightTemplate)}, adminClaims)
	require.NoError(t, err)
	assert.Equal(t, 2, second.Version)
	assert.Equal(t, 2, txCalls)

	active, err := svc.Active(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, active.Version)
	assert.False(t, repo.templates[0].Active)

	old, err := svc.ByVersion(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Copyright", old.Name)
	assert.Equal(t, "Copyright Transfer", old.Schema.Name)

	require.Len(t, audit.logs, 2)
	assert.Equal(t, models.AuditActionTemplatePublish, audit.logs[0].Action)
	assert.Equal(t, adminClaims.UserID, *audit.logs[0].UserID)
}

func TestTemplatePublishKeepsWireBytes(t *testing.T) {
	repo := &templateRepoStub{}
	svc := NewTemplateService(repo, nil, nil, nil, nil)
	raw := `{"version":"2024.1","sections":[{"type":"static_html","html":"<p>x</p>"},{"type":"carousel"}]}`

	view, err := svc.Publish(context.Background(), dto.PublishTemplateRequest{Name: "Wire", Schema: json.RawMessage(raw)}, adminClaims)
	require.NoError(t, err)
	assert.Equal(t, raw, string(repo.templates[0].Schema))

	encoded, err := json.Marshal(view.Schema)
	require.NoError(t, err)
	assert.JSONEq(t, raw, string(encoded))
}

func TestTemplatePublishRejections(t *testing.T) {
	svc := NewTemplateService(&templateRepoStub{}, nil, nil, nil, nil)
	ctx := context.Background()

	_, err := svc.Publish(ctx, dto.PublishTemplateRequest{Name: "x", Schema: json.RawMessage(copyrightTemplate)}, authorClaims)
	requireCode(t, err, appErrors.ErrForbidden)

	_, err = svc.Publish(ctx, dto.PublishTemplateRequest{Name: "", Schema: json.RawMessage(copyrightTemplate)}, adminClaims)
	requireCode(t, err, appErrors.ErrValidation)

	_, err = svc.Publish(ctx, dto.PublishTemplateRequest{Name: "broken", Schema: json.RawMessage(`{"sections":`)}, adminClaims)
	requireCode(t, err, appErrors.ErrSchemaInvalid)

	_, err = svc.Publish(ctx, dto.PublishTemplateRequest{Name: "unknown only", Schema: json.RawMessage(`{"sections":[{"type":"carousel"}]}`)}, adminClaims)
	requireCode(t, err, appErrors.ErrSchemaInvalid)
}

func TestTemplatePublishPropagatesTxFailure(t *testing.T) {
	tx := func(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
		return errors.New("deadlock")
	}
	svc := NewTemplateService(&templateRepoStub{}, nil, tx, nil, nil)
	_, err := svc.Publish(context.Background(), dto.PublishTemplateRequest{Name: "x", Schema: json.RawMessage(copyrightTemplate)}, adminClaims)
	requireCode(t, err, appErrors.ErrInternal)
}
