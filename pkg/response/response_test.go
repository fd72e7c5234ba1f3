package response

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/journal-portal-api/pkg/errors"
)

func TestErrorEnvelope(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	Error(c, fmt.Errorf("wrap: %w", appErrors.Clone(appErrors.ErrCommentRequired, "comment is required to reject")))

	require.Equal(t, http.StatusBadRequest, w.Code)
	var env Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	require.NotNil(t, env.Error)
	assert.Equal(t, "COMMENT_REQUIRED", env.Error.Code)
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	assert.True(t, c.IsAborted())
}

func TestJSONWithMeta(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	JSON(c, http.StatusOK, []string{"a"}, &Pagination{Page: 1, PageSize: 20, TotalCount: 1}, map[string]interface{}{"cache": "MISS"})

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "MISS", body["meta"].(map[string]interface{})["cache"])
	assert.EqualValues(t, 1, body["pagination"].(map[string]interface{})["total_count"])
}
