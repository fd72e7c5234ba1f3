package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/journal-portal-api/internal/middleware"
	"github.com/noah-isme/journal-portal-api/internal/models"
	"github.com/noah-isme/journal-portal-api/internal/service"
	appErrors "github.com/noah-isme/journal-portal-api/pkg/errors"
	"github.com/noah-isme/journal-portal-api/pkg/response"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	return middleware.Claims(c)
}

// requireClaims writes 401 and returns nil when the request is anonymous.
func requireClaims(c *gin.Context) *models.JWTClaims {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
	}
	return claims
}

func bindJSON(c *gin.Context, dest interface{}, message string) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, message))
		return false
	}
	return true
}

func parseQueryInt(c *gin.Context, key string, def int) int {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return def
	}
	return v
}

// streamFile sends a stored file and closes its reader.
func streamFile(c *gin.Context, file *service.FileDownload, inline bool) {
	defer file.Content.Close()
	disposition := "attachment"
	if inline {
		disposition = "inline"
	}
	c.Header("Cache-Control", "no-store")
	c.DataFromReader(http.StatusOK, -1, file.MimeType, file.Content, map[string]string{
		"Content-Disposition": disposition + `; filename="` + strings.ReplaceAll(file.Filename, `"`, "") + `"`,
	})
}
