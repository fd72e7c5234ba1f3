package storage

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorageRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	key, err := store.Save(ctx, "manuscripts/sub-1/paper.pdf", strings.NewReader("%PDF-1.4"), "application/pdf")
	require.NoError(t, err)
	assert.Equal(t, "manuscripts/sub-1/paper.pdf", key)

	rc, err := store.Open(ctx, key)
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "%PDF-1.4", string(body))

	require.NoError(t, store.Delete(ctx, key))
	_, err = store.Open(ctx, key)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, store.Delete(ctx, key))
}

func TestCleanKeyRejectsTraversal(t *testing.T) {
	_, err := CleanKey("../etc/passwd")
	assert.ErrorIs(t, err, ErrInvalidKey)
	_, err = CleanKey("a/../../b")
	assert.ErrorIs(t, err, ErrInvalidKey)
	_, err = CleanKey("  ")
	assert.ErrorIs(t, err, ErrInvalidKey)

	key, err := CleanKey("/copyright//sub-1/v1.pdf")
	require.NoError(t, err)
	assert.Equal(t, "copyright/sub-1/v1.pdf", key)
}
