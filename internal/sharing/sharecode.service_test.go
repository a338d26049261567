package sharing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scoresync/pkg/errs"
	"scoresync/store"
)

func TestShareCodeLifecycle(t *testing.T) {
	svc := NewService(store.NewMemory())
	ctx := context.Background()

	code, err := svc.CreateShareCode(ctx, "d1")
	require.NoError(t, err)
	require.NotEmpty(t, code)

	docID, err := svc.GetDocumentIDFromShareCode(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, "d1", docID)

	require.NoError(t, svc.DeleteShareCode(ctx, "d1", code))

	_, err = svc.GetDocumentIDFromShareCode(ctx, code)
	assert.True(t, errors.Is(err, errs.ErrNotFound))
}

func TestShareCodesAreUnique(t *testing.T) {
	svc := NewService(store.NewMemory())
	ctx := context.Background()

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		code, err := svc.CreateShareCode(ctx, "d1")
		require.NoError(t, err)
		assert.False(t, seen[code])
		seen[code] = true
	}
}

func TestDeleteShareCodeWrongDocument(t *testing.T) {
	svc := NewService(store.NewMemory())
	ctx := context.Background()

	code, err := svc.CreateShareCode(ctx, "d1")
	require.NoError(t, err)

	err = svc.DeleteShareCode(ctx, "other-doc", code)
	assert.True(t, errors.Is(err, errs.ErrConflict))

	// The mapping survives the failed delete.
	docID, err := svc.GetDocumentIDFromShareCode(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, "d1", docID)
}

func TestShareCodeMissingArguments(t *testing.T) {
	svc := NewService(store.NewMemory())
	ctx := context.Background()

	_, err := svc.CreateShareCode(ctx, "")
	assert.True(t, errors.Is(err, errs.ErrMissingArguments))

	_, err = svc.GetDocumentIDFromShareCode(ctx, "")
	assert.True(t, errors.Is(err, errs.ErrMissingArguments))
}
