package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scoresync/internal/document/model"
	"scoresync/internal/user"
	"scoresync/pkg/errs"
)

func TestCreateDocument(t *testing.T) {
	env := newTestEnv(t, 100)
	ctx := context.Background()
	require.NoError(t, env.users.SetUser(ctx, model.UserEntity{UserID: "u1"}))

	doc, err := env.documents.CreateDocument(ctx, "u1")
	require.NoError(t, err)
	assert.NotEmpty(t, doc.DocumentID)
	assert.Equal(t, "Untitled Composition", doc.DocumentTitle)
	assert.Equal(t, "u1", doc.Metadata.OwnerID)
	assert.Equal(t, int64(101), doc.Metadata.LastEditTime)

	got, err := env.documents.GetDocument(ctx, doc.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, doc.DocumentID, got.DocumentID)

	ids, err := env.users.GetUserDocuments(ctx, "u1", []user.AccessType{user.AccessOwned})
	require.NoError(t, err)
	assert.Equal(t, []string{doc.DocumentID}, ids)
}

func TestDeleteDocumentOwnerOnly(t *testing.T) {
	env := newTestEnv(t, 100)
	ctx := context.Background()
	require.NoError(t, env.users.SetUser(ctx, model.UserEntity{UserID: "u1"}))
	doc := model.NewDocument("d1", "u1", 100)
	doc.Metadata.ShareList["writer"] = model.AccessWrite
	env.seed(t, doc)

	err := env.documents.DeleteDocument(ctx, "d1", "writer")
	assert.True(t, errors.Is(err, errs.ErrPermissionDenied))

	require.NoError(t, env.documents.DeleteDocument(ctx, "d1", "u1"))
	_, err = env.documents.GetDocument(ctx, "d1")
	assert.True(t, errors.Is(err, errs.ErrNotFound))
}

func TestShareAndUnshare(t *testing.T) {
	env := newTestEnv(t, 100)
	ctx := context.Background()
	env.seed(t, model.NewDocument("d1", "u1", 100))
	require.NoError(t, env.users.SetUser(ctx, model.UserEntity{UserID: "u2"}))

	require.NoError(t, env.documents.ShareDocumentWithUser(ctx, "d1", "u1", "u2", model.AccessComment))

	level, err := env.access.GetUserAccessLevel(ctx, "u2", "d1")
	require.NoError(t, err)
	assert.Equal(t, model.AccessComment, level)

	ids, err := env.users.GetUserDocuments(ctx, "u2", []user.AccessType{user.AccessShared})
	require.NoError(t, err)
	assert.Equal(t, []string{"d1"}, ids)

	require.NoError(t, env.documents.UnshareDocumentWithUser(ctx, "d1", "u1", "u2"))

	level, err = env.access.GetUserAccessLevel(ctx, "u2", "d1")
	require.NoError(t, err)
	assert.Equal(t, model.AccessNone, level)

	ids, err = env.users.GetUserDocuments(ctx, "u2", []user.AccessType{user.AccessShared})
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestShareRejectsInvalidLevel(t *testing.T) {
	env := newTestEnv(t, 100)
	ctx := context.Background()
	env.seed(t, model.NewDocument("d1", "u1", 100))

	// Owner is not a grantable level.
	err := env.documents.ShareDocumentWithUser(ctx, "d1", "u1", "u2", model.AccessOwner)
	assert.True(t, errors.Is(err, errs.ErrConflict))

	err = env.documents.ShareDocumentWithUser(ctx, "d1", "u1", "u2", model.AccessNone)
	assert.True(t, errors.Is(err, errs.ErrConflict))
}

func TestShareRequiresWrite(t *testing.T) {
	env := newTestEnv(t, 100)
	ctx := context.Background()
	doc := model.NewDocument("d1", "u1", 100)
	doc.Metadata.ShareList["commenter"] = model.AccessComment
	env.seed(t, doc)

	err := env.documents.ShareDocumentWithUser(ctx, "d1", "commenter", "u3", model.AccessView)
	assert.True(t, errors.Is(err, errs.ErrPermissionDenied))
}

func TestUpdateShareStyle(t *testing.T) {
	env := newTestEnv(t, 100)
	ctx := context.Background()
	env.seed(t, model.NewDocument("d1", "u1", 100))

	require.NoError(t, env.documents.UpdateShareStyle(ctx, "d1", "u1", model.ShareEdit))
	got := env.load(t, "d1")
	assert.Equal(t, model.ShareEdit, got.Metadata.ShareStyle)

	err := env.documents.UpdateShareStyle(ctx, "d1", "u1", model.ShareStyle(99))
	assert.True(t, errors.Is(err, errs.ErrConflict))
}

func TestSetTrashed(t *testing.T) {
	env := newTestEnv(t, 100)
	ctx := context.Background()
	doc := model.NewDocument("d1", "u1", 100)
	doc.Metadata.ShareList["writer"] = model.AccessWrite
	env.seed(t, doc)

	err := env.documents.SetTrashed(ctx, "d1", "writer", true)
	assert.True(t, errors.Is(err, errs.ErrPermissionDenied))

	require.NoError(t, env.documents.SetTrashed(ctx, "d1", "u1", true))
	assert.True(t, env.load(t, "d1").Metadata.Trashed)

	require.NoError(t, env.documents.SetTrashed(ctx, "d1", "u1", false))
	assert.False(t, env.load(t, "d1").Metadata.Trashed)
}

func TestUpdatePreviewField(t *testing.T) {
	env := newTestEnv(t, 100)
	ctx := context.Background()
	env.seed(t, model.NewDocument("d1", "u1", 100))

	require.NoError(t, env.documents.UpdatePreviewField(ctx, "d1", "u1", "preview_emoji", "🎹"))
	require.NoError(t, env.documents.UpdatePreviewField(ctx, "d1", "u1", "favorited", true))

	got := env.load(t, "d1")
	assert.Equal(t, "🎹", got.Metadata.PreviewEmoji)
	assert.True(t, got.Metadata.Favorited)

	err := env.documents.UpdatePreviewField(ctx, "d1", "u1", "owner_id", "u2")
	assert.True(t, errors.Is(err, errs.ErrConflict))
}
