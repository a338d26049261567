package access

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scoresync/internal/document/model"
	"scoresync/internal/user"
	"scoresync/pkg/errs"
	"scoresync/pkg/logger"
	"scoresync/store"
)

func newTestService(t *testing.T) (*Service, store.DocumentStore, *user.Service) {
	docs := store.NewMemory()
	userStore := store.NewMemory()
	users := user.NewService(userStore)
	return NewService(docs, users, logger.Sugar), docs, users
}

func seedDocument(t *testing.T, docs store.DocumentStore, doc model.Document) {
	obj, err := model.ToMap(doc)
	require.NoError(t, err)
	require.NoError(t, docs.Set(context.Background(), doc.DocumentID, obj))
}

func TestGetUserAccessLevelResolutionOrder(t *testing.T) {
	svc, docs, _ := newTestService(t)
	ctx := context.Background()

	doc := model.NewDocument("d1", "owner", 100)
	doc.Metadata.ShareList["writer"] = model.AccessWrite
	doc.Metadata.ShareList["commenter"] = model.AccessComment
	doc.Metadata.AccessedList = []string{"viewer"}
	seedDocument(t, docs, doc)

	cases := map[string]model.AccessLevel{
		"owner":     model.AccessOwner,
		"writer":    model.AccessWrite,
		"commenter": model.AccessComment,
		"viewer":    model.AccessView,
		"stranger":  model.AccessNone,
	}
	for userID, want := range cases {
		level, err := svc.GetUserAccessLevel(ctx, userID, "d1")
		require.NoError(t, err, userID)
		assert.Equal(t, want, level, userID)
	}
}

func TestGetUserAccessLevelErrors(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.GetUserAccessLevel(ctx, "", "d1")
	assert.True(t, errors.Is(err, errs.ErrMissingArguments))

	_, err = svc.GetUserAccessLevel(ctx, "u1", "missing")
	assert.True(t, errors.Is(err, errs.ErrNotFound))
}

func TestRequire(t *testing.T) {
	svc, docs, _ := newTestService(t)
	ctx := context.Background()

	doc := model.NewDocument("d1", "owner", 100)
	doc.Metadata.ShareList["viewer"] = model.AccessView
	seedDocument(t, docs, doc)

	assert.NoError(t, svc.Require(ctx, "owner", "d1", model.AccessWrite))
	assert.NoError(t, svc.Require(ctx, "viewer", "d1", model.AccessView))

	err := svc.Require(ctx, "viewer", "d1", model.AccessWrite)
	assert.True(t, errors.Is(err, errs.ErrPermissionDenied))

	err = svc.Require(ctx, "stranger", "d1", model.AccessView)
	assert.True(t, errors.Is(err, errs.ErrPermissionDenied))
}

func TestGrantViewAccess(t *testing.T) {
	svc, docs, users := newTestService(t)
	ctx := context.Background()

	seedDocument(t, docs, model.NewDocument("d1", "owner", 100))
	require.NoError(t, users.SetUser(ctx, model.UserEntity{UserID: "stranger"}))

	require.NoError(t, svc.GrantViewAccess(ctx, "stranger", "d1"))

	level, err := svc.GetUserAccessLevel(ctx, "stranger", "d1")
	require.NoError(t, err)
	assert.Equal(t, model.AccessView, level)

	ids, err := users.GetUserDocuments(ctx, "stranger", []user.AccessType{user.AccessAccessed})
	require.NoError(t, err)
	assert.Equal(t, []string{"d1"}, ids)

	// Granting again is a no-op, not a duplicate entry.
	require.NoError(t, svc.GrantViewAccess(ctx, "stranger", "d1"))
	obj, err := docs.Get(ctx, "d1")
	require.NoError(t, err)
	doc, err := model.DocumentFromMap(obj)
	require.NoError(t, err)
	assert.Equal(t, []string{"stranger"}, doc.Metadata.AccessedList)
}

func TestGrantViewAccessSkipsOwnerAndShared(t *testing.T) {
	svc, docs, _ := newTestService(t)
	ctx := context.Background()

	doc := model.NewDocument("d1", "owner", 100)
	doc.Metadata.ShareList["friend"] = model.AccessWrite
	seedDocument(t, docs, doc)

	require.NoError(t, svc.GrantViewAccess(ctx, "owner", "d1"))
	require.NoError(t, svc.GrantViewAccess(ctx, "friend", "d1"))

	obj, err := docs.Get(ctx, "d1")
	require.NoError(t, err)
	got, err := model.DocumentFromMap(obj)
	require.NoError(t, err)
	assert.Empty(t, got.Metadata.AccessedList)
}
