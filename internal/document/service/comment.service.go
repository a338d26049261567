package service

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"scoresync/internal/access"
	"scoresync/internal/document/model"
	"scoresync/pkg/clock"
	"scoresync/pkg/errs"
	"scoresync/store"
)

// commentCacheSize bounds the recently-read comment cache. Eviction is by
// recency; a miss falls back to the document store.
const commentCacheSize = 256

// CommentService manages comments stored under the document's comments
// field, so they ride the normal snapshot channel to subscribers.
type CommentService struct {
	docs   store.DocumentStore
	access *access.Service
	cache  *lru.Cache[string, model.Comment]
	now    clock.Millis
}

func NewCommentService(docs store.DocumentStore, acc *access.Service, now clock.Millis) (*CommentService, error) {
	cache, err := lru.New[string, model.Comment](commentCacheSize)
	if err != nil {
		return nil, err
	}
	return &CommentService{docs: docs, access: acc, cache: cache, now: now}, nil
}

// CreateComment requires at least Comment access.
func (s *CommentService) CreateComment(ctx context.Context, documentID, authorID, text, anchor string) (model.Comment, error) {
	if documentID == "" || authorID == "" || text == "" {
		return model.Comment{}, errs.MissingArguments("documentId, authorId, text")
	}
	if err := s.access.Require(ctx, authorID, documentID, model.AccessComment); err != nil {
		return model.Comment{}, err
	}

	ts := s.now()
	comment := model.Comment{
		CommentID:    uuid.NewString(),
		AuthorID:     authorID,
		Text:         text,
		Anchor:       anchor,
		CreationTime: ts,
		LastEditTime: ts,
	}
	obj, err := model.ToMap(comment)
	if err != nil {
		return model.Comment{}, errs.Upstream(err)
	}
	err = s.docs.Update(ctx, documentID, map[string]any{
		"comments":                map[string]any{comment.CommentID: obj},
		"metadata.last_edit_time": ts,
	})
	if err != nil {
		return model.Comment{}, err
	}
	s.cache.Add(comment.CommentID, comment)
	return comment, nil
}

// EditCommentText lets the author change their comment's text.
func (s *CommentService) EditCommentText(ctx context.Context, documentID, commentID, editorID, text string) error {
	if documentID == "" || commentID == "" || editorID == "" || text == "" {
		return errs.MissingArguments("documentId, commentId, editorId, text")
	}
	comment, err := s.GetComment(ctx, documentID, commentID)
	if err != nil {
		return err
	}
	if comment.AuthorID != editorID {
		return errs.PermissionDenied("only the author may edit comment " + commentID)
	}

	ts := s.now()
	err = s.docs.Update(ctx, documentID, map[string]any{
		"comments." + commentID + ".text":           text,
		"comments." + commentID + ".last_edit_time": ts,
		"metadata.last_edit_time":                   ts,
	})
	if err != nil {
		return err
	}
	comment.Text = text
	comment.LastEditTime = ts
	s.cache.Add(commentID, comment)
	return nil
}

// DeleteComment lets the author or the document owner remove a comment.
func (s *CommentService) DeleteComment(ctx context.Context, documentID, commentID, userID string) error {
	if documentID == "" || commentID == "" || userID == "" {
		return errs.MissingArguments("documentId, commentId, userId")
	}
	comment, err := s.GetComment(ctx, documentID, commentID)
	if err != nil {
		return err
	}
	if comment.AuthorID != userID {
		level, err := s.access.GetUserAccessLevel(ctx, userID, documentID)
		if err != nil {
			return err
		}
		if level != model.AccessOwner {
			return errs.PermissionDenied("only the author or owner may delete comment " + commentID)
		}
	}

	err = s.docs.Update(ctx, documentID, map[string]any{
		"comments":                map[string]any{commentID: nil},
		"metadata.last_edit_time": s.now(),
	})
	if err != nil {
		return err
	}
	s.cache.Remove(commentID)
	return nil
}

// GetComment reads through the bounded cache.
func (s *CommentService) GetComment(ctx context.Context, documentID, commentID string) (model.Comment, error) {
	if documentID == "" || commentID == "" {
		return model.Comment{}, errs.MissingArguments("documentId, commentId")
	}
	if comment, ok := s.cache.Get(commentID); ok {
		return comment, nil
	}

	obj, err := s.docs.Get(ctx, documentID)
	if err != nil {
		return model.Comment{}, err
	}
	comments, _ := obj["comments"].(map[string]any)
	raw, ok := comments[commentID]
	if !ok {
		return model.Comment{}, errs.NotFound("comment " + commentID)
	}
	encoded, err := json.Marshal(raw)
	if err != nil {
		return model.Comment{}, errs.Upstream(err)
	}
	var comment model.Comment
	if err := json.Unmarshal(encoded, &comment); err != nil {
		return model.Comment{}, errs.Upstream(err)
	}
	s.cache.Add(commentID, comment)
	return comment, nil
}
