package service

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"scoresync/internal/access"
	"scoresync/internal/document/model"
	"scoresync/internal/user"
	"scoresync/pkg/clock"
	"scoresync/pkg/errs"
	"scoresync/store"
)

// previewFields are the document-level preview keys a writer may toggle.
var previewFields = map[string]bool{
	"preview_emoji": true,
	"preview_color": true,
	"favorited":     true,
}

// DocumentService owns document lifecycle and sharing-metadata mutations.
// Content edits go through UpdateService.
type DocumentService struct {
	docs   store.DocumentStore
	users  *user.Service
	access *access.Service
	now    clock.Millis
	log    *zap.SugaredLogger
}

func NewDocumentService(docs store.DocumentStore, users *user.Service, acc *access.Service, now clock.Millis, log *zap.SugaredLogger) *DocumentService {
	return &DocumentService{docs: docs, users: users, access: acc, now: now, log: log}
}

// CreateDocument creates an empty composition owned by ownerID.
func (s *DocumentService) CreateDocument(ctx context.Context, ownerID string) (model.Document, error) {
	if ownerID == "" {
		return model.Document{}, errs.MissingArguments("ownerId")
	}
	doc := model.NewDocument(uuid.NewString(), ownerID, s.now())
	obj, err := model.ToMap(doc)
	if err != nil {
		return model.Document{}, errs.Upstream(err)
	}
	if err := s.docs.Set(ctx, doc.DocumentID, obj); err != nil {
		return model.Document{}, err
	}
	if err := s.users.InsertUserDocument(ctx, ownerID, doc.DocumentID, user.AccessOwned); err != nil {
		s.log.Warnf("Document %s created but owner list update failed: %v", doc.DocumentID, err)
	}
	s.log.Infof("Created document %s for user %s", doc.DocumentID, ownerID)
	return doc, nil
}

// DeleteDocument removes the document. Owner only.
func (s *DocumentService) DeleteDocument(ctx context.Context, documentID, userID string) error {
	if documentID == "" || userID == "" {
		return errs.MissingArguments("documentId, userId")
	}
	if err := s.access.Require(ctx, userID, documentID, model.AccessOwner); err != nil {
		return err
	}
	if err := s.docs.Delete(ctx, documentID); err != nil {
		return err
	}
	if err := s.users.DeleteUserDocument(ctx, userID, documentID, user.AccessOwned); err != nil {
		s.log.Warnf("Document %s deleted but owner list update failed: %v", documentID, err)
	}
	return nil
}

func (s *DocumentService) GetDocument(ctx context.Context, documentID string) (model.Document, error) {
	if documentID == "" {
		return model.Document{}, errs.MissingArguments("documentId")
	}
	obj, err := s.docs.Get(ctx, documentID)
	if err != nil {
		return model.Document{}, err
	}
	doc, err := model.DocumentFromMap(obj)
	if err != nil {
		return model.Document{}, errs.Upstream(err)
	}
	return doc, nil
}

// UpdateShareStyle changes how the document opens for non-owners.
// Requires Write.
func (s *DocumentService) UpdateShareStyle(ctx context.Context, documentID, writerID string, style model.ShareStyle) error {
	if documentID == "" || writerID == "" {
		return errs.MissingArguments("documentId, writerId")
	}
	if style < model.SharePrivate || style > model.ShareEdit {
		return errs.Conflict("invalid share style %d", style)
	}
	if err := s.access.Require(ctx, writerID, documentID, model.AccessWrite); err != nil {
		return err
	}
	return s.docs.Update(ctx, documentID, map[string]any{
		"metadata.share_style":    int(style),
		"metadata.last_edit_time": s.now(),
	})
}

// ShareDocumentWithUser grants targetID the given level in the share list
// and records the document in the target's shared list. Requires Write.
func (s *DocumentService) ShareDocumentWithUser(ctx context.Context, documentID, writerID, targetID string, level model.AccessLevel) error {
	if documentID == "" || writerID == "" || targetID == "" {
		return errs.MissingArguments("documentId, writerId, targetId")
	}
	if level < model.AccessView || level > model.AccessWrite {
		return errs.Conflict("invalid share level %s", level)
	}
	if err := s.access.Require(ctx, writerID, documentID, model.AccessWrite); err != nil {
		return err
	}
	err := s.docs.Update(ctx, documentID, map[string]any{
		"metadata.share_list." + targetID: int(level),
		"metadata.last_edit_time":         s.now(),
	})
	if err != nil {
		return err
	}
	return s.users.InsertUserDocument(ctx, targetID, documentID, user.AccessShared)
}

// UnshareDocumentWithUser removes targetID from the share list.
// Requires Write.
func (s *DocumentService) UnshareDocumentWithUser(ctx context.Context, documentID, writerID, targetID string) error {
	if documentID == "" || writerID == "" || targetID == "" {
		return errs.MissingArguments("documentId, writerId, targetId")
	}
	if err := s.access.Require(ctx, writerID, documentID, model.AccessWrite); err != nil {
		return err
	}
	err := s.docs.Update(ctx, documentID, map[string]any{
		"metadata.share_list." + targetID: nil,
		"metadata.last_edit_time":         s.now(),
	})
	if err != nil {
		return err
	}
	return s.users.DeleteUserDocument(ctx, targetID, documentID, user.AccessShared)
}

// SetTrashed toggles the trash flag. Owner only.
func (s *DocumentService) SetTrashed(ctx context.Context, documentID, userID string, trashed bool) error {
	if documentID == "" || userID == "" {
		return errs.MissingArguments("documentId, userId")
	}
	if err := s.access.Require(ctx, userID, documentID, model.AccessOwner); err != nil {
		return err
	}
	return s.docs.Update(ctx, documentID, map[string]any{
		"metadata.trashed":        trashed,
		"metadata.last_edit_time": s.now(),
	})
}

// UpdatePreviewField sets one document-level preview property.
// Requires Write.
func (s *DocumentService) UpdatePreviewField(ctx context.Context, documentID, writerID, field string, value any) error {
	if documentID == "" || writerID == "" || field == "" {
		return errs.MissingArguments("documentId, writerId, field")
	}
	if !previewFields[field] {
		return errs.Conflict("unknown preview field %q", field)
	}
	if err := s.access.Require(ctx, writerID, documentID, model.AccessWrite); err != nil {
		return err
	}
	return s.docs.Update(ctx, documentID, map[string]any{
		"metadata." + field:       value,
		"metadata.last_edit_time": s.now(),
	})
}
