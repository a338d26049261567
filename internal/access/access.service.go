// Package access computes permission levels for (user, document) pairs and
// performs the implicit view grant on first contact.
package access

import (
	"context"
	"slices"

	"go.uber.org/zap"

	"scoresync/internal/document/model"
	"scoresync/internal/user"
	"scoresync/pkg/errs"
	"scoresync/store"
)

type Service struct {
	docs  store.DocumentStore
	users *user.Service
	log   *zap.SugaredLogger
}

func NewService(docs store.DocumentStore, users *user.Service, log *zap.SugaredLogger) *Service {
	return &Service{docs: docs, users: users, log: log}
}

// GetUserAccessLevel resolves in order: owner, share list entry, accessed
// list, none.
func (s *Service) GetUserAccessLevel(ctx context.Context, userID, documentID string) (model.AccessLevel, error) {
	if userID == "" || documentID == "" {
		return model.AccessNone, errs.MissingArguments("userId, documentId")
	}
	doc, err := s.getDocument(ctx, documentID)
	if err != nil {
		return model.AccessNone, err
	}
	return ResolveLevel(&doc, userID), nil
}

// ResolveLevel is the pure resolution rule, usable on an already-loaded
// document.
func ResolveLevel(doc *model.Document, userID string) model.AccessLevel {
	meta := doc.Metadata
	if meta.OwnerID == userID {
		return model.AccessOwner
	}
	if level, ok := meta.ShareList[userID]; ok {
		return level
	}
	if slices.Contains(meta.AccessedList, userID) {
		return model.AccessView
	}
	return model.AccessNone
}

// Require fails with PermissionDenied unless userID holds at least min on
// the document. Every mutating entry point calls this before touching the
// update path.
func (s *Service) Require(ctx context.Context, userID, documentID string, min model.AccessLevel) error {
	level, err := s.GetUserAccessLevel(ctx, userID, documentID)
	if err != nil {
		return err
	}
	if !level.AtLeast(min) {
		return errs.PermissionDenied("user " + userID + " has " + level.String() + " on document " + documentID)
	}
	return nil
}

// GrantViewAccess inserts userID into the document's accessed list and the
// user's accessed_documents. Owners and shared users are left untouched.
// The accessed-list update is a read-modify-write; the narrow race with a
// concurrent grant only ever duplicates work, not entries, because both
// sides insert-if-absent.
func (s *Service) GrantViewAccess(ctx context.Context, userID, documentID string) error {
	if userID == "" || documentID == "" {
		return errs.MissingArguments("userId, documentId")
	}
	doc, err := s.getDocument(ctx, documentID)
	if err != nil {
		return err
	}
	if doc.Metadata.OwnerID == userID || doc.HasShareEntry(userID) {
		return nil
	}
	if !slices.Contains(doc.Metadata.AccessedList, userID) {
		accessed := append(doc.Metadata.AccessedList, userID)
		err := s.docs.Update(ctx, documentID, map[string]any{
			"metadata.accessed_list": accessed,
		})
		if err != nil {
			return err
		}
	}
	if err := s.users.InsertUserDocument(ctx, userID, documentID, user.AccessAccessed); err != nil {
		// The document-side grant already landed; the user list catches up
		// on the next first access.
		s.log.Warnf("Failed to record accessed document %s for user %s: %v", documentID, userID, err)
		return err
	}
	return nil
}

func (s *Service) getDocument(ctx context.Context, documentID string) (model.Document, error) {
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
