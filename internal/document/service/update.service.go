package service

import (
	"context"

	"go.uber.org/zap"

	"scoresync/internal/access"
	"scoresync/internal/document/model"
	"scoresync/pkg/clock"
	"scoresync/pkg/errs"
	"scoresync/store"
)

type fieldKind int

const (
	kindScalar fieldKind = iota
	kindObject
)

// documentSchema is the closed set of top-level keys a partial update may
// touch. Unknown keys fail the whole call with Conflict before any write.
var documentSchema = map[string]fieldKind{
	"document_id":    kindScalar,
	"document_title": kindScalar,
	"contents":       kindObject,
	"comments":       kindObject,
	"metadata":       kindObject,
}

// protectedMetadata are metadata fields a partial update may never carry.
// Ownership is immutable, and the sharing fields gate the permission checks
// themselves, so a writer must not be able to rewrite them here; sharing
// goes through the dedicated share operations, which validate levels and
// keep the per-user document lists in step.
var protectedMetadata = []string{
	"owner_id",
	"share_list",
	"accessed_list",
	"share_style",
}

// UpdateService validates and applies partial document updates and
// advances the document's logical clock.
type UpdateService struct {
	docs   store.DocumentStore
	access *access.Service
	now    clock.Millis
	log    *zap.SugaredLogger
}

func NewUpdateService(docs store.DocumentStore, acc *access.Service, now clock.Millis, log *zap.SugaredLogger) *UpdateService {
	return &UpdateService{docs: docs, access: acc, now: now, log: log}
}

// UpdatePartial merges partial into the document. Object-valued keys
// shallow-merge one level; scalar keys replace. metadata.last_edit_time is
// stamped from the server clock inside the same atomic store update. The
// existence probe before the write is a narrow accepted race with
// concurrent deletion.
func (s *UpdateService) UpdatePartial(ctx context.Context, documentID string, partial map[string]any, writerID string) error {
	if documentID == "" || writerID == "" {
		return errs.MissingArguments("documentId, writerId")
	}
	if len(partial) == 0 {
		return errs.MissingArguments("fields")
	}
	if err := validatePartial(partial); err != nil {
		return err
	}

	exists, err := s.docs.Exists(ctx, documentID)
	if err != nil {
		return err
	}
	if !exists {
		return errs.NotFound("document " + documentID)
	}

	if err := s.access.Require(ctx, writerID, documentID, model.AccessWrite); err != nil {
		return err
	}

	stamped := stampLastEdit(partial, s.now())
	if err := s.docs.Update(ctx, documentID, stamped); err != nil {
		return err
	}
	s.log.Debugf("Applied partial update to document %s by %s", documentID, writerID)
	return nil
}

func validatePartial(partial map[string]any) error {
	for key, value := range partial {
		kind, ok := documentSchema[key]
		if !ok {
			return errs.Conflict("unknown field %q", key)
		}
		sub, isMap := value.(map[string]any)
		switch kind {
		case kindScalar:
			if isMap {
				return errs.Conflict("field %q expects a scalar value", key)
			}
		case kindObject:
			if !isMap {
				return errs.Conflict("field %q expects an object value", key)
			}
			if key == "metadata" {
				for _, field := range protectedMetadata {
					if _, found := sub[field]; found {
						return errs.Conflict("metadata.%s cannot be set through a partial update", field)
					}
				}
			}
		}
	}
	return nil
}

// stampLastEdit returns a copy of partial whose metadata carries the
// server-assigned timestamp, overwriting any client-supplied value.
func stampLastEdit(partial map[string]any, ts int64) map[string]any {
	stamped := make(map[string]any, len(partial)+1)
	for k, v := range partial {
		stamped[k] = v
	}
	meta := map[string]any{}
	if existing, ok := stamped["metadata"].(map[string]any); ok {
		for k, v := range existing {
			meta[k] = v
		}
	}
	meta["last_edit_time"] = ts
	stamped["metadata"] = meta
	return stamped
}
