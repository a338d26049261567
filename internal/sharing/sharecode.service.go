// Package sharing maps opaque invitation codes to document ids.
package sharing

import (
	"context"
	"encoding/json"

	"github.com/oklog/ulid/v2"

	"scoresync/internal/document/model"
	"scoresync/pkg/errs"
	"scoresync/store"
)

type Service struct {
	codes store.DocumentStore
}

func NewService(codes store.DocumentStore) *Service {
	return &Service{codes: codes}
}

// CreateShareCode stores a new (code -> documentId) mapping and returns the
// code. It does not touch the document's share_style; the caller updates
// sharing metadata separately. Codes have no expiry and stay valid until
// deleted.
func (s *Service) CreateShareCode(ctx context.Context, documentID string) (string, error) {
	if documentID == "" {
		return "", errs.MissingArguments("documentId")
	}
	code := ulid.Make().String()
	entity := model.ShareCodeEntity{Code: code, DocumentID: documentID}
	obj, err := model.ToMap(entity)
	if err != nil {
		return "", errs.Upstream(err)
	}
	if err := s.codes.Set(ctx, code, obj); err != nil {
		return "", err
	}
	return code, nil
}

// GetDocumentIDFromShareCode resolves a code, or NotFound.
func (s *Service) GetDocumentIDFromShareCode(ctx context.Context, code string) (string, error) {
	if code == "" {
		return "", errs.MissingArguments("shareCode")
	}
	obj, err := s.codes.Get(ctx, code)
	if err != nil {
		return "", err
	}
	raw, err := json.Marshal(obj)
	if err != nil {
		return "", errs.Upstream(err)
	}
	var entity model.ShareCodeEntity
	if err := json.Unmarshal(raw, &entity); err != nil {
		return "", errs.Upstream(err)
	}
	return entity.DocumentID, nil
}

// DeleteShareCode removes the mapping. The code must belong to documentID;
// a mismatch is a Conflict and nothing is deleted.
func (s *Service) DeleteShareCode(ctx context.Context, documentID, code string) error {
	if documentID == "" || code == "" {
		return errs.MissingArguments("documentId, shareCode")
	}
	mapped, err := s.GetDocumentIDFromShareCode(ctx, code)
	if err != nil {
		return err
	}
	if mapped != documentID {
		return errs.Conflict("share code %s does not belong to document %s", code, documentID)
	}
	return s.codes.Delete(ctx, code)
}
