package user

import (
	"context"
	"encoding/json"
	"slices"

	"scoresync/internal/document/model"
	"scoresync/pkg/errs"
	"scoresync/store"
)

// AccessType names the per-user document list a document id lives in.
type AccessType string

const (
	AccessOwned    AccessType = "owned"
	AccessShared   AccessType = "shared"
	AccessAccessed AccessType = "accessed"
)

// Service manages UserEntity records in the users collection.
type Service struct {
	users store.DocumentStore
}

func NewService(users store.DocumentStore) *Service {
	return &Service{users: users}
}

func (s *Service) GetUser(ctx context.Context, userID string) (model.UserEntity, error) {
	if userID == "" {
		return model.UserEntity{}, errs.MissingArguments("userId")
	}
	obj, err := s.users.Get(ctx, userID)
	if err != nil {
		return model.UserEntity{}, err
	}
	raw, err := json.Marshal(obj)
	if err != nil {
		return model.UserEntity{}, errs.Upstream(err)
	}
	var entity model.UserEntity
	if err := json.Unmarshal(raw, &entity); err != nil {
		return model.UserEntity{}, errs.Upstream(err)
	}
	return entity, nil
}

func (s *Service) SetUser(ctx context.Context, entity model.UserEntity) error {
	if entity.UserID == "" {
		return errs.MissingArguments("user_id")
	}
	obj, err := model.ToMap(entity)
	if err != nil {
		return errs.Upstream(err)
	}
	return s.users.Set(ctx, entity.UserID, obj)
}

// InsertUserDocument adds documentID to the user's list for accessType.
// Inserting an id that is already present is a no-op.
func (s *Service) InsertUserDocument(ctx context.Context, userID, documentID string, accessType AccessType) error {
	entity, err := s.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	list := listFor(&entity, accessType)
	if slices.Contains(list, documentID) {
		return nil
	}
	list = append(list, documentID)
	return s.users.Update(ctx, userID, map[string]any{
		string(accessType) + "_documents": list,
	})
}

// DeleteUserDocument removes documentID from the user's list for accessType.
func (s *Service) DeleteUserDocument(ctx context.Context, userID, documentID string, accessType AccessType) error {
	entity, err := s.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	list := listFor(&entity, accessType)
	idx := slices.Index(list, documentID)
	if idx < 0 {
		return nil
	}
	list = slices.Delete(list, idx, idx+1)
	return s.users.Update(ctx, userID, map[string]any{
		string(accessType) + "_documents": list,
	})
}

// GetUserDocuments returns the document ids across the given lists.
func (s *Service) GetUserDocuments(ctx context.Context, userID string, accessTypes []AccessType) ([]string, error) {
	entity, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, t := range accessTypes {
		ids = append(ids, listFor(&entity, t)...)
	}
	return ids, nil
}

// UpdateUserLevelProperty sets one per-user preview property (emoji, color,
// favorited) for a document, without touching the document itself.
func (s *Service) UpdateUserLevelProperty(ctx context.Context, userID, documentID, property string, value any) error {
	if userID == "" || documentID == "" || property == "" {
		return errs.MissingArguments("userId, documentId, property")
	}
	return s.users.Update(ctx, userID, map[string]any{
		"preview_properties." + documentID + "." + property: value,
	})
}

func listFor(entity *model.UserEntity, t AccessType) []string {
	switch t {
	case AccessOwned:
		return entity.OwnedDocuments
	case AccessShared:
		return entity.SharedDocuments
	default:
		return entity.AccessedDocuments
	}
}
