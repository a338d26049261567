// Package presence manages ephemeral per-connection presence records in
// the presence store. Records live under presence/<docId>/users/<userId>
// and are removed automatically when the owning session disconnects.
package presence

import (
	"scoresync/internal/document/model"
	"scoresync/pkg/clock"
	"scoresync/pkg/errs"
	"scoresync/store"
)

type Service struct {
	store store.PresenceStore
	now   clock.Millis
}

func NewService(ps store.PresenceStore, now clock.Millis) *Service {
	return &Service{store: ps, now: now}
}

func usersPath(documentID string) string {
	return "presence/" + documentID + "/users"
}

func userPath(documentID, userID string) string {
	return usersPath(documentID) + "/" + userID
}

// RegisterUserToDocument writes the user's presence record and arms
// automatic removal on disconnect in the same call. Re-registration
// overwrites the prior record.
func (s *Service) RegisterUserToDocument(documentID string, usr model.UserIdentity, session string) error {
	if documentID == "" || usr.UserID == "" || session == "" {
		return errs.MissingArguments("documentId, userId, session")
	}
	path := userPath(documentID, usr.UserID)
	s.store.Set(path, map[string]any{
		"user_id":          usr.UserID,
		"user_email":       usr.UserEmail,
		"display_name":     usr.DisplayName,
		"last_active_time": s.now(),
	})
	s.store.ArmRemoveOnDisconnect(session, path)
	return nil
}

// UpdateUserInDocument merges the supplied fields into the user's record
// and stamps last_active_time from the server clock. Any client-supplied
// last_active_time is discarded.
func (s *Service) UpdateUserInDocument(documentID, userID string, partial map[string]any) error {
	if documentID == "" || userID == "" {
		return errs.MissingArguments("documentId, userId")
	}
	merged := make(map[string]any, len(partial)+2)
	for k, v := range partial {
		merged[k] = v
	}
	merged["user_id"] = userID
	merged["last_active_time"] = s.now()
	s.store.Update(userPath(documentID, userID), merged)
	return nil
}

// UpdateUserCursor moves the user's cursor.
func (s *Service) UpdateUserCursor(documentID, userID string, cursor map[string]any) error {
	return s.UpdateUserInDocument(documentID, userID, map[string]any{"cursor": cursor})
}

// UnregisterUserFromDocument removes the record explicitly, ahead of
// whatever the disconnect cleanup would do.
func (s *Service) UnregisterUserFromDocument(documentID, userID string) {
	s.store.Remove(userPath(documentID, userID))
}

// SubscribeToOnlineUsers delivers one callback per discrete add, change or
// remove in the document's user pool. Current live users are replayed as
// adds; no older history is replayed.
func (s *Service) SubscribeToOnlineUsers(documentID string, fn func(model.UpdateType, model.OnlineEntity)) store.Unsubscribe {
	return s.store.On(usersPath(documentID), func(event store.EventType, obj map[string]any) {
		entity, err := model.OnlineEntityFromMap(obj)
		if err != nil {
			return
		}
		switch event {
		case store.EventAdded:
			fn(model.UpdateAdd, entity)
		case store.EventChanged:
			fn(model.UpdateChange, entity)
		case store.EventRemoved:
			fn(model.UpdateDelete, entity)
		}
	})
}

// Disconnect tears down every record armed under the session. Called by
// the transport when the connection is gone.
func (s *Service) Disconnect(session string) {
	s.store.Disconnect(session)
}
