package service

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"scoresync/internal/access"
	"scoresync/internal/document/model"
	"scoresync/internal/presence"
	"scoresync/pkg/errs"
	"scoresync/store"
)

// SubscribeService streams document snapshots and presence events to
// connected clients and orchestrates the first-access side effects.
type SubscribeService struct {
	docs     store.DocumentStore
	presence *presence.Service
	access   *access.Service
	log      *zap.SugaredLogger
}

func NewSubscribeService(docs store.DocumentStore, pres *presence.Service, acc *access.Service, log *zap.SugaredLogger) *SubscribeService {
	return &SubscribeService{docs: docs, presence: pres, access: acc, log: log}
}

// Subscription is the handle returned by Subscribe. Release tears down the
// document and presence listeners; it does not remove the user's presence
// record, which belongs to the connection session.
type Subscription struct {
	releaseDoc      store.Unsubscribe
	releasePresence store.Unsubscribe
	grantSettled    chan struct{}

	mu          sync.Mutex
	lastApplied int64
}

// Release synchronously releases both listeners. Idempotent.
func (s *Subscription) Release() {
	s.releaseDoc()
	s.releasePresence()
}

// GrantSettled closes when the implicit-access-grant side effect has
// finished (or was not needed). The snapshot path never waits on it.
func (s *Subscription) GrantSettled() <-chan struct{} {
	return s.grantSettled
}

// apply runs the last-write-wins filter: duplicate or out-of-order
// snapshots are discarded by comparing last_edit_time against the newest
// value already delivered.
func (s *Subscription) apply(ts int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ts <= s.lastApplied {
		return false
	}
	s.lastApplied = ts
	return true
}

// Subscribe registers the user's presence (armed for disconnect removal
// under session), starts presence and document listeners, and delivers the
// current full snapshot. Every later backing-store notification delivers a
// full snapshot, never a diff. If the user is neither owner nor in the
// share list, the implicit view grant runs in the background without
// blocking delivery.
func (s *SubscribeService) Subscribe(
	ctx context.Context,
	documentID string,
	usr model.UserIdentity,
	session string,
	onDocument func(model.Document),
	onPresence func(model.UpdateType, model.OnlineEntity),
) (*Subscription, error) {
	if documentID == "" || usr.UserID == "" {
		return nil, errs.MissingArguments("documentId, userId")
	}
	if onDocument == nil || onPresence == nil {
		return nil, errs.MissingArguments("callbacks")
	}

	obj, err := s.docs.Get(ctx, documentID)
	if err != nil {
		return nil, err
	}
	initial, err := model.DocumentFromMap(obj)
	if err != nil {
		return nil, errs.Upstream(err)
	}

	if err := s.presence.RegisterUserToDocument(documentID, usr, session); err != nil {
		return nil, err
	}

	sub := &Subscription{
		lastApplied:  -1,
		grantSettled: make(chan struct{}),
	}
	sub.releasePresence = s.presence.SubscribeToOnlineUsers(documentID, onPresence)

	deliver := func(snapshot map[string]any) {
		doc, err := model.DocumentFromMap(snapshot)
		if err != nil {
			s.log.Errorf("Dropping undecodable snapshot for document %s: %v", documentID, err)
			return
		}
		if !sub.apply(doc.Metadata.LastEditTime) {
			return
		}
		onDocument(doc)
	}

	sub.releaseDoc = s.docs.Subscribe(documentID, deliver)
	deliver(obj)

	// First-access side effect. Fire and forget: the caller must not assume
	// the access-list update has completed when the first snapshot arrives.
	go func() {
		defer close(sub.grantSettled)
		if usr.UserID == initial.Metadata.OwnerID || initial.HasShareEntry(usr.UserID) {
			return
		}
		if err := s.access.GrantViewAccess(context.Background(), usr.UserID, documentID); err != nil {
			s.log.Warnf("Implicit view grant for user %s on document %s failed: %v", usr.UserID, documentID, err)
		}
	}()

	return sub, nil
}
