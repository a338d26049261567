package model

import (
	"encoding/json"
)

// AccessLevel is the ordered permission tier for a (user, document) pair.
type AccessLevel int

const (
	AccessNone AccessLevel = iota
	AccessView
	AccessComment
	AccessWrite
	AccessOwner
)

func (a AccessLevel) String() string {
	switch a {
	case AccessOwner:
		return "owner"
	case AccessWrite:
		return "write"
	case AccessComment:
		return "comment"
	case AccessView:
		return "view"
	default:
		return "none"
	}
}

// AtLeast reports whether a satisfies the given minimum level.
func (a AccessLevel) AtLeast(min AccessLevel) bool {
	return a >= min
}

// ShareStyle controls how a document is opened for non-owners.
type ShareStyle int

const (
	SharePrivate ShareStyle = iota + 1
	ShareView
	ShareComment
	ShareEdit
)

// UpdateType tags a discrete presence event.
type UpdateType string

const (
	UpdateAdd    UpdateType = "add"
	UpdateChange UpdateType = "change"
	UpdateDelete UpdateType = "delete"
)

// DocumentMetadata carries everything the sync layer needs to reason about
// a document: ownership, sharing, and the last-write-wins clock.
type DocumentMetadata struct {
	DocumentID   string                 `json:"document_id"`
	OwnerID      string                 `json:"owner_id"`
	ShareStyle   ShareStyle             `json:"share_style"`
	ShareList    map[string]AccessLevel `json:"share_list"`
	AccessedList []string               `json:"accessed_list"`
	PreviewEmoji string                 `json:"preview_emoji,omitempty"`
	PreviewColor string                 `json:"preview_color,omitempty"`
	Favorited    bool                   `json:"favorited"`
	// LastEditTime is a server-assigned millisecond timestamp. It is
	// non-decreasing across all accepted updates to a document and is the
	// sole conflict-resolution signal.
	LastEditTime int64 `json:"last_edit_time"`
	Trashed      bool  `json:"trashed"`
}

// Comment is an annotation anchored to the score payload.
type Comment struct {
	CommentID       string `json:"comment_id"`
	AuthorID        string `json:"author_id"`
	Text            string `json:"text"`
	Anchor          string `json:"anchor,omitempty"`
	CreationTime    int64  `json:"creation_time"`
	LastEditTime    int64  `json:"last_edit_time"`
	IsReply         bool   `json:"is_reply"`
	ParentCommentID string `json:"parent_comment_id,omitempty"`
}

// Document is the shared editable entity. Contents holds the musical score
// payload as an opaque object; the sync layer never interprets it.
type Document struct {
	DocumentID    string             `json:"document_id"`
	DocumentTitle string             `json:"document_title"`
	Contents      map[string]any     `json:"contents"`
	Comments      map[string]Comment `json:"comments"`
	Metadata      DocumentMetadata   `json:"metadata"`
}

// HasShareEntry reports whether userID appears in the share list.
func (d *Document) HasShareEntry(userID string) bool {
	_, ok := d.Metadata.ShareList[userID]
	return ok
}

// OnlineEntity is the ephemeral presence record for a connected
// collaborator. It lives only as long as the connection.
type OnlineEntity struct {
	UserID         string         `json:"user_id"`
	UserEmail      string         `json:"user_email"`
	DisplayName    string         `json:"display_name"`
	Cursor         map[string]any `json:"cursor,omitempty"`
	LastActiveTime int64          `json:"last_active_time"`
}

// ShareCodeEntity maps an opaque invitation code to a document.
type ShareCodeEntity struct {
	Code       string `json:"code"`
	DocumentID string `json:"document_id"`
}

// UserEntity is the per-user record: identity plus the document lists that
// drive the home screen and the implicit-grant flow.
type UserEntity struct {
	UserID            string                    `json:"user_id"`
	UserEmail         string                    `json:"user_email"`
	DisplayName       string                    `json:"display_name"`
	OwnedDocuments    []string                  `json:"owned_documents"`
	SharedDocuments   []string                  `json:"shared_documents"`
	AccessedDocuments []string                  `json:"accessed_documents"`
	PreviewProperties map[string]map[string]any `json:"preview_properties,omitempty"`
}

// UserIdentity is the subset of UserEntity a connection must present.
type UserIdentity struct {
	UserID      string `json:"user_id"`
	UserEmail   string `json:"user_email"`
	DisplayName string `json:"display_name"`
}

// Envelope is the wire framing for every response and websocket message.
type Envelope struct {
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Websocket message kinds.
const (
	MsgDocument = "DOCUMENT"
	MsgPresence = "PRESENCE"
	MsgUpdate   = "UPDATE"
	MsgCursor   = "CURSOR"
	MsgError    = "ERROR"
)

// PresenceEvent is the data payload of a PRESENCE envelope.
type PresenceEvent struct {
	Type UpdateType   `json:"type"`
	User OnlineEntity `json:"user"`
}

// ToMap converts any JSON-taggable value into the map form the object
// store works with.
func ToMap(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// DocumentFromMap decodes a stored object back into a typed Document.
func DocumentFromMap(m map[string]any) (Document, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return Document{}, err
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Document{}, err
	}
	return doc, nil
}

// OnlineEntityFromMap decodes a presence record.
func OnlineEntityFromMap(m map[string]any) (OnlineEntity, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return OnlineEntity{}, err
	}
	var u OnlineEntity
	if err := json.Unmarshal(raw, &u); err != nil {
		return OnlineEntity{}, err
	}
	return u, nil
}

// NewDocument returns an empty composition owned by ownerID.
func NewDocument(documentID, ownerID string, now int64) Document {
	return Document{
		DocumentID:    documentID,
		DocumentTitle: "Untitled Composition",
		Contents:      map[string]any{},
		Comments:      map[string]Comment{},
		Metadata: DocumentMetadata{
			DocumentID:   documentID,
			OwnerID:      ownerID,
			ShareStyle:   SharePrivate,
			ShareList:    map[string]AccessLevel{},
			AccessedList: []string{},
			LastEditTime: now,
		},
	}
}
