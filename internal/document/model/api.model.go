package model

// Request bodies for the HTTP API. Responses are wrapped in Envelope.

type UpdateDocRequest struct {
	DocID  string         `json:"document_id"`
	Fields map[string]any `json:"fields"`
}

type ShareRequest struct {
	DocID       string      `json:"document_id"`
	UserID      string      `json:"user_id"`
	AccessLevel AccessLevel `json:"access_level"`
}

type UnshareRequest struct {
	DocID  string `json:"document_id"`
	UserID string `json:"user_id"`
}

type ShareStyleRequest struct {
	DocID      string     `json:"document_id"`
	ShareStyle ShareStyle `json:"share_style"`
}

type TrashRequest struct {
	DocID   string `json:"document_id"`
	Trashed bool   `json:"trashed"`
}

type PreviewRequest struct {
	DocID string `json:"document_id"`
	Field string `json:"field"`
	Value any    `json:"value"`
}

type ShareCodeRequest struct {
	DocID string `json:"document_id"`
}

type CommentRequest struct {
	DocID  string `json:"document_id"`
	Text   string `json:"text"`
	Anchor string `json:"anchor,omitempty"`
}

type EditCommentRequest struct {
	DocID     string `json:"document_id"`
	CommentID string `json:"comment_id"`
	Text      string `json:"text"`
}

type CursorRequest struct {
	DocID  string         `json:"document_id"`
	Cursor map[string]any `json:"cursor"`
}
