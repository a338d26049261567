package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"scoresync/internal/access"
	"scoresync/internal/document/model"
	"scoresync/internal/document/service"
	"scoresync/internal/presence"
	"scoresync/internal/sharing"
	"scoresync/internal/user"
	"scoresync/middleware"
	"scoresync/pkg/errs"
	"scoresync/pkg/logger"
	"scoresync/socket"
)

// Response statuses form a closed set: OK, MISSING_ARGUMENTS,
// USER_NOT_FOUND (any absent entity), GENERAL_ERROR.
const (
	statusOK               = http.StatusOK
	statusMissingArguments = http.StatusBadRequest
	statusNotFound         = http.StatusNotFound
	statusGeneralError     = http.StatusInternalServerError
)

type DocumentHandler struct {
	Documents *service.DocumentService
	Updates   *service.UpdateService
	Comments  *service.CommentService
	Access    *access.Service
	Sharing   *sharing.Service
	Users     *user.Service
	Presence  *presence.Service
	Hub       *socket.Hub
}

func writeEnvelope(w http.ResponseWriter, status int, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	var raw json.RawMessage
	if data != nil {
		raw, _ = json.Marshal(data)
	}
	json.NewEncoder(w).Encode(model.Envelope{Message: message, Data: raw})
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errs.ErrMissingArguments):
		writeEnvelope(w, statusMissingArguments, "Missing required fields", err.Error())
	case errors.Is(err, errs.ErrNotFound):
		writeEnvelope(w, statusNotFound, "Not found", err.Error())
	default:
		writeEnvelope(w, statusGeneralError, "Request failed", err.Error())
	}
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errs.MissingArguments("invalid request body")
	}
	return nil
}

func requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func (h *DocumentHandler) CreateDocument(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	usr := middleware.Identity(r)

	doc, err := h.Documents.CreateDocument(r.Context(), usr.UserID)
	if err != nil {
		logger.Sugar.Errorf("Failed to create document: %v", err)
		writeError(w, err)
		return
	}
	writeEnvelope(w, statusOK, "Document created successfully", doc)
}

func (h *DocumentHandler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodDelete) {
		return
	}
	docID := r.URL.Query().Get("docId")
	if docID == "" {
		writeError(w, errs.MissingArguments("docId"))
		return
	}
	usr := middleware.Identity(r)

	if err := h.Documents.DeleteDocument(r.Context(), docID, usr.UserID); err != nil {
		logger.Sugar.Errorf("Failed to delete document %s: %v", docID, err)
		writeError(w, err)
		return
	}
	h.Hub.DisconnectDocument(docID)
	writeEnvelope(w, statusOK, "Document deleted successfully", true)
}

func (h *DocumentHandler) UpdatePartialDocument(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req model.UpdateDocRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	usr := middleware.Identity(r)

	if err := h.Updates.UpdatePartial(r.Context(), req.DocID, req.Fields, usr.UserID); err != nil {
		logger.Sugar.Warnf("Partial update rejected for document %s: %v", req.DocID, err)
		writeError(w, err)
		return
	}
	writeEnvelope(w, statusOK, "Document updated successfully", true)
}

func (h *DocumentHandler) GetDocuments(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	usr := middleware.Identity(r)

	ids, err := h.Users.GetUserDocuments(r.Context(), usr.UserID,
		[]user.AccessType{user.AccessOwned, user.AccessShared, user.AccessAccessed})
	if err != nil {
		writeError(w, err)
		return
	}
	writeEnvelope(w, statusOK, "Documents fetched successfully", ids)
}

func (h *DocumentHandler) GetAccessLevel(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	docID := r.URL.Query().Get("docId")
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		userID = middleware.Identity(r).UserID
	}

	level, err := h.Access.GetUserAccessLevel(r.Context(), userID, docID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeEnvelope(w, statusOK, "Access level fetched successfully", level.String())
}

func (h *DocumentHandler) ShareWithUser(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req model.ShareRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	usr := middleware.Identity(r)

	if err := h.Documents.ShareDocumentWithUser(r.Context(), req.DocID, usr.UserID, req.UserID, req.AccessLevel); err != nil {
		logger.Sugar.Warnf("Share rejected for document %s: %v", req.DocID, err)
		writeError(w, err)
		return
	}
	writeEnvelope(w, statusOK, "Document shared successfully", true)
}

func (h *DocumentHandler) UnshareWithUser(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req model.UnshareRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	usr := middleware.Identity(r)

	if err := h.Documents.UnshareDocumentWithUser(r.Context(), req.DocID, usr.UserID, req.UserID); err != nil {
		writeError(w, err)
		return
	}
	writeEnvelope(w, statusOK, "Document unshared successfully", true)
}

func (h *DocumentHandler) UpdateShareStyle(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req model.ShareStyleRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	usr := middleware.Identity(r)

	if err := h.Documents.UpdateShareStyle(r.Context(), req.DocID, usr.UserID, req.ShareStyle); err != nil {
		writeError(w, err)
		return
	}
	writeEnvelope(w, statusOK, "Share style updated successfully", true)
}

func (h *DocumentHandler) SetTrashed(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req model.TrashRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	usr := middleware.Identity(r)

	if err := h.Documents.SetTrashed(r.Context(), req.DocID, usr.UserID, req.Trashed); err != nil {
		writeError(w, err)
		return
	}
	writeEnvelope(w, statusOK, "Trash status updated successfully", true)
}

// UpdatePreview sets a document-level preview property (emoji, color,
// favorited) shown on the home screen.
func (h *DocumentHandler) UpdatePreview(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req model.PreviewRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	usr := middleware.Identity(r)

	if err := h.Documents.UpdatePreviewField(r.Context(), req.DocID, usr.UserID, req.Field, req.Value); err != nil {
		writeError(w, err)
		return
	}
	writeEnvelope(w, statusOK, "Preview updated successfully", true)
}

// UpdateUserPreview sets a per-user preview property that never touches
// the document itself.
func (h *DocumentHandler) UpdateUserPreview(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req model.PreviewRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	usr := middleware.Identity(r)

	if err := h.Users.UpdateUserLevelProperty(r.Context(), usr.UserID, req.DocID, req.Field, req.Value); err != nil {
		writeError(w, err)
		return
	}
	writeEnvelope(w, statusOK, "Preview updated successfully", true)
}

func (h *DocumentHandler) CreateShareCode(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req model.ShareCodeRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	usr := middleware.Identity(r)

	// Only collaborators with write access may mint invitation codes.
	if err := h.Access.Require(r.Context(), usr.UserID, req.DocID, model.AccessWrite); err != nil {
		writeError(w, err)
		return
	}
	code, err := h.Sharing.CreateShareCode(r.Context(), req.DocID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeEnvelope(w, statusOK, "Share code created successfully", code)
}

func (h *DocumentHandler) ResolveShareCode(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	code := r.URL.Query().Get("code")

	docID, err := h.Sharing.GetDocumentIDFromShareCode(r.Context(), code)
	if err != nil {
		writeError(w, err)
		return
	}
	writeEnvelope(w, statusOK, "Share code resolved successfully", docID)
}

func (h *DocumentHandler) DeleteShareCode(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodDelete) {
		return
	}
	docID := r.URL.Query().Get("docId")
	code := r.URL.Query().Get("code")
	usr := middleware.Identity(r)

	if err := h.Access.Require(r.Context(), usr.UserID, docID, model.AccessWrite); err != nil {
		writeError(w, err)
		return
	}
	if err := h.Sharing.DeleteShareCode(r.Context(), docID, code); err != nil {
		writeError(w, err)
		return
	}
	writeEnvelope(w, statusOK, "Share code deleted successfully", true)
}

// UpdateCursor moves the caller's cursor in a document's presence pool.
// The websocket CURSOR message is the usual path; this endpoint covers
// clients updating presence out of band.
func (h *DocumentHandler) UpdateCursor(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req model.CursorRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	usr := middleware.Identity(r)

	if err := h.Presence.UpdateUserCursor(req.DocID, usr.UserID, req.Cursor); err != nil {
		writeError(w, err)
		return
	}
	writeEnvelope(w, statusOK, "Cursor updated successfully", true)
}

func (h *DocumentHandler) AddComment(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req model.CommentRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	usr := middleware.Identity(r)

	comment, err := h.Comments.CreateComment(r.Context(), req.DocID, usr.UserID, req.Text, req.Anchor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeEnvelope(w, statusOK, "Comment added successfully", comment)
}

func (h *DocumentHandler) EditComment(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPut) {
		return
	}
	var req model.EditCommentRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	usr := middleware.Identity(r)

	if err := h.Comments.EditCommentText(r.Context(), req.DocID, req.CommentID, usr.UserID, req.Text); err != nil {
		writeError(w, err)
		return
	}
	writeEnvelope(w, statusOK, "Comment updated successfully", true)
}

func (h *DocumentHandler) DeleteComment(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodDelete) {
		return
	}
	docID := r.URL.Query().Get("docId")
	commentID := r.URL.Query().Get("commentId")
	usr := middleware.Identity(r)

	if err := h.Comments.DeleteComment(r.Context(), docID, commentID, usr.UserID); err != nil {
		writeError(w, err)
		return
	}
	writeEnvelope(w, statusOK, "Comment deleted successfully", true)
}
