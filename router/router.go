package router

import (
	"net/http"

	docHandler "scoresync/internal/document"
	"scoresync/middleware"
	"scoresync/socket"
)

func Setup(h *docHandler.DocumentHandler, hub *socket.Hub) http.Handler {
	mux := http.NewServeMux()

	// WebSocket
	wsHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		socket.ServeWs(hub, w, r, middleware.Identity(r))
	})
	mux.Handle("/ws", middleware.AuthMiddleware(wsHandler))

	// REST API
	auth := middleware.AuthMiddleware

	mux.Handle("/api/documents/create", auth(http.HandlerFunc(h.CreateDocument)))
	mux.Handle("/api/documents/delete", auth(http.HandlerFunc(h.DeleteDocument)))
	mux.Handle("/api/documents/update", auth(http.HandlerFunc(h.UpdatePartialDocument)))
	mux.Handle("/api/documents", auth(http.HandlerFunc(h.GetDocuments)))
	mux.Handle("/api/documents/access", auth(http.HandlerFunc(h.GetAccessLevel)))
	mux.Handle("/api/documents/share", auth(http.HandlerFunc(h.ShareWithUser)))
	mux.Handle("/api/documents/unshare", auth(http.HandlerFunc(h.UnshareWithUser)))
	mux.Handle("/api/documents/sharestyle", auth(http.HandlerFunc(h.UpdateShareStyle)))
	mux.Handle("/api/documents/trash", auth(http.HandlerFunc(h.SetTrashed)))
	mux.Handle("/api/documents/preview", auth(http.HandlerFunc(h.UpdatePreview)))
	mux.Handle("/api/documents/preview/user", auth(http.HandlerFunc(h.UpdateUserPreview)))
	mux.Handle("/api/documents/cursor", auth(http.HandlerFunc(h.UpdateCursor)))
	mux.Handle("/api/documents/comments/add", auth(http.HandlerFunc(h.AddComment)))
	mux.Handle("/api/documents/comments/edit", auth(http.HandlerFunc(h.EditComment)))
	mux.Handle("/api/documents/comments/delete", auth(http.HandlerFunc(h.DeleteComment)))
	mux.Handle("/api/sharecode/create", auth(http.HandlerFunc(h.CreateShareCode)))
	mux.Handle("/api/sharecode", auth(http.HandlerFunc(h.ResolveShareCode)))
	mux.Handle("/api/sharecode/delete", auth(http.HandlerFunc(h.DeleteShareCode)))

	return middleware.CORSMiddleware(mux)
}
