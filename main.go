package main

import (
	"net/http"
	"os"

	"github.com/joho/godotenv"

	"scoresync/config/database"
	"scoresync/internal/access"
	docHandler "scoresync/internal/document"
	"scoresync/internal/document/service"
	"scoresync/internal/presence"
	"scoresync/internal/sharing"
	"scoresync/internal/user"
	"scoresync/pkg/clock"
	"scoresync/pkg/logger"
	"scoresync/router"
	"scoresync/socket"
	"scoresync/store"
)

func main() {
	if err := godotenv.Load(); err != nil {
		logger.Sugar.Info("No .env file found, using environment variables from OS")
	}
	logger.Init()

	// The durable engine is a collaborator. Postgres when configured,
	// otherwise the in-memory substitute for local development.
	var docStore, userStore, codeStore store.DocumentStore
	if os.Getenv("host") != "" {
		db, connStr := database.Connect()
		defer db.Close()
		docStore = store.NewPostgres(db, connStr, "documents")
		userStore = store.NewPostgres(db, connStr, "users")
		codeStore = store.NewPostgres(db, connStr, "sharecodes")
	} else {
		logger.Sugar.Info("No database configured, using in-memory stores")
		docStore = store.NewMemory()
		userStore = store.NewMemory()
		codeStore = store.NewMemory()
	}
	presStore := store.NewPresence()

	now := clock.Monotonic()
	users := user.NewService(userStore)
	acc := access.NewService(docStore, users, logger.Sugar)
	pres := presence.NewService(presStore, now)
	updates := service.NewUpdateService(docStore, acc, now, logger.Sugar)
	docs := service.NewDocumentService(docStore, users, acc, now, logger.Sugar)
	subs := service.NewSubscribeService(docStore, pres, acc, logger.Sugar)
	comments, err := service.NewCommentService(docStore, acc, now)
	if err != nil {
		logger.Sugar.Fatalf("Failed to build comment service: %v", err)
	}
	shareCodes := sharing.NewService(codeStore)

	hub := socket.NewHub(subs, updates, pres)
	go hub.Run()

	h := &docHandler.DocumentHandler{
		Documents: docs,
		Updates:   updates,
		Comments:  comments,
		Access:    acc,
		Sharing:   shareCodes,
		Users:     users,
		Presence:  pres,
		Hub:       hub,
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	logger.Sugar.Infof("scoresync backend listening on :%s", port)
	if err := http.ListenAndServe(":"+port, router.Setup(h, hub)); err != nil {
		logger.Sugar.Fatalf("Server exited: %v", err)
	}
}
