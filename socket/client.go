package socket

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"scoresync/internal/document/model"
	"scoresync/pkg/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// CheckOrigin allows connections from the web client's dev server.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWs upgrades the request and registers the connection with the hub.
// Identity comes from the auth middleware; the document id from the query.
func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request, usr model.UserIdentity) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Sugar.Error(err)
		return
	}

	docID := r.URL.Query().Get("docId")
	if docID == "" {
		logger.Sugar.Error("Missing docId")
		conn.Close()
		return
	}

	client := &Client{
		Hub:     hub,
		Conn:    conn,
		DocID:   docID,
		User:    usr,
		Session: uuid.NewString(),
		Send:    make(chan []byte, 256),
	}

	client.Hub.Register <- client

	go client.writePump()
	go client.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.Hub.Unregister <- c
		c.Conn.Close()
	}()

	for {
		_, rawMessage, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Sugar.Errorf("error: %v", err)
			}
			break
		}

		var envelope model.Envelope
		if err := json.Unmarshal(rawMessage, &envelope); err != nil {
			logger.Sugar.Errorf("Error unmarshalling envelope: %v", err)
			continue
		}

		// The user and document ids are server-authoritative; payloads can
		// never act on behalf of another user or document.
		switch envelope.Message {
		case model.MsgUpdate:
			var fields map[string]any
			if err := json.Unmarshal(envelope.Data, &fields); err != nil {
				c.push(model.MsgError, "malformed update payload")
				continue
			}
			if err := c.Hub.updates.UpdatePartial(context.Background(), c.DocID, fields, c.User.UserID); err != nil {
				logger.Sugar.Warnf("Update rejected for user %s on document %s: %v", c.User.UserID, c.DocID, err)
				c.push(model.MsgError, err.Error())
			}
		case model.MsgCursor:
			var cursor map[string]any
			if err := json.Unmarshal(envelope.Data, &cursor); err != nil {
				c.push(model.MsgError, "malformed cursor payload")
				continue
			}
			if err := c.Hub.presence.UpdateUserCursor(c.DocID, c.User.UserID, cursor); err != nil {
				c.push(model.MsgError, err.Error())
			}
		default:
			logger.Sugar.Warnf("Unknown message %q from user %s", envelope.Message, c.User.UserID)
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case message, ok := <-c.Send:
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			c.Conn.WriteMessage(websocket.TextMessage, message)
		case <-ticker.C:
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return // Connection is dead
			}
		}
	}
}
