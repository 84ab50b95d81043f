package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/jkeevk/aimlul-admin/internal/logutil"
)

const streamParamsTimeout = 30 * time.Second

// wsChannel adapts a websocket connection to the channel interface the
// session manager streams over.
type wsChannel struct {
	conn *websocket.Conn
}

func (c *wsChannel) Send(ctx context.Context, text string) error {
	return c.conn.Write(ctx, websocket.MessageText, []byte(text))
}

func (c *wsChannel) Receive(ctx context.Context) (string, error) {
	_, data, err := c.conn.Read(ctx)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (c *wsChannel) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "")
}

// LogsWS upgrades the request to a websocket and streams container logs
// over it. The client sends one JSON frame naming the target, then only
// receives until it closes the socket.
func LogsWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		log.Printf("[ws] accept failed: %v", err)
		return
	}
	defer conn.CloseNow()

	ch := &wsChannel{conn: conn}
	sessionID := WSManager.Connect(ch)
	defer WSManager.Disconnect(sessionID)

	readCtx, cancel := context.WithTimeout(r.Context(), streamParamsTimeout)
	frame, err := ch.Receive(readCtx)
	cancel()
	if err != nil {
		log.Printf("[ws] session %s: no target frame: %v", sessionID, err)
		return
	}

	var req targetRequest
	if err := json.Unmarshal([]byte(frame), &req); err != nil {
		_ = ch.Send(r.Context(), "ERROR: invalid parameters")
		return
	}
	target, err := resolveTarget(req)
	if err != nil {
		_ = ch.Send(r.Context(), "ERROR: "+err.Error())
		return
	}

	if err := WSManager.Stream(r.Context(), sessionID, target); err != nil {
		log.Printf("[ws] session %s ended: %v", sessionID, logutil.SanitizeForLog(err.Error()))
	}
}
