package main

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/rundownhq/collab-core/internal/ot"
)

// wsWriteTimeout bounds a single outbound write, the way
// go/ingest/ws_api.go bounds its write pump rather than relying on
// websocket ping/pong.
const wsWriteTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsClient is one connected editor's realtime socket: operations it sends
// are submitted to the document's engine; operations applied from any
// source are relayed back out via send.
type wsClient struct {
	conn   *websocket.Conn
	userID string
	outCh  chan ot.Operation
	done   chan struct{}
}

func (c *wsClient) send(op ot.Operation) {
	select {
	case c.outCh <- op:
	case <-c.done:
	default:
		log.WithField("user", c.userID).Warn("realtime client outbound buffer full; dropping operation")
	}
}

func (c *wsClient) writePump() {
	for {
		select {
		case op := <-c.outCh:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := c.conn.WriteJSON(op); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// serveRealtime upgrades the request to a websocket and pumps operations
// in both directions for the duration of the connection, grounded on
// go/ingest/ws_api.go's per-connection read/write loop shape.
func serveRealtime(registry *sessionRegistry, w http.ResponseWriter, r *http.Request) {
	documentID := strings.TrimPrefix(r.URL.Path, "/ws/")
	if documentID == "" {
		http.Error(w, "missing document id", http.StatusBadRequest)
		return
	}
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		http.Error(w, "missing userId query parameter", http.StatusBadRequest)
		return
	}

	sess, err := registry.getOrCreate(r.Context(), documentID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	defer conn.Close()

	client := &wsClient{conn: conn, userID: userID, outCh: make(chan ot.Operation, 64), done: make(chan struct{})}
	sess.addClient(client)
	defer sess.removeClient(client)

	go client.writePump()
	defer close(client.done)

	for {
		var op ot.Operation
		if err := conn.ReadJSON(&op); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.WithError(err).WithField("document", documentID).Warn("realtime connection closed unexpectedly")
			}
			return
		}
		op.UserID = userID
		if err := sess.engine.Submit(op); err != nil {
			errPayload := struct {
				Error string        `json:"error"`
				OpID  ot.OperationID `json:"opId"`
			}{Error: err.Error(), OpID: op.ID}
			b, _ := json.Marshal(errPayload)
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			_ = conn.WriteMessage(websocket.TextMessage, b)
		}
	}
}
