package realtime

import (
	"context"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

// Transport is the WebSocket connection the coordinator probes and
// reconnects, grounded on go/ingest/ws_api.go's use of *websocket.Conn
// (SetWriteDeadline, WriteControl ping, ReadMessage).
type Transport interface {
	// Probe checks liveness without a full reconnect (spec §4.5 step 3).
	Probe(ctx context.Context) bool
	// Reconnect tears down and re-establishes the connection (step 4).
	Reconnect(ctx context.Context) error
	Close() error
}

// wsTransport is the production Transport, dialing a single websocket
// endpoint and using a ping control frame as the liveness probe — the
// same mechanism go/ingest/ws_api.go's write pump uses
// (conn.WriteControl with a deadline) but for a ping rather than a close
// frame.
type wsTransport struct {
	url  *url.URL
	dial func(ctx context.Context, url string) (*websocket.Conn, error)
	conn *websocket.Conn
}

const wsProbeTimeout = 2 * time.Second

// NewWebSocketTransport builds a Transport that dials rawURL on demand.
func NewWebSocketTransport(rawURL string) (Transport, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, errors.Wrap(err, "parsing websocket url")
	}
	return &wsTransport{url: u, dial: dialWebsocket}, nil
}

func dialWebsocket(ctx context.Context, rawURL string) (*websocket.Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, rawURL, nil)
	return conn, err
}

func (t *wsTransport) Probe(ctx context.Context) bool {
	if t.conn == nil {
		return false
	}
	deadline := time.Now().Add(wsProbeTimeout)
	if err := t.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
		return false
	}
	return true
}

func (t *wsTransport) Reconnect(ctx context.Context) error {
	if t.conn != nil {
		_ = t.conn.Close()
		t.conn = nil
	}
	conn, err := t.dial(ctx, t.url.String())
	if err != nil {
		return errors.Wrap(err, "reconnecting websocket transport")
	}
	t.conn = conn
	return nil
}

func (t *wsTransport) Close() error {
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	return err
}
