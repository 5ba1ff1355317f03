package broadcast

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

// Envelope is the frame exchanged over the websocket in both directions.
type Envelope struct {
	Event Event           `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outbound struct {
	Event Event       `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

// WSConnection is a Connection over a gorilla websocket. Writes are
// serialised; reads must come from a single goroutine.
type WSConnection struct {
	id     string
	userID int64
	conn   *websocket.Conn

	writeMu sync.Mutex
}

func NewWSConnection(conn *websocket.Conn, userID int64) *WSConnection {
	return &WSConnection{id: uuid.NewString(), userID: userID, conn: conn}
}

func (c *WSConnection) ID() string    { return c.id }
func (c *WSConnection) UserID() int64 { return c.userID }

func (c *WSConnection) Send(event Event, payload interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteJSON(outbound{Event: event, Data: payload})
}

// Receive blocks for the next client frame.
func (c *WSConnection) Receive() (Envelope, error) {
	var env Envelope
	err := c.conn.ReadJSON(&env)
	return env, err
}

func (c *WSConnection) Close() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return c.conn.Close()
}
