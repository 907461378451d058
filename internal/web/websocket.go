package web

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/edvart/matchday/internal/broadcast"
)

const (
	wsWriteWait      = 10 * time.Second
	wsPongWait       = 60 * time.Second
	wsPingPeriod     = (wsPongWait * 9) / 10
	wsMaxMessageSize = 4096
	wsSendBuffer     = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Rooms are public read-only feeds.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsRequest is a control message sent by a WebSocket client.
type wsRequest struct {
	Action string `json:"action"`
	Room   string `json:"room"`
}

// wsReply acknowledges a control message.
type wsReply struct {
	Type    string         `json:"type"`
	Room    broadcast.Room `json:"room,omitempty"`
	Message string         `json:"message,omitempty"`
}

// wsClient is one WebSocket connection joined to any number of rooms.
type wsClient struct {
	conn *websocket.Conn
	hub  *broadcast.Hub
	log  logrus.FieldLogger

	send chan []byte
	done chan struct{}

	mu    sync.Mutex
	rooms map[broadcast.Room]*broadcast.Subscription
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	c := &wsClient{
		conn:  conn,
		hub:   s.hub,
		log:   s.log.WithField("remote", r.RemoteAddr),
		send:  make(chan []byte, wsSendBuffer),
		done:  make(chan struct{}),
		rooms: make(map[broadcast.Room]*broadcast.Subscription),
	}
	c.log.Debug("websocket client connected")

	go c.writePump()
	c.readPump()
}

// readPump handles join and leave requests until the connection fails.
func (c *wsClient) readPump() {
	defer func() {
		c.leaveAll()
		close(c.done)
		c.conn.Close()
		c.log.Debug("websocket client disconnected")
	}()

	c.conn.SetReadLimit(wsMaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.WithError(err).Warn("websocket read failed")
			}
			return
		}
		c.handleRequest(data)
	}
}

func (c *wsClient) handleRequest(data []byte) {
	var req wsRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.reply(wsReply{Type: "error", Message: "invalid message"})
		return
	}
	room, err := broadcast.ParseRoom(req.Room)
	if err != nil {
		c.reply(wsReply{Type: "error", Message: err.Error()})
		return
	}

	switch req.Action {
	case "join":
		c.join(room)
		c.reply(wsReply{Type: "joined", Room: room})
	case "leave":
		c.leave(room)
		c.reply(wsReply{Type: "left", Room: room})
	default:
		c.reply(wsReply{Type: "error", Message: "unknown action " + req.Action})
	}
}

func (c *wsClient) join(room broadcast.Room) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.rooms[room]; ok {
		return
	}
	sub := c.hub.Join(room)
	c.rooms[room] = sub
	go c.forward(sub)
}

func (c *wsClient) leave(room broadcast.Room) {
	c.mu.Lock()
	sub, ok := c.rooms[room]
	delete(c.rooms, room)
	c.mu.Unlock()
	if ok {
		sub.Close()
	}
}

func (c *wsClient) leaveAll() {
	c.mu.Lock()
	subs := c.rooms
	c.rooms = make(map[broadcast.Room]*broadcast.Subscription)
	c.mu.Unlock()
	for _, sub := range subs {
		sub.Close()
	}
}

// forward copies one room's messages into the connection's send queue.
func (c *wsClient) forward(sub *broadcast.Subscription) {
	for msg := range sub.Messages() {
		data, err := json.Marshal(msg)
		if err != nil {
			c.log.WithError(err).Warn("failed to encode websocket message")
			continue
		}
		c.enqueue(data)
	}
}

func (c *wsClient) reply(r wsReply) {
	data, err := json.Marshal(r)
	if err != nil {
		return
	}
	c.enqueue(data)
}

func (c *wsClient) enqueue(data []byte) {
	select {
	case <-c.done:
	case c.send <- data:
	default:
		c.log.Warn("dropping websocket message for slow client")
	}
}

// writePump serializes writes to the connection and keeps it alive with pings.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
