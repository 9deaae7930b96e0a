package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	ws "github.com/coder/websocket"
)

const (
	sendBufferSize = 16
	pingInterval   = 30 * time.Second
	readLimit      = 4096
)

// Client represents a single WebSocket connection.
type Client struct {
	hub  *Hub
	conn *ws.Conn
	send chan []byte

	mu       sync.RWMutex
	memberID *int64
}

// NewClient creates a Client tied to the given hub and connection. A non-nil
// memberID limits reminder messages to that family member.
func NewClient(hub *Hub, conn *ws.Conn, memberID *int64) *Client {
	return &Client{
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, sendBufferSize),
		memberID: memberID,
	}
}

// Subscribe changes the member filter. nil receives everything.
func (c *Client) Subscribe(memberID *int64) {
	c.mu.Lock()
	c.memberID = memberID
	c.mu.Unlock()
}

func (c *Client) wants(msg Message) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.memberID == nil || msg.MemberID == nil {
		return true
	}
	return *c.memberID == *msg.MemberID
}

// Run registers the client, starts the write pump, and runs the read pump.
// It blocks until the connection is closed, then unregisters.
func (c *Client) Run(ctx context.Context) {
	c.hub.Register(c)
	defer c.hub.Unregister(c)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.conn.SetReadLimit(readLimit)
	go c.writePump(ctx)
	c.readPump(ctx)
}

// subscribeRequest is the only message clients send:
// {"action":"subscribe","member_id":3} or {"action":"subscribe","member_id":null}.
type subscribeRequest struct {
	Action   string `json:"action"`
	MemberID *int64 `json:"member_id"`
}

// readPump handles subscribe requests and ignores anything else. It returns
// when the connection closes.
func (c *Client) readPump(ctx context.Context) {
	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			return
		}
		c.handle(data)
	}
}

func (c *Client) handle(data []byte) {
	var req subscribeRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return
	}
	if req.Action == "subscribe" {
		c.Subscribe(req.MemberID)
	}
}

// writePump drains the send channel and writes messages to the WebSocket.
// It also sends periodic pings to detect stale connections.
func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.Write(ctx, ws.MessageText, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.Ping(ctx); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
