package game

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const (
	WRITE_WAIT       = 10 * time.Second
	CLIENT_BUFFER    = 256
	BROADCAST_BUFFER = 1024
)

// Conn is the part of a websocket connection the hub writes to.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

type Client struct {
	id     string
	userID string
	conn   Conn
	send   chan []byte
	exited chan struct{}
	mu     sync.Mutex
	closed bool
}

func (c *Client) ID() string     { return c.id }
func (c *Client) UserID() string { return c.userID }

// Done is closed once the writer has stopped using the connection.
func (c *Client) Done() <-chan struct{} { return c.exited }

// Send queues e for this client only.
func (c *Client) Send(e Event) {
	data, err := json.Marshal(NewMessage(e))
	if err != nil {
		log.Printf("[WS] Send marshal error: %v", err)
		return
	}
	c.enqueue(data)
}

func (c *Client) enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// writePump is the only writer of the connection, so messages reach the
// client in the order they were queued.
func (c *Client) writePump() {
	defer close(c.exited)
	defer c.conn.Close()
	for data := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(WRITE_WAIT))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Printf("[WS] Write error for user %s: %v", c.userID, err)
			return
		}
	}
}

// Hub fans events out to every client connected to one game channel.
type Hub struct {
	name       string
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
}

func NewHub(name string) *Hub {
	return &Hub{
		name:       name,
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, BROADCAST_BUFFER),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				client.close()
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			log.Printf("[WS] %s client connected: %s (Total: %d)", h.name, client.userID, total)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.close()
				log.Printf("[WS] %s client disconnected: %s (Total: %d)", h.name, client.userID, len(h.clients))
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				if !client.enqueue(message) {
					log.Printf("[WS] %s client %s too slow, dropping", h.name, client.userID)
					delete(h.clients, client)
					client.close()
				}
			}
			h.mu.Unlock()
		}
	}
}

// Publish broadcasts e to every client. A full broadcast queue drops it.
func (h *Hub) Publish(e Event) {
	data, err := json.Marshal(NewMessage(e))
	if err != nil {
		log.Printf("[WS] Marshal error: %v", err)
		return
	}
	select {
	case h.broadcast <- data:
	default:
		log.Printf("[WS] %s broadcast channel full, dropping %s", h.name, e.EventType())
	}
}

func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// RegisterClient attaches conn to the hub and starts its writer.
func (h *Hub) RegisterClient(conn Conn, userID string) *Client {
	client := &Client{
		id:     uuid.NewString(),
		userID: userID,
		conn:   conn,
		send:   make(chan []byte, CLIENT_BUFFER),
		exited: make(chan struct{}),
	}
	go client.writePump()
	select {
	case h.register <- client:
	case <-h.done:
		client.close()
	}
	return client
}

func (h *Hub) UnregisterClient(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
		client.close()
	}
}
