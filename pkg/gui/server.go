package gui

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/decred/slog"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Server pushes serialized state snapshots to GUI front-ends over WebSocket
// and forwards client actions to the role loop. The core communicates with
// it through a single outbox buffer plus a dataExists flag: the core writes,
// the connection handlers read. No other cross-thread mutation of core state
// occurs.
type Server struct {
	log  slog.Logger
	port int

	upgrader websocket.Upgrader

	mu         sync.Mutex
	clients    map[string]*wsClient
	outbox     []byte
	dataExists bool

	incoming chan Message
	srv      *http.Server
}

type wsClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// NewServer creates a GUI server listening on the given port once started.
func NewServer(port int, log slog.Logger) *Server {
	return &Server{
		log:  log,
		port: port,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The GUI is a local front-end; origin checks add nothing.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients:  make(map[string]*wsClient),
		incoming: make(chan Message, 64),
	}
}

// Incoming returns the channel of client→server actions.
func (s *Server) Incoming() <-chan Message { return s.incoming }

// Start begins accepting WebSocket connections in a background goroutine.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleWS)
	s.srv = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: mux,
	}
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Errorf("GUI server error: %v", err)
		}
	}()
	s.log.Infof("GUI WebSocket server listening on :%d", s.port)
	return nil
}

// Stop shuts the server down.
func (s *Server) Stop() {
	if s.srv != nil {
		s.srv.Close()
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warnf("WebSocket upgrade failed: %v", err)
		return
	}

	client := &wsClient{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, 16),
	}

	s.mu.Lock()
	s.clients[client.id] = client
	// A late-connecting GUI receives the last snapshot immediately.
	if s.dataExists {
		select {
		case client.send <- s.outbox:
		default:
		}
	}
	s.mu.Unlock()

	s.log.Debugf("GUI client %s connected", client.id)
	go s.writeLoop(client)
	go s.readLoop(client)
}

func (s *Server) writeLoop(c *wsClient) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) readLoop(c *wsClient) {
	defer func() {
		s.mu.Lock()
		delete(s.clients, c.id)
		s.mu.Unlock()
		close(c.send)
		c.conn.Close()
		s.log.Debugf("GUI client %s disconnected", c.id)
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			s.log.Warnf("GUI client %s sent invalid JSON: %v", c.id, err)
			continue
		}
		select {
		case s.incoming <- msg:
		default:
			s.log.Warnf("GUI action dropped, incoming queue full")
		}
	}
}

// Send serializes the message into the outbox and pushes it to every
// connected client. Safe to call with no clients connected.
func (s *Server) Send(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		s.log.Errorf("GUI message marshal failed: %v", err)
		return
	}

	s.mu.Lock()
	s.outbox = data
	s.dataExists = true
	for _, c := range s.clients {
		select {
		case c.send <- data:
		default:
			// Slow client; it catches up from the outbox on reconnect.
		}
	}
	s.mu.Unlock()
}
