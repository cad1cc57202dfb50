// ABOUTME: Per-connection handling for websocket clients
// ABOUTME: Performs the handshake, routes messages and runs the writer
package server

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Resonate-Protocol/proxaudio/pkg/protocol"
	"github.com/Resonate-Protocol/proxaudio/pkg/spatial"
)

const (
	// sendBufferSize is the per-client outbound queue length
	sendBufferSize = 256

	// maxMessageSize bounds inbound frames; a 50 ms stereo f32 chunk at 48 kHz is 19 KB
	maxMessageSize = 1 << 20

	writeDeadline = 10 * time.Second
	pingInterval  = 30 * time.Second
)

// Client is a connected websocket client
type Client struct {
	ID          string
	Name        string
	EntityID    string
	Roles       []string
	Conn        *websocket.Conn
	ConnectedAt time.Time

	sendChan  chan interface{}
	done      chan struct{}
	closeOnce sync.Once
}

func newClient(id string, hello protocol.ClientHello, conn *websocket.Conn) *Client {
	return &Client{
		ID:          id,
		Name:        hello.SocketName,
		EntityID:    hello.EntityID,
		Roles:       hello.Roles,
		Conn:        conn,
		ConnectedAt: time.Now(),
		sendChan:    make(chan interface{}, sendBufferSize),
		done:        make(chan struct{}),
	}
}

// HasRole reports whether the client declared role in its hello
func (c *Client) HasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// enqueue queues msg for the writer. It never blocks and reports false
// when the client is gone or its queue is full.
func (c *Client) enqueue(msg interface{}) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.sendChan <- msg:
		return true
	default:
		return false
	}
}

// close stops the writer; the send queue is left open for late senders
func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// handleWebSocket upgrades the request and serves the connection
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.shuttingDown() {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}

	if s.config.Debug {
		log.Printf("[DEBUG] New WebSocket connection from %s", r.RemoteAddr)
	}

	s.handleConnection(conn)
}

// handleConnection runs one client from handshake to disconnect
func (s *Server) handleConnection(conn *websocket.Conn) {
	defer conn.Close()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(protocol.HandshakeTimeout))

	_, data, err := conn.ReadMessage()
	if err != nil {
		log.Printf("Error reading hello: %v", err)
		return
	}

	env, err := protocol.ParseEnvelope(data)
	if err != nil {
		log.Printf("Error parsing hello: %v", err)
		return
	}
	if env.Type != protocol.TypeClientHello {
		log.Printf("Expected %s, got %s", protocol.TypeClientHello, env.Type)
		writeError(conn, "expected "+protocol.TypeClientHello)
		return
	}

	var hello protocol.ClientHello
	if err := env.Decode(&hello); err != nil {
		log.Printf("Error decoding hello: %v", err)
		return
	}
	if hello.SocketName == "" {
		log.Printf("Client hello missing socket_name")
		writeError(conn, "client/hello missing socket_name")
		return
	}

	conn.SetReadDeadline(time.Time{})

	client := newClient(uuid.New().String(), hello, conn)
	s.world.add(client)
	s.metrics.ClientConnected()
	log.Printf("Client connected: %s (socket %s, entity %q, roles %v)", client.Name, client.ID, client.EntityID, client.Roles)

	defer func() {
		s.world.remove(client.ID)
		s.registry.SocketClosed(client.ID)
		client.close()
		s.metrics.ClientDisconnected()
		log.Printf("Client disconnected: %s", client.Name)
	}()

	client.enqueue(protocol.Message{
		Type: protocol.TypeServerHello,
		Payload: protocol.ServerHello{
			ServerID: s.serverID,
			Name:     s.config.Name,
			SocketID: client.ID,
			Version:  protocol.ProtocolVersion,
		},
	})

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.clientWriter(client)
	}()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			s.handleBinary(client, data)
		case websocket.TextMessage:
			if !s.handleClientMessage(client, data) {
				return
			}
		}
	}
}

// clientWriter drains the client's queue onto the connection
func (s *Server) clientWriter(client *Client) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-client.done:
			return

		case msg := <-client.sendChan:
			client.Conn.SetWriteDeadline(time.Now().Add(writeDeadline))

			switch v := msg.(type) {
			case []byte:
				if err := client.Conn.WriteMessage(websocket.BinaryMessage, v); err != nil {
					log.Printf("Error writing binary message to %s: %v", client.Name, err)
					client.Conn.Close()
					return
				}
			default:
				data, err := json.Marshal(v)
				if err != nil {
					log.Printf("Error marshaling message: %v", err)
					continue
				}
				if err := client.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
					log.Printf("Error writing text message to %s: %v", client.Name, err)
					client.Conn.Close()
					return
				}
			}

		case <-ticker.C:
			if err := client.Conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeDeadline)); err != nil {
				return
			}
		}
	}
}

// handleBinary relays a data frame through the registry
func (s *Server) handleBinary(client *Client, data []byte) {
	frame, err := protocol.DecodeDataFrame(data)
	if err != nil {
		s.metrics.FrameDropped("malformed")
		if s.config.Debug {
			log.Printf("[DEBUG] Dropping frame from %s: %v", client.Name, err)
		}
		return
	}

	s.registry.ForwardData(client.ID, frame.StreamID, frame.Sequence, frame.Samples)
}

// handleClientMessage processes a JSON message. It returns false when the
// client said goodbye.
func (s *Server) handleClientMessage(client *Client, data []byte) bool {
	env, err := protocol.ParseEnvelope(data)
	if err != nil {
		log.Printf("Error parsing message from %s: %v", client.Name, err)
		return true
	}

	s.metrics.MessageReceived(env.Type)
	if s.config.Debug {
		log.Printf("[DEBUG] %s sent %s", client.Name, env.Type)
	}

	switch env.Type {
	case protocol.TypeStreamStart:
		var req protocol.StreamStart
		if err := env.Decode(&req); err != nil {
			s.sendError(client, err.Error())
			return true
		}
		// The registry answers the origin with started or rejected
		s.registry.StartStream(client.ID, req)

	case protocol.TypeStreamStop:
		var req protocol.StreamStop
		if err := env.Decode(&req); err != nil {
			s.sendError(client, err.Error())
			return true
		}
		s.registry.StopStream(client.ID, req.StreamID)

	case protocol.TypeEntityUpdate:
		var update protocol.EntityUpdate
		if err := env.Decode(&update); err != nil {
			s.sendError(client, err.Error())
			return true
		}
		s.handleEntityUpdate(client, update)

	case protocol.TypeClientGoodbye:
		var bye protocol.ClientGoodbye
		env.Decode(&bye)
		log.Printf("Client %s said goodbye: %s", client.Name, bye.Reason)
		return false

	default:
		log.Printf("Unknown message type from %s: %s", client.Name, env.Type)
	}

	return true
}

// handleEntityUpdate stores the transform of the client's own entity
func (s *Server) handleEntityUpdate(client *Client, update protocol.EntityUpdate) {
	if client.EntityID == "" {
		s.sendError(client, "entity/update from a socket without an entity")
		return
	}
	if update.EntityID != "" && update.EntityID != client.EntityID {
		s.sendError(client, "entity/update may only update entity "+client.EntityID)
		return
	}

	s.world.UpdateEntity(client.EntityID, spatial.Transform{
		Position: spatial.V(update.Position),
		Forward:  spatial.V(update.Forward),
	})
}

func (s *Server) sendError(client *Client, message string) {
	client.enqueue(protocol.Message{Type: protocol.TypeError, Payload: protocol.ErrorMessage{Message: message}})
}

// writeError writes directly, for failures before the writer starts
func writeError(conn *websocket.Conn, message string) {
	conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	conn.WriteJSON(protocol.Message{Type: protocol.TypeError, Payload: protocol.ErrorMessage{Message: message}})
}
