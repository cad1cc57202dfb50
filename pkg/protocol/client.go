// ABOUTME: WebSocket client for the proximity audio protocol
// ABOUTME: Handles connection, handshake, stream control and message routing
package protocol

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// DefaultPath is the WebSocket endpoint on the server
	DefaultPath = "/proxaudio"

	// HandshakeTimeout bounds the wait for server/hello and stream acks
	HandshakeTimeout = 5 * time.Second
)

var (
	// ErrNotConnected is returned when sending on a closed client
	ErrNotConnected = errors.New("not connected")
	// ErrStreamEnded is returned when sending on a stream the server has ended
	ErrStreamEnded = errors.New("stream ended by server")
)

// RejectedError is returned by StartStream when the server refuses the stream
type RejectedError struct {
	StreamID string
	Reason   string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("stream %s rejected: %s", e.StreamID, e.Reason)
}

// Config holds client configuration
type Config struct {
	ServerAddr string
	Path       string
	Name       string
	EntityID   string
	Roles      []string
	Debug      bool
}

// Client represents a WebSocket client
type Client struct {
	config  Config
	conn    *websocket.Conn
	mu      sync.RWMutex
	writeMu sync.Mutex

	// Message channels
	Streams    chan StreamEvent
	Transforms chan EntityTransform
	Ended      chan StreamEnded

	// Stream control
	pending map[string]chan error
	ended   map[string]string

	// State
	connected bool
	hello     ServerHello
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewClient creates a new WebSocket client
func NewClient(config Config) *Client {
	if config.Path == "" {
		config.Path = DefaultPath
	}
	if len(config.Roles) == 0 {
		config.Roles = []string{RoleListener}
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Client{
		config:       config,
		Streams:    make(chan StreamEvent, 256),
		Transforms: make(chan EntityTransform, 64),
		Ended:      make(chan StreamEnded, 16),
		pending:    make(map[string]chan error),
		ended:      make(map[string]string),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// Connect establishes the WebSocket connection and performs the handshake
func (c *Client) Connect(ctx context.Context) error {
	u := url.URL{Scheme: "ws", Host: c.config.ServerAddr, Path: c.config.Path}
	log.Printf("Connecting to %s", u.String())

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	if err := c.handshake(); err != nil {
		c.Close()
		return fmt.Errorf("handshake failed: %w", err)
	}

	go c.readMessages()

	return nil
}

// handshake performs the protocol handshake
func (c *Client) handshake() error {
	msg := Message{
		Type: TypeClientHello,
		Payload: ClientHello{
			SocketName: c.config.Name,
			EntityID:   c.config.EntityID,
			Roles:      c.config.Roles,
			Version:    ProtocolVersion,
		},
	}

	if err := c.sendJSON(msg); err != nil {
		return fmt.Errorf("failed to send client/hello: %w", err)
	}

	// Wait for server/hello (with timeout)
	c.conn.SetReadDeadline(time.Now().Add(HandshakeTimeout))
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("failed to read server/hello: %w", err)
	}
	c.conn.SetReadDeadline(time.Time{})

	env, err := ParseEnvelope(data)
	if err != nil {
		return err
	}
	if env.Type != TypeServerHello {
		return fmt.Errorf("expected %s, got %s", TypeServerHello, env.Type)
	}

	var hello ServerHello
	if err := env.Decode(&hello); err != nil {
		return err
	}

	c.mu.Lock()
	c.hello = hello
	c.mu.Unlock()

	log.Printf("Handshake complete with server %s (socket %s)", hello.Name, hello.SocketID)
	return nil
}

// ServerHello returns the server's handshake response
func (c *Client) ServerHello() ServerHello {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hello
}

// sendJSON sends a JSON message
func (c *Client) sendJSON(msg Message) error {
	c.mu.RLock()
	conn, connected := c.conn, c.connected
	c.mu.RUnlock()

	if !connected {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteJSON(msg)
}

func (c *Client) sendBinary(data []byte) error {
	c.mu.RLock()
	conn, connected := c.conn, c.connected
	c.mu.RUnlock()

	if !connected {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteMessage(websocket.BinaryMessage, data)
}

// readMessages reads and routes incoming messages
func (c *Client) readMessages() {
	defer close(c.done)
	defer c.Close()

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.ctx.Done():
			default:
				log.Printf("Read error: %v", err)
			}
			return
		}

		switch messageType {
		case websocket.BinaryMessage:
			c.handleBinaryMessage(data)
		case websocket.TextMessage:
			c.handleJSONMessage(data)
		default:
			log.Printf("Unknown WebSocket message type: %d", messageType)
		}
	}
}

// handleBinaryMessage handles stream data frames
func (c *Client) handleBinaryMessage(data []byte) {
	frame, err := DecodeDataFrame(data)
	if err != nil {
		if c.config.Debug {
			log.Printf("[DEBUG] Dropping binary message: %v", err)
		}
		return
	}

	c.emit(StreamEvent{Kind: EventData, Frame: frame})
}

// emit queues a stream event behind every event read before it
func (c *Client) emit(ev StreamEvent) {
	select {
	case c.Streams <- ev:
	case <-c.ctx.Done():
	}
}

// handleJSONMessage routes JSON messages
func (c *Client) handleJSONMessage(data []byte) {
	env, err := ParseEnvelope(data)
	if err != nil {
		log.Printf("Failed to parse JSON message: %v", err)
		return
	}

	if c.config.Debug {
		log.Printf("[DEBUG] Received message type: %s", env.Type)
	}

	switch env.Type {
	case TypeStreamStart:
		var start StreamStart
		if err := env.Decode(&start); err != nil {
			log.Printf("%v", err)
			return
		}
		c.emit(StreamEvent{Kind: EventStart, Start: start})

	case TypeStreamStop:
		var stop StreamStop
		if err := env.Decode(&stop); err != nil {
			log.Printf("%v", err)
			return
		}
		c.emit(StreamEvent{Kind: EventStop, Stop: stop})

	case TypeEntityTransform:
		var tr EntityTransform
		if err := env.Decode(&tr); err != nil {
			log.Printf("%v", err)
			return
		}
		// Transforms are refreshed every tick; a stale one can be dropped
		select {
		case c.Transforms <- tr:
		default:
		}

	case TypeStreamStarted:
		var ack StreamStarted
		if err := env.Decode(&ack); err != nil {
			log.Printf("%v", err)
			return
		}
		c.resolve(ack.StreamID, nil)

	case TypeStreamRejected:
		var rej StreamRejected
		if err := env.Decode(&rej); err != nil {
			log.Printf("%v", err)
			return
		}
		c.resolve(rej.StreamID, &RejectedError{StreamID: rej.StreamID, Reason: rej.Reason})

	case TypeStreamEnded:
		var end StreamEnded
		if err := env.Decode(&end); err != nil {
			log.Printf("%v", err)
			return
		}
		c.mu.Lock()
		c.ended[end.StreamID] = end.Reason
		c.mu.Unlock()
		log.Printf("Stream %s ended by server: %s", end.StreamID, end.Reason)
		select {
		case c.Ended <- end:
		default:
		}

	case TypeError:
		var e ErrorMessage
		if err := env.Decode(&e); err == nil {
			log.Printf("Server error: %s", e.Message)
		}

	default:
		log.Printf("Unknown message type: %s", env.Type)
	}
}

func (c *Client) resolve(streamID string, err error) {
	c.mu.Lock()
	ch, ok := c.pending[streamID]
	delete(c.pending, streamID)
	c.mu.Unlock()

	if ok {
		ch <- err
	}
}

// StartStream requests a new stream and waits for the server's answer.
// An empty StreamID is replaced with a random one.
func (c *Client) StartStream(ctx context.Context, start StreamStart) (string, error) {
	if start.StreamID == "" {
		start.StreamID = uuid.New().String()
	}
	if start.SourceEntityID == "" {
		start.SourceEntityID = c.config.EntityID
	}

	result := make(chan error, 1)
	c.mu.Lock()
	c.pending[start.StreamID] = result
	delete(c.ended, start.StreamID)
	c.mu.Unlock()

	cleanup := func() {
		c.mu.Lock()
		delete(c.pending, start.StreamID)
		c.mu.Unlock()
	}

	if err := c.sendJSON(Message{Type: TypeStreamStart, Payload: start}); err != nil {
		cleanup()
		return "", fmt.Errorf("failed to send %s: %w", TypeStreamStart, err)
	}

	timer := time.NewTimer(HandshakeTimeout)
	defer timer.Stop()

	select {
	case err := <-result:
		if err != nil {
			return "", err
		}
		return start.StreamID, nil
	case <-timer.C:
		cleanup()
		return "", fmt.Errorf("timed out waiting for stream %s acknowledgement", start.StreamID)
	case <-ctx.Done():
		cleanup()
		return "", ctx.Err()
	case <-c.done:
		cleanup()
		return "", ErrNotConnected
	}
}

// SendChunk sends one data frame. It returns ErrStreamEnded once the server
// has ended the stream.
func (c *Client) SendChunk(streamID string, sequence uint64, samples []byte) error {
	c.mu.RLock()
	_, ended := c.ended[streamID]
	c.mu.RUnlock()
	if ended {
		return ErrStreamEnded
	}

	data, err := EncodeDataFrame(DataFrame{StreamID: streamID, Sequence: sequence, Samples: samples})
	if err != nil {
		return err
	}
	return c.sendBinary(data)
}

// StopStream ends a stream this client started
func (c *Client) StopStream(streamID string) error {
	c.mu.Lock()
	_, ended := c.ended[streamID]
	delete(c.ended, streamID)
	c.mu.Unlock()
	if ended {
		return nil
	}

	return c.sendJSON(Message{Type: TypeStreamStop, Payload: StreamStop{StreamID: streamID}})
}

// SendEntityUpdate reports the transform of this client's entity
func (c *Client) SendEntityUpdate(update EntityUpdate) error {
	if update.EntityID == "" {
		update.EntityID = c.config.EntityID
	}
	return c.sendJSON(Message{Type: TypeEntityUpdate, Payload: update})
}

// SendGoodbye sends a client/goodbye message before disconnecting
func (c *Client) SendGoodbye(reason string) error {
	return c.sendJSON(Message{Type: TypeClientGoodbye, Payload: ClientGoodbye{Reason: reason}})
}

// Done is closed when the connection's reader exits
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close closes the connection
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		c.connected = false
		c.cancel()
		c.conn.Close()
		log.Printf("Connection closed")
	}
}

// IsConnected returns connection status
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}
