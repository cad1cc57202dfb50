// ABOUTME: Proximity audio protocol message type definitions
// ABOUTME: Defines structs for every JSON message type
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/Resonate-Protocol/proxaudio/pkg/audio"
)

// Message types
const (
	TypeClientHello     = "client/hello"
	TypeServerHello     = "server/hello"
	TypeClientGoodbye   = "client/goodbye"
	TypeEntityUpdate    = "entity/update"
	TypeEntityTransform = "entity/transform"
	TypeStreamStart     = "audio-stream-start"
	TypeStreamStop      = "audio-stream-stop"
	TypeStreamStarted   = "audio-stream-started"
	TypeStreamRejected  = "audio-stream-rejected"
	TypeStreamEnded     = "audio-stream-ended"
	TypeError           = "error"
)

// Roles a socket may declare in client/hello
const (
	RoleSpeaker  = "speaker"
	RoleListener = "listener"
)

// ProtocolVersion is the version exchanged in the handshake
const ProtocolVersion = 1

// Message is the top-level wrapper for all protocol messages
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// Envelope is a received message with its payload left undecoded
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// ParseEnvelope decodes the outer {type, payload} wrapper
func ParseEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("invalid message: %w", err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("invalid message: missing type")
	}
	return env, nil
}

// Decode unmarshals the payload into v
func (e Envelope) Decode(v interface{}) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("%s: missing payload", e.Type)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", e.Type, err)
	}
	return nil
}

// ClientHello is sent by clients to initiate the handshake
type ClientHello struct {
	SocketName string   `json:"socket_name"`
	EntityID   string   `json:"entity_id,omitempty"`
	Roles      []string `json:"roles"`
	Version    int      `json:"version"`
}

// ServerHello is the server's response to client/hello
type ServerHello struct {
	ServerID string `json:"server_id"`
	Name     string `json:"name"`
	SocketID string `json:"socket_id"`
	Version  int    `json:"version"`
}

// ClientGoodbye is sent before a client disconnects
type ClientGoodbye struct {
	Reason string `json:"reason"`
}

// EntityUpdate reports the transform of the sender's own entity
type EntityUpdate struct {
	EntityID string     `json:"entity_id"`
	Position [3]float64 `json:"position"`
	Forward  [3]float64 `json:"forward"`
}

// EntityTransform tells listeners where a stream source currently is
type EntityTransform struct {
	EntityID string     `json:"entity_id"`
	Position [3]float64 `json:"position"`
	Forward  [3]float64 `json:"forward"`
}

// StreamStart announces a stream. Origins send it as the start request;
// the server forwards it to every listener that enters range.
type StreamStart struct {
	StreamID       string             `json:"stream_id"`
	SourceEntityID string             `json:"source_entity_id"`
	SampleRate     int                `json:"sample_rate"`
	Channels       int                `json:"channel_count"`
	Format         audio.SampleFormat `json:"format"`
}

// AudioFormat returns the stream's audio format
func (s StreamStart) AudioFormat() audio.Format {
	return audio.Format{
		SampleRate: s.SampleRate,
		Channels:   s.Channels,
		Encoding:   s.Format,
	}
}

// StreamStop ends a stream, or tells a listener it left range
type StreamStop struct {
	StreamID string `json:"stream_id"`
}

// StreamEventKind tags a StreamEvent
type StreamEventKind int

const (
	EventStart StreamEventKind = iota
	EventData
	EventStop
)

func (k StreamEventKind) String() string {
	switch k {
	case EventStart:
		return "start"
	case EventData:
		return "data"
	case EventStop:
		return "stop"
	default:
		return "unknown"
	}
}

// StreamEvent is a stream start, data frame or stop. Events arrive on
// Client.Streams in the order the server sent them; only the field matching
// Kind is set.
type StreamEvent struct {
	Kind  StreamEventKind
	Start StreamStart
	Frame DataFrame
	Stop  StreamStop
}

// StreamStarted acknowledges a start request to its origin
type StreamStarted struct {
	StreamID string `json:"stream_id"`
}

// StreamRejected refuses a start request with a reason code
type StreamRejected struct {
	StreamID string `json:"stream_id"`
	Reason   string `json:"reason"`
}

// StreamEnded tells an origin the server ended its stream
type StreamEnded struct {
	StreamID string `json:"stream_id"`
	Reason   string `json:"reason"`
}

// ErrorMessage reports a protocol error to a client
type ErrorMessage struct {
	Message string `json:"message"`
}
