// ABOUTME: Encoder interface definition
// ABOUTME: Common interface for all wire payload encoders
package encode

// Encoder encodes normalized float32 samples to wire payloads
type Encoder interface {
	// Encode converts samples to encoded audio data
	Encode(samples []float32) ([]byte, error)

	// Close releases encoder resources
	Close() error
}
