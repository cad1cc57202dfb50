// ABOUTME: Decoder interface definition
// ABOUTME: Common interface for all wire payload decoders
package decode

// Decoder decodes wire payloads to normalized float32 samples
type Decoder interface {
	// Decode converts encoded audio data to samples. The returned slice is
	// freshly allocated and owned by the caller.
	Decode(data []byte) ([]float32, error)

	// Close releases decoder resources
	Close() error
}
