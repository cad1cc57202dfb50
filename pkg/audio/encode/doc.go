// ABOUTME: Audio encoder package for wire sample formats
// ABOUTME: Provides Encoder interface and PCM implementations for s16 and f32
// Package encode turns normalized float32 samples into wire payloads.
//
// Supports: s16 (clipped, scaled by 32768) and f32 (IEEE float LE).
//
// Example:
//
//	encoder, err := encode.NewPCM(format)
//	payload, err := encoder.Encode(samples)
package encode
