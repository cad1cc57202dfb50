// ABOUTME: Audio decoder package for wire sample formats
// ABOUTME: Provides Decoder interface and PCM implementations for s16 and f32
// Package decode turns wire payloads into normalized float32 samples.
//
// Supports: s16 (signed 16-bit LE, divided by 32768) and f32 (IEEE float LE,
// passed through).
//
// Example:
//
//	decoder, err := decode.NewPCM(format)
//	samples, err := decoder.Decode(payload)
package decode
