// ABOUTME: Chunked sender package for the origin side
// ABOUTME: Slices PCM into fixed-duration chunks with drift-corrected pacing
// Package sender streams PCM to a server in fixed-duration chunks.
//
// Chunks are paced against an absolute deadline that advances by exactly
// one chunk duration per send, so scheduling delays never accumulate.
//
// Example:
//
//	stream, err := sender.Start(ctx, client, sender.Config{
//	    Format: audio.Format{SampleRate: 24000, Channels: 1, Encoding: audio.S16},
//	})
//	stream.Push(samples)
//	stream.CloseSend()
//	err = stream.Wait()
//
// SendClip wraps the whole sequence for a decoded clip.
package sender
