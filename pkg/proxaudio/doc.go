// ABOUTME: High-level listener and speaker APIs
// ABOUTME: Ties the protocol client to playback, spatial and sender packages
// Package proxaudio is the entry point for programs joining a proximity
// audio world.
//
// A Listener connects to a server, plays every stream it is told about
// through a positional mixer, and keeps each voice aimed at its source
// entity. A Speaker connects as an entity and sends clips or live audio.
//
// Example:
//
//	l := proxaudio.NewListener(proxaudio.ListenerConfig{
//	    ServerAddr: "localhost:8927",
//	    Name:       "kitchen",
//	    EntityID:   "player-1",
//	})
//	err := l.Run(ctx)
package proxaudio
