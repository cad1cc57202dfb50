// ABOUTME: Server-side stream registry package
// ABOUTME: Owns stream lifecycle and proximity fan-out to listener sockets
// Package registry tracks live audio streams and who is entitled to hear them.
//
// A Registry is an explicitly owned object held by the server. Streams are
// created by validated start requests, refreshed by data frames and removed
// on stop, idle timeout or origin disconnect. Every tick the listener set of
// each stream is recomputed from the proximity policy and diffed against the
// previous set; the resulting entered/left deltas become start and stop
// notifications.
//
// The registry never talks to the network directly. It sends through a
// Transport and reads entity placement from a World.
package registry
