// ABOUTME: Spatial audio package
// ABOUTME: Vector math, panner model and the per-frame positioner
// Package spatial places stream voices in 3D around the listener.
//
// Space is right-handed with Y up. An unrotated entity faces -Z, so its
// right-hand side is +X.
//
// A Positioner reads each attached source entity's transform every frame,
// runs it through the panner Model (inverse distance rolloff, a directivity
// cone around the source's forward vector and equal-power panning) and
// pushes the resulting channel gains to the voice, ramped across the frame.
package spatial
