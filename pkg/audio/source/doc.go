// ABOUTME: Clip loading package for the sending side
// ABOUTME: Decodes WAV, MP3, FLAC and Ogg Vorbis files into float32 clips
// Package source loads short audio clips for streaming.
//
// Files are decoded fully into memory as interleaved float32 samples at
// their native rate and channel count. Use resample.Convert to bring a clip
// to the stream format before sending.
//
// Example:
//
//	clip, err := source.Load("alert.flac")
//	if err != nil {
//	    return err
//	}
//	clip = resample.Convert(clip, 24000, 1)
package source
