// ABOUTME: Fixed-capacity circular frame store
// ABOUTME: Overflow overwrites the oldest unread frames
package playback

// Ring is a circular buffer of interleaved float32 frames.
// It is not safe for concurrent use; the audio thread owns it.
type Ring struct {
	data     []float32
	channels int
	capacity int // frames
	read     int // frame index of the oldest unread frame
	write    int // frame index of the next frame to write
	buffered int // unread frames, 0 <= buffered <= capacity
}

// NewRing creates a ring holding capacity frames of channels samples each
func NewRing(capacity, channels int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	if channels < 1 {
		channels = 1
	}
	return &Ring{
		data:     make([]float32, capacity*channels),
		channels: channels,
		capacity: capacity,
	}
}

// Write appends whole frames from samples and returns how many unread
// frames were overwritten to make room. Trailing partial frames are ignored.
func (r *Ring) Write(samples []float32) int {
	frames := len(samples) / r.channels
	dropped := 0

	// Only the newest capacity frames can survive
	if frames > r.capacity {
		skip := frames - r.capacity
		dropped += skip
		samples = samples[skip*r.channels:]
		frames = r.capacity
	}

	if over := r.buffered + frames - r.capacity; over > 0 {
		r.read = (r.read + over) % r.capacity
		r.buffered -= over
		dropped += over
	}

	for frames > 0 {
		n := r.capacity - r.write
		if n > frames {
			n = frames
		}
		copy(r.data[r.write*r.channels:], samples[:n*r.channels])
		samples = samples[n*r.channels:]
		r.write = (r.write + n) % r.capacity
		r.buffered += n
		frames -= n
	}

	return dropped
}

// Sample returns channel ch of the frame offset frames past the read cursor.
// Callers must keep offset below Buffered.
func (r *Ring) Sample(offset, ch int) float32 {
	idx := r.read + offset
	if idx >= r.capacity {
		idx -= r.capacity
	}
	return r.data[idx*r.channels+ch]
}

// Advance consumes frames from the read cursor, clamped to what is buffered
func (r *Ring) Advance(frames int) {
	if frames > r.buffered {
		frames = r.buffered
	}
	if frames <= 0 {
		return
	}
	r.read = (r.read + frames) % r.capacity
	r.buffered -= frames
}

// Buffered returns the number of unread frames
func (r *Ring) Buffered() int { return r.buffered }

// Capacity returns the ring size in frames
func (r *Ring) Capacity() int { return r.capacity }

// Channels returns the number of samples per frame
func (r *Ring) Channels() int { return r.channels }

// Reset discards all buffered frames
func (r *Ring) Reset() {
	r.read = 0
	r.write = 0
	r.buffered = 0
}
