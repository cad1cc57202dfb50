// ABOUTME: Headless output that renders in real time and discards
// ABOUTME: Used on machines without an audio device
package output

import (
	"sync"
	"time"
)

// NullPeriod is how much audio the null output pulls per tick
const NullPeriod = 10 * time.Millisecond

// Null pulls frames at the device rate without playing them
type Null struct {
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewNull creates a new Null output
func NewNull() *Null {
	return &Null{stopChan: make(chan struct{})}
}

// Open starts the render loop
func (n *Null) Open(sampleRate, channels int, r Renderer) error {
	frames := sampleRate * int(NullPeriod) / int(time.Second)
	buf := make([]float32, frames*channels)

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		ticker := time.NewTicker(NullPeriod)
		defer ticker.Stop()

		for {
			select {
			case <-n.stopChan:
				return
			case <-ticker.C:
				r.Render(buf)
			}
		}
	}()
	return nil
}

// Close stops the render loop
func (n *Null) Close() error {
	n.stopOnce.Do(func() { close(n.stopChan) })
	n.wg.Wait()
	return nil
}
