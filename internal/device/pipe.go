package device

import "sync"

// Pipe is an AudioTrack fed by a producer goroutine. The producer calls Send
// for each frame and Close when its source is exhausted; consumers call Stop.
type Pipe struct {
	id     string
	frames chan []float32
	done   chan struct{}
	onStop func() error

	endOnce   sync.Once
	closeOnce sync.Once
	stopOnce  sync.Once
	stopErr   error
}

// NewPipe creates a pipe track. onStop, when set, runs once on the first Stop.
func NewPipe(id string, buffer int, onStop func() error) *Pipe {
	if buffer < 0 {
		buffer = 0
	}
	return &Pipe{
		id:     id,
		frames: make(chan []float32, buffer),
		done:   make(chan struct{}),
		onStop: onStop,
	}
}

// ID returns the track identifier.
func (p *Pipe) ID() string { return p.id }

// Kind reports an audio track.
func (p *Pipe) Kind() Kind { return KindAudio }

// Ended is closed on Stop or when the producer closes the pipe.
func (p *Pipe) Ended() <-chan struct{} { return p.done }

// Frames returns the frame stream.
func (p *Pipe) Frames() <-chan []float32 { return p.frames }

// Send delivers one frame. It returns false once the track has ended.
func (p *Pipe) Send(frame []float32) bool {
	select {
	case <-p.done:
		return false
	default:
	}
	select {
	case p.frames <- frame:
		return true
	case <-p.done:
		return false
	}
}

// Close is called by the producer when no more frames will be sent.
func (p *Pipe) Close() {
	p.closeOnce.Do(func() {
		p.end()
		close(p.frames)
	})
}

// Stop ends the track. Repeated calls return the first result.
func (p *Pipe) Stop() error {
	p.stopOnce.Do(func() {
		p.end()
		if p.onStop != nil {
			p.stopErr = p.onStop()
		}
	})
	return p.stopErr
}

func (p *Pipe) end() {
	p.endOnce.Do(func() { close(p.done) })
}
