package console

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/milankumarIS/swaram-agent-worker/core/audio"
)

type playbackDevice struct {
	mu     sync.Mutex
	device *malgo.Device

	buffer playbackBuffer
}

func (p *playbackDevice) Init(audioContext *malgo.AllocatedContext, encoding audio.EncodingInfo) error {
	device, err := malgo.InitDevice(audioContext.Context, deviceConfig(malgo.Playback, encoding), malgo.DeviceCallbacks{
		Data: func(output, _ []byte, frameCount uint32) {
			n := int(frameCount) * bytesPerFrame
			p.buffer.read(output[:min(n, len(output))])
		},
	})
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.device = device
	p.mu.Unlock()
	return nil
}

func (p *playbackDevice) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.device == nil {
		return errDeviceNotInitialized
	}
	if err := p.device.Start(); err != nil {
		return fmt.Errorf("failed to start playback device: %w", err)
	}
	return nil
}

func (p *playbackDevice) SendAudio(chunk []byte) error {
	p.mu.Lock()
	started := p.device != nil && p.device.IsStarted()
	p.mu.Unlock()
	if !started {
		return fmt.Errorf("playback device not started")
	}

	p.buffer.write(chunk)
	return nil
}

func (p *playbackDevice) Clear() {
	p.buffer.reset()
}

func (p *playbackDevice) Uninit() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.device != nil {
		p.device.Uninit()
		p.device = nil
	}
	p.buffer.reset()
}

// playbackBuffer holds audio queued for the speaker.
type playbackBuffer struct {
	mu      sync.Mutex
	pending []byte
}

func (b *playbackBuffer) write(chunk []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = append(b.pending, chunk...)
}

// read fills out with queued audio and pads the rest with silence. It returns
// the number of queued bytes consumed.
func (b *playbackBuffer) read(out []byte) int {
	b.mu.Lock()
	n := copy(out, b.pending)
	b.pending = b.pending[n:]
	b.mu.Unlock()

	clear(out[n:])
	return n
}

func (b *playbackBuffer) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = nil
}

func (b *playbackBuffer) size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}
