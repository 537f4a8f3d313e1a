package console

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/milankumarIS/swaram-agent-worker/core/audio"
)

var errDeviceNotInitialized = errors.New("device not initialized")

type captureDevice struct {
	device *malgo.Device

	mu      sync.Mutex
	onAudio func(frame []byte)
}

func (c *captureDevice) Init(audioContext *malgo.AllocatedContext, encoding audio.EncodingInfo) error {
	device, err := malgo.InitDevice(audioContext.Context, deviceConfig(malgo.Capture, encoding), malgo.DeviceCallbacks{
		Data: func(_, input []byte, frameCount uint32) {
			n := int(frameCount) * bytesPerFrame
			if n == 0 || len(input) < n {
				return
			}

			c.mu.Lock()
			onAudio := c.onAudio
			c.mu.Unlock()
			if onAudio != nil {
				// malgo reuses the input buffer after the callback returns
				onAudio(append([]byte(nil), input[:n]...))
			}
		},
	})
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.device = device
	c.mu.Unlock()
	return nil
}

func (c *captureDevice) Start(onAudio func(frame []byte)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device == nil {
		return errDeviceNotInitialized
	}

	c.onAudio = onAudio
	if c.device.IsStarted() {
		return nil
	}
	if err := c.device.Start(); err != nil {
		c.onAudio = nil
		return fmt.Errorf("failed to start capture device: %w", err)
	}
	return nil
}

func (c *captureDevice) Uninit() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device != nil {
		c.device.Uninit()
		c.device = nil
	}
	c.onAudio = nil
}
