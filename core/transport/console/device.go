package console

import (
	"fmt"

	"github.com/gen2brain/malgo"
	"github.com/milankumarIS/swaram-agent-worker/core/audio"
)

// device owns the malgo context and the capture and playback devices opened
// on it.
type device struct {
	audioContext *malgo.AllocatedContext
	playback     playbackDevice
	capture      captureDevice
}

func openDevice(encoding audio.EncodingInfo) (*device, error) {
	audioCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		logger.Debug("malgo", "message", message)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audio context: %w", err)
	}

	d := &device{audioContext: audioCtx}

	if err := d.playback.Init(audioCtx, encoding); err != nil {
		d.Close()
		return nil, fmt.Errorf("failed to initialize playback device: %w", err)
	}
	if err := d.playback.Start(); err != nil {
		d.Close()
		return nil, fmt.Errorf("failed to start playback device: %w", err)
	}
	if err := d.capture.Init(audioCtx, encoding); err != nil {
		d.Close()
		return nil, fmt.Errorf("failed to initialize capture device: %w", err)
	}

	return d, nil
}

func (d *device) Close() {
	d.capture.Uninit()
	d.playback.Uninit()
	_ = d.audioContext.Uninit()
	d.audioContext.Free()
}

func deviceConfig(deviceType malgo.DeviceType, encoding audio.EncodingInfo) malgo.DeviceConfig {
	config := malgo.DefaultDeviceConfig(deviceType)
	config.SampleRate = uint32(encoding.SampleRate)
	config.Alsa.NoMMap = 1
	switch deviceType {
	case malgo.Capture:
		config.Capture.Format = malgo.FormatS16
		config.Capture.Channels = 1
		config.PerformanceProfile = malgo.LowLatency
		config.PeriodSizeInFrames = uint32(encoding.SampleRate / 50) // 20ms
		config.Periods = 3
	case malgo.Playback:
		config.Playback.Format = malgo.FormatS16
		config.Playback.Channels = 1
		config.PeriodSizeInFrames = uint32(encoding.SampleRate / 10) // ~100ms
		config.Periods = 4
	}
	return config
}

const bytesPerFrame = 2 // mono S16
