// Package vad detects voice activity in linear16 audio frames.
package vad

import (
	"encoding/binary"
	"math"
	"sync"
	"time"

	"github.com/milankumarIS/swaram-agent-worker/core/audio"
)

const (
	DefaultThreshold       = 0.02
	DefaultMinSpeech       = 100 * time.Millisecond
	DefaultMinSilence      = 550 * time.Millisecond
	bytesPerLinear16Sample = 2
)

type Options struct {
	// Threshold is the normalised RMS level above which a frame counts as
	// speech.
	Threshold  float64
	MinSpeech  time.Duration
	MinSilence time.Duration
}

func DefaultOptions() Options {
	return Options{
		Threshold:  DefaultThreshold,
		MinSpeech:  DefaultMinSpeech,
		MinSilence: DefaultMinSilence,
	}
}

// EnergyDetector tracks whether the caller is speaking. Frames in formats
// other than linear16 are ignored and never change the state.
type EnergyDetector struct {
	options Options

	mu       sync.Mutex
	speaking bool
	speech   time.Duration
	silence  time.Duration
}

func NewEnergyDetector(options Options) *EnergyDetector {
	if options.Threshold <= 0 {
		options.Threshold = DefaultThreshold
	}
	return &EnergyDetector{options: options}
}

// Process feeds a frame and reports the speaking state after it, and whether
// the state flipped on this frame.
func (d *EnergyDetector) Process(frame []byte, encoding audio.EncodingInfo) (speaking, changed bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !encoding.IsPCM() || encoding.SampleRate == 0 || len(frame) < bytesPerLinear16Sample {
		return d.speaking, false
	}

	samples := len(frame) / bytesPerLinear16Sample
	duration := time.Duration(samples) * time.Second / time.Duration(encoding.SampleRate)

	if rms(frame) >= d.options.Threshold {
		d.speech += duration
		d.silence = 0
		if !d.speaking && d.speech >= d.options.MinSpeech {
			d.speaking = true
			return true, true
		}
	} else {
		d.silence += duration
		if d.silence >= d.options.MinSilence {
			d.speech = 0
			if d.speaking {
				d.speaking = false
				return false, true
			}
		}
	}

	return d.speaking, false
}

func (d *EnergyDetector) IsSpeaking() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.speaking
}

func rms(frame []byte) float64 {
	samples := len(frame) / bytesPerLinear16Sample
	var sum float64
	for i := 0; i < samples; i++ {
		sample := int16(binary.LittleEndian.Uint16(frame[i*bytesPerLinear16Sample:]))
		normalised := float64(sample) / math.MaxInt16
		sum += normalised * normalised
	}
	return math.Sqrt(sum / float64(samples))
}
