package console

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/milankumarIS/swaram-agent-worker/core/audio"
)

// Room is a local stand-in for a LiveKit room: audio comes from the default
// microphone and goes to the default speaker, and published data is handed to
// a sink.
type Room struct {
	name     string
	metadata string
	encoding audio.EncodingInfo
	sink     func(payload []byte)

	device    *device
	connected atomic.Bool
	closeOnce sync.Once
}

type RoomOption func(*Room)

// WithDataSink receives every payload published on the room.
func WithDataSink(sink func(payload []byte)) RoomOption {
	return func(r *Room) {
		r.sink = sink
	}
}

func WithEncodingInfo(encoding audio.EncodingInfo) RoomOption {
	return func(r *Room) {
		if !encoding.IsZero() {
			r.encoding = encoding
		}
	}
}

func NewRoom(metadata string, opts ...RoomOption) (*Room, error) {
	r := newRoom(metadata, opts...)

	d, err := openDevice(r.encoding)
	if err != nil {
		return nil, err
	}
	r.device = d
	r.connected.Store(true)
	return r, nil
}

func newRoom(metadata string, opts ...RoomOption) *Room {
	r := &Room{
		name:     "console-" + uuid.NewString(),
		metadata: metadata,
		encoding: audio.GetDefaultEncodingInfo(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Room) Name() string      { return r.name }
func (r *Room) Metadata() string  { return r.metadata }
func (r *Room) IsConnected() bool { return r.connected.Load() }

func (r *Room) PublishData(_ context.Context, payload []byte) error {
	if !r.IsConnected() {
		return fmt.Errorf("room %s is disconnected", r.name)
	}
	if r.sink != nil {
		r.sink(payload)
	}
	return nil
}

func (r *Room) EncodingInfo() audio.EncodingInfo { return r.encoding }

func (r *Room) StreamAudio(_ context.Context, onAudio func(frame []byte)) error {
	if !r.IsConnected() {
		return fmt.Errorf("room %s is disconnected", r.name)
	}
	return r.device.capture.Start(onAudio)
}

func (r *Room) SendAudio(chunk []byte) error {
	if !r.IsConnected() {
		return fmt.Errorf("room %s is disconnected", r.name)
	}
	return r.device.playback.SendAudio(chunk)
}

func (r *Room) ClearAudio() {
	if r.IsConnected() {
		r.device.playback.Clear()
	}
}

// Disconnect releases the audio devices. The session notices on its next
// connectivity poll.
func (r *Room) Disconnect() {
	r.closeOnce.Do(func() {
		r.connected.Store(false)
		if r.device != nil {
			r.device.Close()
		}
	})
}
