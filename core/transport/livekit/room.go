package livekit

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	media "github.com/livekit/media-sdk"
	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go/v2"
	lkmedia "github.com/livekit/server-sdk-go/v2/pkg/media"
	"github.com/milankumarIS/swaram-agent-worker/core/audio"
	"github.com/pion/webrtc/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// pcmSampleRate is the rate engines exchange audio at. The SDK resamples
	// to and from the 48kHz opus tracks.
	pcmSampleRate = audio.DefaultSampleRate
	pcmChannels   = 1
	trackName     = "agent-voice"
)

var ErrRoomClosed = errors.New("room closed")

// Credentials are the LiveKit server address and API key pair the agent joins
// rooms with.
type Credentials struct {
	URL       string
	APIKey    string
	APISecret string
	// AgentName is the display name of the agent participant.
	AgentName string
}

// Room is a LiveKit room joined by the agent. Engines see 16kHz mono
// linear16 frames; opus decoding and encoding is left to the SDK's PCM
// tracks.
type Room struct {
	room   *lksdk.Room
	track  *lkmedia.PCMLocalTrack
	logger *slog.Logger

	mu      sync.Mutex
	onAudio func(frame []byte)
	closed  bool
	remotes []*lkmedia.PCMRemoteTrack
	// partial holds the odd trailing byte of the last outbound chunk.
	partial []byte

	closeOnce sync.Once
}

// Join connects to roomName as a new agent participant and publishes the
// agent's voice track.
func Join(ctx context.Context, credentials Credentials, roomName string) (*Room, error) {
	_, span := tracer.Start(ctx, "join room", trace.WithAttributes(attribute.String("room.name", roomName)))
	defer span.End()

	r, err := join(credentials, roomName)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return r, nil
}

func join(credentials Credentials, roomName string) (*Room, error) {
	r := &Room{logger: logger.With("room", roomName)}

	room, err := lksdk.ConnectToRoom(credentials.URL, lksdk.ConnectInfo{
		APIKey:              credentials.APIKey,
		APISecret:           credentials.APISecret,
		RoomName:            roomName,
		ParticipantIdentity: "agent-" + uuid.NewString(),
		ParticipantName:     credentials.AgentName,
	}, &lksdk.RoomCallback{
		ParticipantCallback: lksdk.ParticipantCallback{
			OnTrackSubscribed: r.onTrackSubscribed,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to room: %w", err)
	}
	r.room = room

	track, err := lkmedia.NewPCMLocalTrack(pcmSampleRate, pcmChannels, nil)
	if err != nil {
		room.Disconnect()
		return nil, fmt.Errorf("failed to create voice track: %w", err)
	}
	if _, err := room.LocalParticipant.PublishTrack(track, &lksdk.TrackPublicationOptions{
		Name:   trackName,
		Source: livekit.TrackSource_MICROPHONE,
	}); err != nil {
		room.Disconnect()
		return nil, fmt.Errorf("failed to publish voice track: %w", err)
	}
	r.track = track

	return r, nil
}

func (r *Room) Name() string     { return r.room.Name() }
func (r *Room) Metadata() string { return r.room.Metadata() }

func (r *Room) IsConnected() bool {
	return r.room.ConnectionState() == lksdk.ConnectionStateConnected
}

// PublishData sends payload reliably to every participant.
func (r *Room) PublishData(_ context.Context, payload []byte) error {
	if r.isClosed() {
		return ErrRoomClosed
	}
	return r.room.LocalParticipant.PublishDataPacket(lksdk.UserData(payload), lksdk.WithDataPublishReliable(true))
}

func (r *Room) EncodingInfo() audio.EncodingInfo {
	return audio.EncodingInfo{SampleRate: pcmSampleRate, Format: audio.EncodingLinear16}
}

func (r *Room) StreamAudio(_ context.Context, onAudio func(frame []byte)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRoomClosed
	}
	r.onAudio = onAudio
	return nil
}

// SendAudio queues a linear16 chunk of any size on the agent's voice track.
func (r *Room) SendAudio(chunk []byte) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrRoomClosed
	}
	samples := r.takeSamples(chunk)
	r.mu.Unlock()

	if len(samples) == 0 {
		return nil
	}
	return r.track.WriteSample(samples)
}

// ClearAudio drops speech queued on the voice track that has not been played.
func (r *Room) ClearAudio() {
	r.mu.Lock()
	r.partial = nil
	closed := r.closed
	r.mu.Unlock()

	if !closed {
		r.track.ClearQueue()
	}
}

// takeSamples decodes chunk, carrying an odd trailing byte over to the next
// call.
func (r *Room) takeSamples(chunk []byte) media.PCM16Sample {
	if len(r.partial) > 0 {
		chunk = append(r.partial, chunk...)
		r.partial = nil
	}
	if len(chunk)%2 != 0 {
		r.partial = []byte{chunk[len(chunk)-1]}
		chunk = chunk[:len(chunk)-1]
	}
	return bytesToPCM16(chunk)
}

func (r *Room) Disconnect() {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		r.onAudio = nil
		remotes := r.remotes
		r.remotes = nil
		r.mu.Unlock()

		for _, remote := range remotes {
			remote.Close()
		}
		r.room.Disconnect()
	})
}

func (r *Room) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func (r *Room) onTrackSubscribed(track *webrtc.TrackRemote, publication *lksdk.RemoteTrackPublication, participant *lksdk.RemoteParticipant) {
	if track.Kind() != webrtc.RTPCodecTypeAudio {
		return
	}

	remote, err := lkmedia.NewPCMRemoteTrack(track, &pcmWriter{room: r}, lkmedia.WithTargetSampleRate(pcmSampleRate))
	if err != nil {
		r.logger.Warn("failed to decode audio track", "track", publication.SID(), "error", err)
		return
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		remote.Close()
		return
	}
	r.remotes = append(r.remotes, remote)
	r.mu.Unlock()

	r.logger.Debug("subscribed to audio track", "track", publication.SID(), "participant", participant.Identity())
}

// forward hands a decoded inbound frame to the registered listener. It
// reports false once the room is closed.
func (r *Room) forward(payload []byte) bool {
	r.mu.Lock()
	onAudio, closed := r.onAudio, r.closed
	r.mu.Unlock()

	if closed {
		return false
	}
	if onAudio != nil && len(payload) > 0 {
		onAudio(payload)
	}
	return true
}

// pcmWriter receives decoded samples from a remote track.
type pcmWriter struct {
	room *Room
}

func (w *pcmWriter) String() string  { return "agent-input" }
func (w *pcmWriter) SampleRate() int { return pcmSampleRate }
func (w *pcmWriter) Close() error    { return nil }

func (w *pcmWriter) WriteSample(sample media.PCM16Sample) error {
	if !w.room.forward(pcm16ToBytes(sample)) {
		return ErrRoomClosed
	}
	return nil
}

func bytesToPCM16(data []byte) media.PCM16Sample {
	samples := make(media.PCM16Sample, len(data)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return samples
}

func pcm16ToBytes(samples media.PCM16Sample) []byte {
	data := make([]byte, len(samples)*2)
	for i, sample := range samples {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(sample))
	}
	return data
}
