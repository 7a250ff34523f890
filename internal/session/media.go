package session

import (
	"context"

	"github.com/pion/webrtc/v4"
)

// MediaSource provides the local capture devices for a session: the
// outbound media tracks and the raw audio frame feed for the uplink
// pipeline.
type MediaSource interface {
	// AudioTrack returns the outbound audio track
	AudioTrack() (webrtc.TrackLocal, error)

	// VideoTrack returns the outbound video track
	VideoTrack() (webrtc.TrackLocal, error)

	// Start begins delivering capture frames to the sink. The sink
	// must not block; frames it cannot take are dropped.
	Start(ctx context.Context, sink func(frame []float32)) error

	// Stop halts capture and releases the devices. Safe to call twice.
	Stop()
}
