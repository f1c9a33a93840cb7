package webrtc_test

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	pion "github.com/pion/webrtc/v4"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipelined.dev/mix/endpoint/webrtc"
	"pipelined.dev/mix/format"
	"pipelined.dev/mix/packet"
)

var stereo = format.Format{SampleType: format.Signed16, Channels: 2, FramesPerSecond: 48000}

// samples returns packet where sample i has value i+offset.
func samples(start, frames int64, offset int) packet.Packet {
	b := make([]byte, frames*int64(stereo.BytesPerFrame()))
	for i := 0; i < int(frames)*stereo.Channels; i++ {
		binary.LittleEndian.PutUint16(b[2*i:], uint16(int16(i+offset)))
	}
	return packet.Packet{
		View: packet.View{
			Format:  stereo,
			Start:   format.FixedFromInt(start),
			Length:  frames,
			Payload: b,
		},
		Slot: packet.NoSlot,
	}
}

func TestNewFramer(t *testing.T) {
	tests := []struct {
		name     string
		format   format.Format
		duration time.Duration
		size     int
		err      error
	}{
		{"20ms", stereo, 20 * time.Millisecond, 960, nil},
		{"2.5ms mono 8k", format.Format{SampleType: format.Float32, Channels: 1, FramesPerSecond: 8000}, 2500 * time.Microsecond, 20, nil},
		{"44.1k", format.Format{SampleType: format.Signed16, Channels: 2, FramesPerSecond: 44100}, 20 * time.Millisecond, 0, webrtc.ErrUnsupportedFormat},
		{"surround", format.Format{SampleType: format.Signed16, Channels: 6, FramesPerSecond: 48000}, 20 * time.Millisecond, 0, webrtc.ErrUnsupportedFormat},
		{"15ms", stereo, 15 * time.Millisecond, 0, webrtc.ErrUnsupportedFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fr, err := webrtc.NewFramer(tt.format, tt.duration)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.size, fr.FrameSize())
			assert.Equal(t, tt.duration, fr.Duration())
		})
	}
}

func TestFramer(t *testing.T) {
	fr, err := webrtc.NewFramer(stereo, 2500*time.Microsecond)
	require.NoError(t, err)
	require.Equal(t, 120, fr.FrameSize())

	var frames [][]int16
	emit := func(f []int16) { frames = append(frames, f) }

	fr.Write(samples(0, 100, 0), emit)
	assert.Empty(t, frames)
	// 10 frames of silence, then 50 frames.
	fr.Write(samples(110, 50, 1000), emit)
	require.Len(t, frames, 1)
	assert.Len(t, frames[0], 240)
	assert.Equal(t, int16(199), frames[0][199])
	assert.Equal(t, int16(0), frames[0][200])
	assert.Equal(t, int16(0), frames[0][219])
	assert.Equal(t, int16(1000), frames[0][220])

	fr.Flush(emit)
	require.Len(t, frames, 2)
	assert.Len(t, frames[1], 240)
	assert.Equal(t, int16(1000+99), frames[1][79])
	assert.Equal(t, int16(0), frames[1][80])

	// After flush the next packet starts a new frame without gap.
	fr.Write(samples(10000, 120, 7), emit)
	require.Len(t, frames, 3)
	assert.Equal(t, int16(7), frames[2][0])

	// Empty packets are ignored.
	fr.Write(packet.Packet{View: packet.View{Format: stereo}}, emit)
	assert.Len(t, frames, 3)
}

func TestFramerLongGap(t *testing.T) {
	fr, err := webrtc.NewFramer(stereo, 2500*time.Microsecond)
	require.NoError(t, err)
	var frames [][]int16
	emit := func(f []int16) { frames = append(frames, f) }

	fr.Write(samples(0, 60, 1), emit)
	fr.Write(samples(1000000, 60, 2), emit)
	require.Len(t, frames, 1)
	assert.Equal(t, int16(1), frames[0][0])
	assert.Equal(t, int16(0), frames[0][120])

	fr.Flush(emit)
	require.Len(t, frames, 2)
	assert.Equal(t, int16(2), frames[1][0])
}

func TestBroadcaster(t *testing.T) {
	b := webrtc.NewBroadcaster()
	assert.Equal(t, 0, b.ListenerCount())

	l1, l2 := b.Subscribe(), b.Subscribe()
	assert.Equal(t, 2, b.ListenerCount())

	frame := []int16{100, 200, 300, 400}
	b.Broadcast(frame)
	assert.Equal(t, frame, <-l1.C)
	assert.Equal(t, frame, <-l2.C)

	b.Unsubscribe(l1)
	b.Unsubscribe(l1)
	assert.Equal(t, 1, b.ListenerCount())
	_, ok := <-l1.C
	assert.False(t, ok)

	for i := 0; i < 200; i++ {
		b.Broadcast(frame)
	}
	assert.Equal(t, int64(50), l2.Dropped())

	b.Close()
	assert.Equal(t, 0, b.ListenerCount())
}

type reader struct {
	packets  []packet.Packet
	recycled int
}

func (r *reader) Next() (packet.Packet, bool) {
	if len(r.packets) == 0 {
		return packet.Packet{}, false
	}
	p := r.packets[0]
	r.packets = r.packets[1:]
	return p, true
}

func (r *reader) Recycle(packet.Packet) { r.recycled++ }

func TestStreamer(t *testing.T) {
	fr, err := webrtc.NewFramer(stereo, 2500*time.Microsecond)
	require.NoError(t, err)
	b := webrtc.NewBroadcaster()
	l := b.Subscribe()
	logger, _ := test.NewNullLogger()
	s := webrtc.NewStreamer(fr, b, logger)

	r := &reader{packets: []packet.Packet{
		samples(0, 200, 0),
		{View: packet.View{Format: stereo}, Slot: packet.NoSlot},
	}}
	require.NoError(t, s.Run(context.Background(), r, time.Millisecond))
	assert.Equal(t, 2, r.recycled)
	require.Len(t, l.C, 2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Run(ctx, r, time.Millisecond), context.Canceled)
}

func newHandler(t *testing.T) *webrtc.Handler {
	t.Helper()
	logger, _ := test.NewNullLogger()
	h := webrtc.NewHandler(webrtc.NewBroadcaster(), stereo, 20*time.Millisecond, logger)
	t.Cleanup(func() { h.Close() })
	return h
}

func TestHandlerRequests(t *testing.T) {
	tests := []struct {
		method string
		body   string
		status int
	}{
		{http.MethodOptions, "", http.StatusOK},
		{http.MethodGet, "", http.StatusMethodNotAllowed},
		{http.MethodPost, "not json", http.StatusBadRequest},
		{http.MethodPost, `{"type":"offer","sdp":"garbage"}`, http.StatusBadRequest},
	}
	h := newHandler(t)
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.body, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(tt.method, "/webrtc", strings.NewReader(tt.body)))
			assert.Equal(t, tt.status, rec.Code)
		})
	}
	assert.Equal(t, 0, h.PeerCount())
}

func TestHandlerNegotiation(t *testing.T) {
	offerer, err := pion.NewPeerConnection(pion.Configuration{})
	require.NoError(t, err)
	defer offerer.Close()
	_, err = offerer.AddTransceiverFromKind(pion.RTPCodecTypeAudio, pion.RTPTransceiverInit{
		Direction: pion.RTPTransceiverDirectionRecvonly,
	})
	require.NoError(t, err)
	offer, err := offerer.CreateOffer(nil)
	require.NoError(t, err)
	gathered := pion.GatheringCompletePromise(offerer)
	require.NoError(t, offerer.SetLocalDescription(offer))
	<-gathered

	body, err := json.Marshal(offerer.LocalDescription())
	require.NoError(t, err)
	h := newHandler(t)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webrtc", bytes.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code)

	var answer pion.SessionDescription
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&answer))
	assert.Equal(t, pion.SDPTypeAnswer, answer.Type)
	assert.Contains(t, answer.SDP, "opus")
	assert.Equal(t, 1, h.PeerCount())

	require.NoError(t, h.Close())
	assert.Equal(t, 0, h.PeerCount())
}
