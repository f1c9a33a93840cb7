package webrtc

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/sirupsen/logrus"
	"gopkg.in/hraban/opus.v2"

	"pipelined.dev/mix/format"
)

const (
	bitrate       = 128000
	maxOpusPacket = 4000
)

// Handler serves WebRTC SDP negotiation. Every peer receives broadcast
// frames encoded with Opus.
type Handler struct {
	broadcaster *Broadcaster
	format      format.Format
	duration    time.Duration
	logger      logrus.FieldLogger

	mu    sync.Mutex
	peers map[*webrtc.PeerConnection]*Listener
	wg    sync.WaitGroup
}

// NewHandler creates handler streaming frames of duration d in format f.
func NewHandler(b *Broadcaster, f format.Format, d time.Duration, logger logrus.FieldLogger) *Handler {
	return &Handler{
		broadcaster: b,
		format:      f,
		duration:    d,
		logger:      logger,
		peers:       make(map[*webrtc.PeerConnection]*Listener),
	}
}

// PeerCount returns the number of active peers.
func (h *Handler) PeerCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.peers)
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}

	var offer webrtc.SessionDescription
	if err := json.NewDecoder(r.Body).Decode(&offer); err != nil {
		http.Error(w, "invalid SDP offer", http.StatusBadRequest)
		return
	}

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		http.Error(w, "create peer connection failed", http.StatusInternalServerError)
		return
	}
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
		"audio",
		"mix",
	)
	if err != nil {
		pc.Close()
		http.Error(w, "create audio track failed", http.StatusInternalServerError)
		return
	}
	if _, err := pc.AddTrack(track); err != nil {
		pc.Close()
		http.Error(w, "add track failed", http.StatusInternalServerError)
		return
	}
	if err := pc.SetRemoteDescription(offer); err != nil {
		pc.Close()
		http.Error(w, "set remote description failed", http.StatusBadRequest)
		return
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		pc.Close()
		http.Error(w, "create answer failed", http.StatusInternalServerError)
		return
	}
	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		pc.Close()
		http.Error(w, "set local description failed", http.StatusInternalServerError)
		return
	}
	select {
	case <-gatherComplete:
	case <-r.Context().Done():
		pc.Close()
		return
	}

	l := h.broadcaster.Subscribe()
	h.mu.Lock()
	h.peers[pc] = l
	h.mu.Unlock()
	h.logger.WithField("peers", h.PeerCount()).Info("peer connected")

	h.wg.Add(1)
	go h.streamToPeer(l, track)

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		switch s {
		case webrtc.PeerConnectionStateFailed,
			webrtc.PeerConnectionStateClosed,
			webrtc.PeerConnectionStateDisconnected:
			if h.removePeer(pc) {
				pc.Close()
				h.logger.WithField("peers", h.PeerCount()).Info("peer disconnected")
			}
		}
	})

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	if err := json.NewEncoder(w).Encode(pc.LocalDescription()); err != nil {
		h.logger.WithError(err).Warn("write answer")
	}
}

func (h *Handler) streamToPeer(l *Listener, track *webrtc.TrackLocalStaticSample) {
	defer h.wg.Done()
	enc, err := opus.NewEncoder(h.format.FramesPerSecond, h.format.Channels, opus.AppAudio)
	if err != nil {
		h.logger.WithError(err).Error("create opus encoder")
		return
	}
	if err := enc.SetBitrate(bitrate); err != nil {
		h.logger.WithError(err).Warn("set opus bitrate")
	}
	buf := make([]byte, maxOpusPacket)
	for frame := range l.C {
		n, err := enc.Encode(frame, buf)
		if err != nil {
			h.logger.WithError(err).Warn("opus encode")
			continue
		}
		if err := track.WriteSample(media.Sample{Data: buf[:n], Duration: h.duration}); err != nil {
			return
		}
	}
}

// removePeer returns false if the peer is already removed.
func (h *Handler) removePeer(pc *webrtc.PeerConnection) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	l, ok := h.peers[pc]
	if !ok {
		return false
	}
	delete(h.peers, pc)
	h.broadcaster.Unsubscribe(l)
	return true
}

// Close disconnects all peers.
func (h *Handler) Close() error {
	h.mu.Lock()
	peers := make([]*webrtc.PeerConnection, 0, len(h.peers))
	for pc, l := range h.peers {
		peers = append(peers, pc)
		h.broadcaster.Unsubscribe(l)
		delete(h.peers, pc)
	}
	h.mu.Unlock()
	var err error
	for _, pc := range peers {
		if cerr := pc.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	h.wg.Wait()
	return err
}
