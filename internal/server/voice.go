package server

import (
	"encoding/binary"
	"log/slog"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/buildtrack/voice-expense-service/internal/audio"
	"github.com/buildtrack/voice-expense-service/internal/live"
)

var voiceUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The bridge serves the local companion app only.
	CheckOrigin: func(*http.Request) bool { return true },
}

// playbackMessage carries one scheduled speech segment to the bridge
// client as base64 16-bit PCM.
type playbackMessage struct {
	Type       string `json:"type"`
	StartMs    int64  `json:"start_ms"`
	SampleRate int    `json:"sample_rate"`
	Data       string `json:"data"`
}

// wsSink forwards playback segments over the bridge connection.
type wsSink struct {
	mu     sync.Mutex
	conn   *websocket.Conn
	logger *slog.Logger
}

func (s *wsSink) Play(buf *audio.Buffer, startAt time.Duration) {
	if len(buf.Channels) == 0 {
		return
	}

	msg := playbackMessage{
		Type:       "audio",
		StartMs:    startAt.Milliseconds(),
		SampleRate: buf.SampleRate,
		Data:       audio.Encode(audio.FrameToPCM16(buf.Channels[0])),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := s.conn.WriteJSON(msg); err != nil {
		s.logger.Warn("Failed to forward playback segment", slog.String("error", err.Error()))
	}
}

// wsSource adapts bridge capture frames to the session's capture channel.
type wsSource struct {
	ch chan []float32
}

func (s *wsSource) Frames() <-chan []float32 { return s.ch }

// handleVoiceStream implements GET /api/voice/stream. The client streams
// binary frames of little-endian float32 samples at 16 kHz; the server
// answers with JSON playback segments. The voice session lives exactly as
// long as the bridge connection.
func (s *Server) handleVoiceStream(w http.ResponseWriter, r *http.Request) {
	conn, err := voiceUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("Voice bridge upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	ctrl, err := live.NewController(live.Config{
		URL:               s.config.Live.Endpoint,
		APIKey:            s.config.Live.APIKey,
		Model:             s.config.Live.Model,
		SystemInstruction: s.config.Live.SystemInstruction,
		DialTimeout:       s.config.Live.GetDialTimeout(),
		SetupTimeout:      s.config.Live.GetSetupTimeout(),
		MaxRetries:        s.config.Live.MaxRetries,
		RetryBackoff:      s.config.Live.GetRetryBackoff(),
	}, s.logger, s.store, &wsSink{conn: conn, logger: s.logger}, s.metrics)
	if err != nil {
		s.logger.Error("Failed to create voice controller", slog.String("error", err.Error()))
		closeBridge(conn, websocket.CloseInternalServerErr, "voice session unavailable")
		return
	}

	s.voiceMu.Lock()
	if s.voice != nil &&
		(s.voice.Status() == live.StatusActive || s.voice.Status() == live.StatusConnecting) {
		s.voiceMu.Unlock()
		closeBridge(conn, websocket.ClosePolicyViolation, "voice session already active")
		return
	}
	s.voice = ctrl
	s.voiceMu.Unlock()

	source := &wsSource{ch: make(chan []float32, 32)}

	if err := ctrl.Start(r.Context(), source); err != nil {
		s.releaseVoice(ctrl)
		closeBridge(conn, websocket.CloseTryAgainLater, "failed to start voice session")
		return
	}

	s.logger.Info("Voice bridge connected", slog.String("remote", r.RemoteAddr))

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if msgType != websocket.BinaryMessage {
			continue
		}
		frame := decodeCaptureFrame(data)
		if frame == nil {
			continue
		}
		select {
		case source.ch <- frame:
		default:
			// Backpressure: the session is not draining, drop the frame.
		}
	}

	close(source.ch)
	ctrl.Stop()
	s.releaseVoice(ctrl)
	s.logger.Info("Voice bridge disconnected", slog.String("remote", r.RemoteAddr))
}

func (s *Server) releaseVoice(ctrl *live.Controller) {
	s.voiceMu.Lock()
	if s.voice == ctrl {
		s.voice = nil
	}
	s.voiceMu.Unlock()
}

func closeBridge(conn *websocket.Conn, code int, reason string) {
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), time.Now().Add(time.Second))
}

// decodeCaptureFrame parses a binary bridge message into float32 samples.
func decodeCaptureFrame(data []byte) []float32 {
	if len(data) == 0 || len(data)%4 != 0 {
		return nil
	}
	frame := make([]float32, len(data)/4)
	for i := range frame {
		bits := binary.LittleEndian.Uint32(data[i*4:])
		frame[i] = math.Float32frombits(bits)
	}
	return frame
}
