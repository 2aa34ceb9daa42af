package stt

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	gws "github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/voyplan/voice-gateway/audio"
	"github.com/voyplan/voice-gateway/transcript"
)

// Frame statuses on the send side of the streaming protocol.
const (
	frameStatusFirst = 0 // stream start, declares format parameters
	frameStatusMid   = 1 // carries one base64 audio frame
	frameStatusLast  = 2 // end of audio
)

// resultStatusDone marks the backend's end-of-utterance signal.
const resultStatusDone = 2

const (
	streamFormat   = "audio/L16;rate=16000"
	streamEncoding = "raw"
)

// clientFrame is a control-plane message to the streaming backend.
type clientFrame struct {
	Common   *frameCommon   `json:"common,omitempty"`
	Business *frameBusiness `json:"business,omitempty"`
	Data     frameData      `json:"data"`
}

type frameCommon struct {
	AppID string `json:"app_id"`
}

type frameBusiness struct {
	Language string `json:"language"`
	Domain   string `json:"domain"`
	Accent   string `json:"accent"`
	VadEOS   int    `json:"vad_eos"`
}

type frameData struct {
	Status   int    `json:"status"`
	Format   string `json:"format,omitempty"`
	Encoding string `json:"encoding,omitempty"`
	Audio    string `json:"audio,omitempty"`
}

// serverFrame is one recognition message from the streaming backend.
type serverFrame struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Sid     string `json:"sid"`
	Data    struct {
		Status int `json:"status"`
		Result struct {
			Pgs string               `json:"pgs"`
			Ws  []transcript.WordSlot `json:"ws"`
		} `json:"result"`
	} `json:"data"`
}

// StreamingSession holds a persistent bidirectional connection to the
// backend. Frames are pushed on the send side while recognition events
// arrive on Events; the two directions only share the connection handle.
type StreamingSession struct {
	cfg    Config
	logger *log.Logger

	conn    *gws.Conn
	writeMu sync.Mutex

	events    chan Event
	done      chan struct{}
	closed    atomic.Bool
	closeOnce sync.Once
}

// NewStreamingSession builds the streaming-socket strategy. Start must be
// called before any Send.
func NewStreamingSession(cfg Config) *StreamingSession {
	return &StreamingSession{
		cfg:    cfg,
		logger: cfg.Logger,
		events: make(chan Event, 16),
		done:   make(chan struct{}),
	}
}

// Start dials the backend, signing the handshake once with the time-boxed
// HMAC-SHA256 authorization.
func (s *StreamingSession) Start(ctx context.Context) error {
	u, err := url.Parse(s.cfg.StreamURL)
	if err != nil {
		return errors.Wrap(ErrConnectionError, err.Error())
	}

	date := time.Now().UTC().Format(http.TimeFormat)
	header := http.Header{}
	header.Set("Authorization", s.cfg.Signer.StreamAuthorization(u.Host, date, u.Path))
	header.Set("Date", date)
	header.Set("Host", u.Host)

	conn, _, err := gws.DefaultDialer.DialContext(ctx, s.cfg.StreamURL, header)
	if err != nil {
		return errors.Wrap(ErrConnectionError, err.Error())
	}
	s.conn = conn

	go s.readLoop()

	first := clientFrame{
		Common: &frameCommon{AppID: s.cfg.Signer.AppID},
		Business: &frameBusiness{
			Language: streamLanguage(s.cfg.Language),
			Domain:   "iat",
			Accent:   "mandarin",
			VadEOS:   3000,
		},
		Data: frameData{
			Status:   frameStatusFirst,
			Format:   streamFormat,
			Encoding: streamEncoding,
		},
	}
	if err := s.writeJSON(first); err != nil {
		s.Close()
		return errors.Wrap(ErrConnectionError, err.Error())
	}
	return nil
}

// Send pushes one PCM frame to the backend.
func (s *StreamingSession) Send(frame []int16) error {
	msg := clientFrame{
		Data: frameData{
			Status:   frameStatusMid,
			Format:   streamFormat,
			Encoding: streamEncoding,
			Audio:    audio.EncodeFrame(frame),
		},
	}
	if err := s.writeJSON(msg); err != nil {
		return errors.Wrap(ErrConnectionError, err.Error())
	}
	return nil
}

// CloseSend tells the backend no more audio follows. Recognition events keep
// arriving until the end-of-utterance status.
func (s *StreamingSession) CloseSend() error {
	msg := clientFrame{Data: frameData{Status: frameStatusLast}}
	if err := s.writeJSON(msg); err != nil {
		return errors.Wrap(ErrConnectionError, err.Error())
	}
	return nil
}

// Events implements Streamer.
func (s *StreamingSession) Events() <-chan Event {
	return s.events
}

// Close tears the connection down unconditionally. Safe to call from any
// path, any number of times.
func (s *StreamingSession) Close() error {
	s.closed.Store(true)
	s.closeOnce.Do(func() {
		close(s.done)
		if s.conn != nil {
			deadline := time.Now().Add(time.Second)
			_ = s.conn.WriteControl(gws.CloseMessage,
				gws.FormatCloseMessage(gws.CloseNormalClosure, "session done"), deadline)
			_ = s.conn.Close()
		}
	})
	return nil
}

func (s *StreamingSession) writeJSON(v interface{}) error {
	if s.closed.Load() {
		return errors.Wrap(ErrConnectionError, "session closed")
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(gws.TextMessage, payload)
}

// readLoop consumes backend frames until the utterance ends, an error code
// arrives, or the connection drops.
func (s *StreamingSession) readLoop() {
	defer close(s.events)

	for {
		_, msg, err := s.conn.ReadMessage()
		if err != nil {
			if s.closed.Load() {
				return
			}
			s.emit(Event{Err: errors.Wrap(ErrConnectionError, err.Error())})
			s.Close()
			return
		}

		var frame serverFrame
		if err := json.Unmarshal(msg, &frame); err != nil {
			s.logf("unparseable server frame: %v", err)
			continue
		}

		// Any non-zero backend code aborts the conversation.
		if frame.Code != 0 {
			s.emit(Event{Err: errors.Wrapf(ErrBackendProtocolError,
				"code=%d message=%s sid=%s", frame.Code, frame.Message, frame.Sid)})
			s.Close()
			return
		}

		if text := transcript.JoinWords(frame.Data.Result.Ws); text != "" {
			s.emit(Event{
				Text:    text,
				Replace: frame.Data.Result.Pgs == "apd",
			})
		}

		if frame.Data.Status == resultStatusDone {
			s.emit(Event{Final: true})
			s.Close()
			return
		}
	}
}

// emit delivers an event to the consumer. Partials are best effort: when the
// buffer is full they are dropped so a slow consumer never stalls the receive
// path. Terminal events (Final, Err) must not be lost, so they wait for the
// consumer or for session teardown, whichever comes first.
func (s *StreamingSession) emit(ev Event) {
	if ev.Final || ev.Err != nil {
		select {
		case s.events <- ev:
		case <-s.done:
		}
		return
	}
	select {
	case s.events <- ev:
	default:
		s.logf("dropping partial event, consumer is behind")
	}
}

func (s *StreamingSession) logf(format string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}

func streamLanguage(lang string) string {
	switch lang {
	case "", "cn":
		return "zh_cn"
	default:
		return lang
	}
}
