package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"math"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"

	"github.com/voyplan/voice-gateway/audio"
	"github.com/voyplan/voice-gateway/consumer"
	"github.com/voyplan/voice-gateway/session"
	"github.com/voyplan/voice-gateway/stt"
)

// clientEvent is one message from the browser client.
type clientEvent struct {
	Event string `json:"event"` // "start", "media", "stop", "cancel"
	Start struct {
		MimeType   string `json:"mimeType"`
		SampleRate int    `json:"sampleRate"`
		Consumer   string `json:"consumer"` // "expense" or "prompt"
		PlanID     string `json:"planId"`
	} `json:"start"`
	Media struct {
		// base64 audio: little-endian float32 PCM for the streaming
		// strategy, encoded container bytes otherwise.
		Payload string `json:"payload"`
	} `json:"media"`
	Error struct {
		// capture failures only the client can observe
		Code string `json:"code"` // "permission_denied" or "unsupported_environment"
	} `json:"error"`
}

// serverEvent is one message back to the client.
type serverEvent struct {
	Event     string `json:"event"` // "state", "partial", "final", "error"
	State     string `json:"state,omitempty"`
	Text      string `json:"text,omitempty"`
	Code      string `json:"code,omitempty"`
	Message   string `json:"message,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
}

// conn is one live client connection. A single controller serves it; the
// client may run several recording sessions back to back.
type conn struct {
	g  *Gateway
	ws *websocket.Conn

	writeMu sync.Mutex

	mu        sync.Mutex
	ctrl      *session.Controller
	sink      consumer.Sink
	streaming bool
	startedAt time.Time
}

// HandleStream runs the event loop for one websocket client. It returns when
// the socket closes; any live session is cancelled on the way out.
func (g *Gateway) HandleStream(ws *websocket.Conn) {
	c := &conn{g: g, ws: ws}
	defer c.teardown()

	for {
		_, msg, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				g.logger.Println("client disconnected")
			} else {
				g.logger.Printf("websocket read error: %v", err)
			}
			return
		}

		var ev clientEvent
		if err := json.Unmarshal(msg, &ev); err != nil {
			g.logger.Printf("bad client event: %v", err)
			continue
		}

		switch ev.Event {
		case "start":
			c.handleStart(ev)
		case "media":
			c.handleMedia(ev)
		case "stop":
			c.handleStop()
		case "cancel":
			c.handleCancel()
		case "error":
			c.handleClientError(ev)
		default:
			g.logger.Printf("unknown client event %q", ev.Event)
		}
	}
}

func (c *conn) handleStart(ev clientEvent) {
	g := c.g

	captureRate := ev.Start.SampleRate
	if captureRate == 0 {
		captureRate = g.cfg.Audio.CaptureRate
	}

	ctrl := session.NewController(session.Config{
		Strategy:    g.cfg.Strategy(),
		CaptureRate: captureRate,
		FrameSize:   g.cfg.Audio.FrameSize,
		MinDuration: g.cfg.Audio.MinDuration(),
		Transcriber: g.transcriber,
		NewStreamer: g.newStreamer,
		Logger:      g.logger,
	}, session.Callbacks{
		OnPartial: c.onPartial,
		OnFinal:   c.onFinal,
		OnError:   c.onError,
	})

	c.mu.Lock()
	if c.ctrl != nil && c.ctrl.State() != session.StateIdle {
		c.mu.Unlock()
		c.sendError(session.ErrNotIdle)
		return
	}
	c.ctrl = ctrl
	c.sink = g.sinkFor(ev.Start.Consumer, ev.Start.PlanID, c.ws.Query("token"))
	c.streaming = g.cfg.Strategy() == stt.StrategyStreamingSocket
	c.mu.Unlock()

	if err := ctrl.Start(context.Background(), ev.Start.MimeType); err != nil {
		c.sendError(err)
		return
	}

	c.mu.Lock()
	c.startedAt = time.Now()
	c.mu.Unlock()
	g.metrics.RecordSessionStart()
	c.send(serverEvent{Event: "state", State: ctrl.State().String(), SessionID: ctrl.SessionID()})
}

func (c *conn) handleMedia(ev clientEvent) {
	c.mu.Lock()
	ctrl := c.ctrl
	streaming := c.streaming
	c.mu.Unlock()
	if ctrl == nil {
		return
	}

	raw, err := base64.StdEncoding.DecodeString(ev.Media.Payload)
	if err != nil {
		c.g.logger.Printf("bad media payload: %v", err)
		return
	}

	if streaming {
		ctrl.PushSamples(decodeFloat32(raw))
		c.g.metrics.FramesForwarded.Inc()
		return
	}
	ctrl.PushEncoded(raw)
}

func (c *conn) handleStop() {
	c.mu.Lock()
	ctrl := c.ctrl
	c.mu.Unlock()
	if ctrl == nil {
		return
	}
	ctrl.Stop(context.Background())
	c.send(serverEvent{Event: "state", State: ctrl.State().String()})
}

func (c *conn) handleCancel() {
	c.mu.Lock()
	ctrl := c.ctrl
	c.mu.Unlock()
	if ctrl == nil {
		return
	}
	ctrl.Cancel()
	c.recordEnd()
	c.send(serverEvent{Event: "state", State: session.StateIdle.String()})
}

// handleClientError relays a capture failure the browser observed: the mic
// permission dialog was declined or the environment cannot record at all.
// Any live session is torn down and the failure is accounted like every
// other terminal error.
func (c *conn) handleClientError(ev clientEvent) {
	var err error
	switch ev.Error.Code {
	case "unsupported_environment":
		err = audio.ErrUnsupportedEnvironment
	default:
		err = audio.ErrPermissionDenied
	}

	c.mu.Lock()
	ctrl := c.ctrl
	c.mu.Unlock()
	if ctrl != nil {
		ctrl.Cancel()
	}
	c.recordEnd()
	c.g.metrics.RecordSessionError(errorCode(err))
	c.sendError(err)
}

func (c *conn) onPartial(text string) {
	c.send(serverEvent{Event: "partial", Text: text})
}

func (c *conn) onFinal(text string) {
	g := c.g
	c.recordEnd()
	g.metrics.RecordFinalTranscript(len([]rune(text)))

	c.mu.Lock()
	sink := c.sink
	c.mu.Unlock()

	if sink != nil && consumer.Usable(text) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := sink.Submit(ctx, text); err != nil {
			g.metrics.RecordSessionError(errorCode(err))
			c.sendError(err)
			return
		}
	}

	c.send(serverEvent{Event: "final", Text: text})
}

func (c *conn) onError(err error) {
	c.recordEnd()
	c.g.metrics.RecordSessionError(errorCode(err))
	c.sendError(err)
}

func (c *conn) recordEnd() {
	c.mu.Lock()
	startedAt := c.startedAt
	c.startedAt = time.Time{}
	c.mu.Unlock()
	if !startedAt.IsZero() {
		c.g.metrics.RecordSessionEnd(time.Since(startedAt).Seconds())
	}
}

func (c *conn) sendError(err error) {
	c.send(serverEvent{Event: "error", Code: errorCode(err), Message: err.Error()})
}

// clientWriteTimeout bounds every write to the browser socket. A stalled
// client fails its write instead of wedging the callbacks feeding it.
const clientWriteTimeout = 10 * time.Second

func (c *conn) send(ev serverEvent) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.SetWriteDeadline(time.Now().Add(clientWriteTimeout)); err != nil {
		c.g.logger.Printf("websocket set write deadline: %v", err)
	}
	if err := c.ws.WriteJSON(ev); err != nil {
		c.g.logger.Printf("websocket write error: %v", err)
	}
}

func (c *conn) teardown() {
	c.mu.Lock()
	ctrl := c.ctrl
	c.ctrl = nil
	c.mu.Unlock()
	if ctrl != nil && ctrl.State() != session.StateIdle {
		ctrl.Cancel()
		c.recordEnd()
	}
	c.ws.Close()
}

// decodeFloat32 reinterprets little-endian bytes as float32 samples. A
// trailing partial sample is dropped.
func decodeFloat32(p []byte) []float32 {
	n := len(p) / 4
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		bits := uint32(p[4*i]) | uint32(p[4*i+1])<<8 | uint32(p[4*i+2])<<16 | uint32(p[4*i+3])<<24
		out[i] = math.Float32frombits(bits)
	}
	return out
}
