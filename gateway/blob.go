package gateway

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/voyplan/voice-gateway/audio"
	"github.com/voyplan/voice-gateway/consumer"
	"github.com/voyplan/voice-gateway/stt"
)

// HandleBlob accepts one finished recording over plain HTTP and answers with
// the final transcript. The request body is the encoded audio; the recording
// duration measured by the client rides in a header so the too-short guard
// still applies server side.
func (g *Gateway) HandleBlob(c *fiber.Ctx) error {
	if g.cfg.Strategy() == stt.StrategyStreamingSocket {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "blob upload is not served by the streaming strategy",
		})
	}

	durationMS, _ := strconv.Atoi(c.Get("X-Audio-Duration-Ms"))
	duration := time.Duration(durationMS) * time.Millisecond

	body := c.Body()
	blob := &audio.Blob{
		Data:     append([]byte(nil), body...),
		MimeType: c.Get(fiber.HeaderContentType),
		Duration: duration,
	}

	var err error
	switch {
	case duration < g.cfg.Audio.MinDuration():
		err = audio.ErrTooShort
	case len(blob.Data) == 0:
		err = audio.ErrEmptyAudio
	}
	if err != nil {
		g.metrics.RecordSessionError(errorCode(err))
		return c.Status(httpStatus(err)).JSON(fiber.Map{"error": errorCode(err)})
	}

	g.metrics.BlobBytes.Observe(float64(len(blob.Data)))

	started := time.Now()
	text, err := g.transcriber.Transcribe(c.UserContext(), blob)
	g.metrics.TranscriptionDuration.Observe(time.Since(started).Seconds())
	if err != nil {
		g.metrics.RecordSessionError(errorCode(err))
		return c.Status(httpStatus(err)).JSON(fiber.Map{"error": errorCode(err)})
	}

	g.metrics.RecordFinalTranscript(len([]rune(text)))

	if name := c.Query("consumer"); name != "" && consumer.Usable(text) {
		sink := g.sinkFor(name, c.Query("planId"), bearerFrom(c))
		if err := sink.Submit(c.UserContext(), text); err != nil {
			g.metrics.RecordSessionError(errorCode(err))
			return c.Status(httpStatus(err)).JSON(fiber.Map{
				"error": errorCode(err),
				"text":  text,
			})
		}
	}

	return c.JSON(fiber.Map{"text": text})
}

func bearerFrom(c *fiber.Ctx) string {
	const prefix = "Bearer "
	h := c.Get(fiber.HeaderAuthorization)
	if len(h) > len(prefix) && h[:len(prefix)] == prefix {
		return h[len(prefix):]
	}
	return c.Query("token")
}
