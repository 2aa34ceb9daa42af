// Package gateway is the inbound surface of the service: a websocket endpoint
// speaking the client event protocol (start, media, stop, cancel) and an HTTP
// endpoint for one-shot blob uploads.
package gateway

import (
	"context"
	"log"
	"time"

	"github.com/voyplan/voice-gateway/config"
	"github.com/voyplan/voice-gateway/consumer"
	"github.com/voyplan/voice-gateway/metrics"
	"github.com/voyplan/voice-gateway/stt"
)

// Gateway builds per-connection sessions from the service configuration.
type Gateway struct {
	cfg     *config.Config
	sttCfg  stt.Config
	metrics *metrics.Metrics
	logger  *log.Logger

	transcriber stt.Transcriber
	newStreamer func() stt.Streamer
}

// New wires a gateway from the loaded configuration.
func New(cfg *config.Config, m *metrics.Metrics, logger *log.Logger) *Gateway {
	sttCfg := stt.Config{
		Signer: stt.Signer{
			AppID:     cfg.Backend.AppID,
			APIKey:    cfg.Backend.APIKey,
			APISecret: cfg.Backend.APISecret,
		},
		UploadHost:    cfg.Backend.UploadHost,
		UploadPath:    cfg.Backend.UploadPath,
		GetResultPath: cfg.Backend.GetResultPath,
		StreamURL:     cfg.Backend.StreamURL,
		Language:      cfg.Backend.Language,
		UploadTimeout: cfg.Polling.UploadTimeout(),
		PollTimeout:   cfg.Polling.PollTimeout(),
		PollInterval:  cfg.Polling.PollInterval(),
		MaxPolls:      cfg.Polling.MaxPolls,
		OnPoll:        func() { m.PollAttempts.Inc() },
		FFmpegPath:    cfg.Backend.FFmpegPath,
		Logger:        logger,
	}

	g := &Gateway{
		cfg:     cfg,
		sttCfg:  sttCfg,
		metrics: m,
		logger:  logger,
	}
	if cfg.Strategy() == stt.StrategyStreamingSocket {
		g.newStreamer = func() stt.Streamer { return stt.NewStreamingSession(sttCfg) }
	} else {
		g.transcriber = stt.NewTranscriber(cfg.Strategy(), sttCfg)
	}
	return g
}

// sinkFor selects the downstream destination named by the client. The prompt
// destination is served by the connection itself (the final event carries the
// text back), so it maps to a no-op sink here.
func (g *Gateway) sinkFor(name, planID, authToken string) consumer.Sink {
	switch name {
	case "expense":
		return consumer.NewExpenseSink(consumer.ExpenseSinkConfig{
			APIKey:    g.cfg.Consumer.LLMAPIKey,
			BaseURL:   g.cfg.Consumer.LLMBaseURL,
			Model:     g.cfg.Consumer.LLMModel,
			Endpoint:  g.cfg.Consumer.ExpenseEndpoint,
			AuthToken: authToken,
			PlanID:    planID,
			Timeout:   30 * time.Second,
			Logger:    g.logger,
		})
	default:
		return consumer.SinkFunc(func(context.Context, string) error { return nil })
	}
}
