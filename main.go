package main

import (
	"flag"
	"log"
	"os"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/websocket/v2"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/voyplan/voice-gateway/auth"
	"github.com/voyplan/voice-gateway/config"
	"github.com/voyplan/voice-gateway/gateway"
	"github.com/voyplan/voice-gateway/metrics"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	// Load .env if present
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, falling back to environment variables")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := log.New(os.Stdout, "voice-gateway ", log.LstdFlags|log.Lmsgprefix)
	m := metrics.New()
	gw := gateway.New(cfg, m, logger)

	app := fiber.New()

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := app.Group("/api", auth.Middleware(cfg.Auth.JWTSecret))

	// one-shot blob transcription
	api.Post("/stt", gw.HandleBlob)

	// Middleware to require WebSocket upgrade on the stream route
	api.Use("/stt/stream", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	api.Get("/stt/stream", websocket.New(gw.HandleStream))

	logger.Printf("listening on %s (strategy=%s)", cfg.Server.Address, cfg.Backend.Strategy)
	log.Fatal(app.Listen(cfg.Server.Address))
}
