package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voyplan/voice-gateway/config"
	"github.com/voyplan/voice-gateway/metrics"
)

func testGateway(t *testing.T, strategy, backendURL string) *Gateway {
	t.Helper()
	cfg := &config.Config{
		Backend: config.BackendConfig{
			Strategy:      strategy,
			UploadHost:    backendURL,
			UploadPath:    "/v2/api/upload",
			GetResultPath: "/v2/api/getResult",
			Language:      "cn",
			AppID:         "app",
			APIKey:        "key",
			APISecret:     "secret",
		},
		Audio: config.AudioConfig{
			CaptureRate:   48000,
			FrameSize:     640,
			MinDurationMS: 500,
		},
		Polling: config.PollingConfig{
			UploadTimeoutSec: 5,
			PollTimeoutSec:   5,
			PollIntervalSec:  1,
			MaxPolls:         3,
		},
	}
	return New(cfg, metrics.NewWith(prometheus.NewRegistry()), log.New(io.Discard, "", 0))
}

func blobApp(gw *Gateway) *fiber.App {
	app := fiber.New()
	app.Post("/api/stt", gw.HandleBlob)
	return app
}

func postBlob(t *testing.T, app *fiber.App, path string, body []byte, durationMS string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "audio/webm")
	if durationMS != "" {
		req.Header.Set("X-Audio-Duration-Ms", durationMS)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func TestHandleBlob_Success(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v2/api/upload":
			fmt.Fprint(w, `{"code":"000000","content":{"orderId":"order-1"}}`)
		case "/v2/api/getResult":
			fmt.Fprint(w, `{"code":"000000","content":{"orderInfo":{"status":4},"orderResult":"{\"lattice2\":[{\"json_1best\":{\"st\":{\"rt\":[{\"ws\":[{\"cw\":[{\"w\":\"好的\"}]}]}]}}}]}"}}`)
		}
	}))
	defer backend.Close()

	gw := testGateway(t, "polling", backend.URL)
	resp := postBlob(t, blobApp(gw), "/api/stt", []byte("webm"), "1200")
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out struct {
		Text string `json:"text"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "好的", out.Text)
}

func TestHandleBlob_TooShort(t *testing.T) {
	gw := testGateway(t, "polling", "http://127.0.0.1:1")
	resp := postBlob(t, blobApp(gw), "/api/stt", []byte("webm"), "200")
	defer resp.Body.Close()

	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var out struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "too_short", out.Error)
}

func TestHandleBlob_EmptyBody(t *testing.T) {
	gw := testGateway(t, "polling", "http://127.0.0.1:1")
	resp := postBlob(t, blobApp(gw), "/api/stt", nil, "1200")
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleBlob_BackendDown(t *testing.T) {
	gw := testGateway(t, "polling", "http://127.0.0.1:1")
	resp := postBlob(t, blobApp(gw), "/api/stt", []byte("webm"), "1200")
	defer resp.Body.Close()

	require.Equal(t, http.StatusBadGateway, resp.StatusCode)
	var out struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "upload_failed", out.Error)
}

func TestHandleBlob_NotServedByStreamingStrategy(t *testing.T) {
	gw := testGateway(t, "streaming", "http://127.0.0.1:1")
	resp := postBlob(t, blobApp(gw), "/api/stt", []byte("webm"), "1200")
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
