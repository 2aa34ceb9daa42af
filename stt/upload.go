package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/voyplan/voice-gateway/transcript"
)

// Backend order statuses, as reported in content.orderInfo.status.
const (
	orderStatusQueued     = 0
	orderStatusProcessing = 3
	orderStatusCompleted  = 4
	orderStatusFailed     = -1
)

const successCode = "000000"

// lfasrEnvelope is the response wrapper shared by the upload and getResult
// endpoints.
type lfasrEnvelope struct {
	Code     string `json:"code"`
	DescInfo string `json:"descInfo"`
	Content  struct {
		OrderID   string `json:"orderId"`
		OrderInfo struct {
			Status   int `json:"status"`
			FailType int `json:"failType"`
		} `json:"orderInfo"`
		OrderResult string `json:"orderResult"`
	} `json:"content"`
}

// uploadClient talks to the batch transcription HTTP API: one upload request
// creating a remote job, then a bounded poll loop until the job reaches a
// terminal status.
type uploadClient struct {
	cfg        Config
	uploadHTTP *http.Client
	pollHTTP   *http.Client
	logger     *log.Logger
}

func newUploadClient(cfg Config) *uploadClient {
	if cfg.UploadTimeout <= 0 {
		cfg.UploadTimeout = 120 * time.Second
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 10 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.MaxPolls <= 0 {
		cfg.MaxPolls = 20
	}
	return &uploadClient{
		cfg:        cfg,
		uploadHTTP: &http.Client{Timeout: cfg.UploadTimeout},
		pollHTTP:   &http.Client{Timeout: cfg.PollTimeout},
		logger:     cfg.Logger,
	}
}

// Upload sends the raw audio bytes in one request and returns the backend's
// job identifier.
func (c *uploadClient) Upload(ctx context.Context, fileName string, data []byte, duration time.Duration) (string, error) {
	ts := c.cfg.Signer.Timestamp()

	q := url.Values{}
	q.Set("appId", c.cfg.Signer.AppID)
	q.Set("signa", c.cfg.Signer.Signa(ts))
	q.Set("ts", ts)
	q.Set("fileName", fileName)
	q.Set("fileSize", strconv.Itoa(len(data)))
	q.Set("duration", strconv.Itoa(int(duration.Round(time.Second)/time.Second)))
	q.Set("language", c.cfg.Language)

	uploadURL := c.endpoint(c.cfg.UploadPath, q)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, bytes.NewReader(data))
	if err != nil {
		return "", errors.Wrap(ErrUploadFailed, err.Error())
	}
	// The backend wants the raw body, no multipart wrapping.
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.uploadHTTP.Do(req)
	if err != nil {
		return "", errors.Wrap(ErrUploadFailed, err.Error())
	}
	defer resp.Body.Close()

	env, err := decodeEnvelope(resp)
	if err != nil {
		return "", errors.Wrap(ErrUploadFailed, err.Error())
	}
	if env.Code != successCode || env.Content.OrderID == "" {
		return "", errors.Wrapf(ErrUploadFailed, "code=%s desc=%s", env.Code, env.DescInfo)
	}
	return env.Content.OrderID, nil
}

// PollUntilDone polls the job status at a fixed interval until it completes,
// fails, or the retry budget runs out. Transport errors and unexpected
// response codes are transient: they consume one attempt and the loop goes
// on. A backend-reported failure is terminal and never retried.
func (c *uploadClient) PollUntilDone(ctx context.Context, orderID string) (string, error) {
	for attempt := 0; attempt < c.cfg.MaxPolls; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, c.cfg.PollInterval); err != nil {
				return "", err
			}
		}

		if c.cfg.OnPoll != nil {
			c.cfg.OnPoll()
		}
		env, err := c.pollOnce(ctx, orderID)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			c.logf("poll attempt %d for order %s failed: %v", attempt+1, orderID, err)
			continue
		}

		if env.Code != successCode {
			c.logf("poll attempt %d for order %s: code=%s desc=%s", attempt+1, orderID, env.Code, env.DescInfo)
			continue
		}

		switch env.Content.OrderInfo.Status {
		case orderStatusCompleted:
			return c.extractResult(orderID, env.Content.OrderResult), nil
		case orderStatusFailed:
			return "", errors.Wrapf(ErrBackendTranscriptionFailed, "order=%s failType=%d", orderID, env.Content.OrderInfo.FailType)
		default:
			// queued or still processing
		}
	}
	return "", errors.Wrapf(ErrPollingTimeout, "order=%s after %d polls", orderID, c.cfg.MaxPolls)
}

func (c *uploadClient) pollOnce(ctx context.Context, orderID string) (*lfasrEnvelope, error) {
	ts := c.cfg.Signer.Timestamp()

	q := url.Values{}
	q.Set("appId", c.cfg.Signer.AppID)
	q.Set("signa", c.cfg.Signer.Signa(ts))
	q.Set("ts", ts)
	q.Set("orderId", orderID)
	q.Set("resultType", "transfer")

	pollURL := c.endpoint(c.cfg.GetResultPath, q)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pollURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.pollHTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	return decodeEnvelope(resp)
}

// extractResult parses the nested transcription lattice. Parse failures
// downgrade to an empty transcript with a logged diagnostic; crashing the
// session over a malformed result helps nobody.
func (c *uploadClient) extractResult(orderID, orderResult string) string {
	if orderResult == "" {
		c.logf("order %s finished with empty result", orderID)
		return ""
	}
	text, err := transcript.ExtractLatticeText(orderResult)
	if err != nil {
		c.logf("order %s result parse failed: %v", orderID, err)
		return ""
	}
	return text
}

// endpoint builds a request URL. UploadHost is normally a bare hostname; a
// full http(s) prefix is honored as-is.
func (c *uploadClient) endpoint(path string, q url.Values) string {
	base := "https://" + c.cfg.UploadHost
	if strings.Contains(c.cfg.UploadHost, "://") {
		base = c.cfg.UploadHost
	}
	return fmt.Sprintf("%s%s?%s", base, path, q.Encode())
}

func decodeEnvelope(resp *http.Response) (*lfasrEnvelope, error) {
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, string(body))
	}
	var env lfasrEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &env, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *uploadClient) logf(format string, args ...interface{}) {
	if c.logger != nil {
		c.logger.Printf(format, args...)
	}
}
