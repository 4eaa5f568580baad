// Package sink talks to the external workflow-automation webhook that renders
// and sends the actual notifications. The sink accepts a dispatch job
// synchronously and reports the delivery outcome later through callbacks.
package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

// Config carries the sink connection settings.
type Config struct {
	WebhookURL      string
	Timeout         time.Duration
	CallbackBaseURL string
	CallbackSecret  string
	CallbackTTL     time.Duration
}

// Client posts dispatch payloads to the sink webhook.
type Client struct {
	cfg    Config
	http   *fasthttp.Client
	logger *zap.Logger
}

// NewClient builds a sink client with a hard per-call timeout.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.CallbackTTL <= 0 {
		cfg.CallbackTTL = 48 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg: cfg,
		http: &fasthttp.Client{
			ReadTimeout:  cfg.Timeout,
			WriteTimeout: cfg.Timeout,
		},
		logger: logger,
	}
}

// Dispatch sends one payload to the sink. A nil error only means the sink
// accepted the job; delivery confirmation arrives via callback.
func (c *Client) Dispatch(ctx context.Context, payload Payload) error {
	if c.cfg.WebhookURL == "" {
		return fmt.Errorf("sink webhook url not configured")
	}

	if err := c.attachCallbacks(&payload); err != nil {
		return fmt.Errorf("sign callback urls: %w", err)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.cfg.WebhookURL)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.SetBody(body)

	deadline := time.Now().Add(c.cfg.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	if err := c.http.DoDeadline(req, resp, deadline); err != nil {
		return fmt.Errorf("sink call failed: %w", err)
	}

	status := resp.StatusCode()
	if status < 200 || status > 299 {
		return fmt.Errorf("sink returned status %d", status)
	}

	c.logger.Debug("sink accepted dispatch",
		zap.String("queue_id", payload.QueueID),
		zap.String("task_id", payload.TaskID),
		zap.String("action", payload.ActionType))
	return nil
}

func (c *Client) attachCallbacks(payload *Payload) error {
	token, err := SignCallbackToken(c.cfg.CallbackSecret, payload.QueueID, payload.TaskID, c.cfg.CallbackTTL)
	if err != nil {
		return err
	}
	base := c.cfg.CallbackBaseURL
	if payload.QueueID != "" {
		payload.CallbackSentURL = fmt.Sprintf("%s/api/v1/callbacks/delivery/sent?token=%s", base, token)
		payload.CallbackFailedURL = fmt.Sprintf("%s/api/v1/callbacks/delivery/failed?token=%s", base, token)
	}
	payload.CallbackConflictURL = fmt.Sprintf("%s/api/v1/callbacks/calendar/conflict?token=%s", base, token)
	payload.CallbackCreatedURL = fmt.Sprintf("%s/api/v1/callbacks/calendar/created?token=%s", base, token)
	return nil
}
