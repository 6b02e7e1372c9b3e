package webhooks

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
)

// Request headers on every outbound delivery.
const (
	headerWebhookID = "X-Webhook-Id"
	headerEventID   = "X-Event-Id"
	headerEventType = "X-Event-Type"
	headerSignature = "X-Signature"
)

// Sender performs one delivery attempt to a subscription's target. It returns
// the HTTP status code when a response was received; a transport failure
// (connect error, timeout) returns a zero status and a non-nil error.
type Sender interface {
	Send(ctx context.Context, sub Subscription, event Event) (int, error)
}

// NopSender accepts every delivery without performing any I/O. Useful for
// testing and for wiring an engine whose outcomes are driven elsewhere.
type NopSender struct{}

// Send implements the Sender interface.
func (NopSender) Send(_ context.Context, _ Subscription, _ Event) (int, error) {
	return http.StatusOK, nil
}

// HTTPSender POSTs the event's canonical JSON form to the subscription's
// target URL, signing the body with the subscription's secret. One shared
// http.Client serves all targets; per-attempt deadlines come from each
// subscription's AttemptTimeout.
type HTTPSender struct {
	client    *http.Client
	logger    *zap.Logger
	userAgent string
}

// NewHTTPSender creates an HTTP sender with the given options.
func NewHTTPSender(opts ...HTTPSenderOption) *HTTPSender {
	s := &HTTPSender{
		client:    &http.Client{},
		logger:    zap.NewNop(),
		userAgent: "taskplane-webhooks/1.0",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Send implements the Sender interface.
func (s *HTTPSender) Send(ctx context.Context, sub Subscription, event Event) (int, error) {
	body, err := event.Body()
	if err != nil {
		return 0, err
	}

	ctx, cancel := context.WithTimeout(ctx, sub.AttemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.TargetURL, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("failed to build request for %s: %w", sub.TargetURL, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set(headerWebhookID, sub.ID)
	req.Header.Set(headerEventID, event.ID)
	req.Header.Set(headerEventType, event.Kind.String())
	req.Header.Set(headerSignature, Sign(sub.Secret, body))

	// Propagate trace context so receivers can join the producing trace.
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	// Drain so the connection can be reused; the response body itself is
	// not part of the contract.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	s.logger.Debug("Delivery attempt completed",
		zap.String("subscription_id", sub.ID),
		zap.String("event_id", event.ID),
		zap.Int("status_code", resp.StatusCode))

	return resp.StatusCode, nil
}
