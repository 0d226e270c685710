// Package notify delivers workflow events to chat channels and adapts the
// market operation log onto zap.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/vttmarket/pkg/market"
)

// LogNotifier writes events to the structured log only. Used when no chat
// webhook is configured.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier wires a LogNotifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

// Notify implements market.Notifier.
func (notifier *LogNotifier) Notify(_ context.Context, event market.Event) {
	notifier.logger.Info("market event",
		zap.String("type", string(event.Type)),
		zap.String("user", event.User.String()),
		zap.String("actor", event.Actor.String()),
		zap.String("request_id", event.RequestID.String()),
		zap.String("detail", event.Detail),
	)
}

// WebhookNotifier posts events as JSON to a chat webhook. Delivery is
// fire-and-forget: failures are logged and never surfaced to the workflow.
type WebhookNotifier struct {
	endpoint string
	client   *retryablehttp.Client
	logger   *zap.Logger
}

// NewWebhookNotifier wires a WebhookNotifier for the given endpoint.
func NewWebhookNotifier(endpoint string, logger *zap.Logger) *WebhookNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.Logger = nil
	return &WebhookNotifier{endpoint: endpoint, client: client, logger: logger}
}

type webhookPayload struct {
	Type      string `json:"type"`
	User      string `json:"user"`
	Actor     string `json:"actor"`
	RequestID string `json:"requestId,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

// Notify implements market.Notifier.
func (notifier *WebhookNotifier) Notify(ctx context.Context, event market.Event) {
	payload, err := json.Marshal(webhookPayload{
		Type:      string(event.Type),
		User:      event.User.String(),
		Actor:     event.Actor.String(),
		RequestID: event.RequestID.String(),
		Detail:    event.Detail,
	})
	if err != nil {
		notifier.logger.Warn("webhook payload encode failed", zap.Error(err))
		return
	}
	request, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, notifier.endpoint, bytes.NewReader(payload))
	if err != nil {
		notifier.logger.Warn("webhook request build failed", zap.Error(err))
		return
	}
	request.Header.Set("Content-Type", "application/json")
	response, err := notifier.client.Do(request)
	if err != nil {
		notifier.logger.Warn("webhook delivery failed",
			zap.String("type", string(event.Type)),
			zap.Error(err),
		)
		return
	}
	_ = response.Body.Close()
	if response.StatusCode >= http.StatusBadRequest {
		notifier.logger.Warn("webhook delivery rejected",
			zap.String("type", string(event.Type)),
			zap.Int("status", response.StatusCode),
		)
	}
}

// ZapOperationLogger adapts market.OperationLogger onto zap.
type ZapOperationLogger struct {
	logger *zap.Logger
}

// NewZapOperationLogger wires a ZapOperationLogger.
func NewZapOperationLogger(logger *zap.Logger) *ZapOperationLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapOperationLogger{logger: logger}
}

// LogOperation implements market.OperationLogger.
func (operationLogger *ZapOperationLogger) LogOperation(_ context.Context, entry market.OperationLog) {
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("user", entry.User.String()),
		zap.String("actor", entry.Actor.String()),
		zap.String("status", entry.Status),
	}
	if entry.RequestID.String() != "" {
		fields = append(fields, zap.String("request_id", entry.RequestID.String()))
	}
	if entry.LineID.String() != "" {
		fields = append(fields, zap.String("line_id", entry.LineID.String()))
	}
	if entry.CatalogID.String() != "" {
		fields = append(fields, zap.String("catalog_id", entry.CatalogID.String()))
	}
	if entry.Cost != 0 {
		fields = append(fields, zap.Int64("cost", entry.Cost.Int64()))
	}
	if entry.Karma != 0 {
		fields = append(fields, zap.Int64("karma", entry.Karma.Int64()))
	}
	if entry.Error != nil {
		fields = append(fields, zap.Error(entry.Error))
		operationLogger.logger.Warn("market operation", fields...)
		return
	}
	operationLogger.logger.Info("market operation", fields...)
}
