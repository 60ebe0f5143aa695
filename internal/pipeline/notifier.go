package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"
)

// Notifier receives the completion signal for a processed call. Delivery is
// best-effort; a notification failure never fails the run.
type Notifier interface {
	CallProcessed(ctx context.Context, n CompletionNotice)
}

type CompletionNotice struct {
	OrgID      string `json:"org_id"`
	UserID     string `json:"user_id"`
	CallID     string `json:"call_id"`
	RunAttempt int    `json:"run_attempt"`

	// CompanyName is the extracted customer company, falling back to the
	// customer role label when extraction found none.
	CompanyName     string `json:"company_name"`
	DurationSeconds int    `json:"duration_seconds"`
}

// LogNotifier writes completion notices to the structured log. Used when no
// webhook sink is configured.
type LogNotifier struct {
	Logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) LogNotifier {
	return LogNotifier{Logger: logger}
}

func (n LogNotifier) CallProcessed(ctx context.Context, notice CompletionNotice) {
	n.Logger.InfoContext(ctx, "call processed",
		"org_id", notice.OrgID,
		"call_id", notice.CallID,
		"run_attempt", notice.RunAttempt,
		"company_name", notice.CompanyName,
		"duration_seconds", notice.DurationSeconds,
	)
}

// WebhookNotifier POSTs completion notices to a configured URL.
type WebhookNotifier struct {
	client *resty.Client
	url    string
	logger *slog.Logger
}

func NewWebhookNotifier(url string, logger *slog.Logger) *WebhookNotifier {
	client := resty.New().
		SetTimeout(10 * time.Second).
		SetRetryCount(2)
	return &WebhookNotifier{client: client, url: url, logger: logger}
}

func (n *WebhookNotifier) CallProcessed(ctx context.Context, notice CompletionNotice) {
	resp, err := n.client.R().
		SetContext(ctx).
		SetBody(notice).
		Post(n.url)
	if err != nil {
		n.logger.WarnContext(ctx, "completion webhook failed", "call_id", notice.CallID, "error", err)
		return
	}
	if resp.IsError() {
		n.logger.WarnContext(ctx, "completion webhook rejected",
			"call_id", notice.CallID, "status", resp.StatusCode())
	}
}
