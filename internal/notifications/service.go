package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"newsagent/internal/cadence"
	"newsagent/internal/config"
)

const userAgent = "newsagent/1.0"

// Service defines the alert surface used by the pipeline and CLI.
type Service interface {
	NotifyReportSent(ctx context.Context, report cadence.ReportKey, c cadence.Cadence, recipients, items int) error
	NotifyNoRecipients(ctx context.Context, report cadence.ReportKey, c cadence.Cadence) error
	NotifyError(ctx context.Context, err error, contextLabel string) error
	TestNotification(ctx context.Context) error
}

// NewService builds an ntfy-backed service, or a no-op when no topic is set.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:   topic,
		client:     &http.Client{Timeout: timeout},
		reportSent: cfg.Notifications.ReportSent,
		errors:     cfg.Notifications.Errors,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint   string
	client     *http.Client
	reportSent bool
	errors     bool
}

func (n *ntfyService) NotifyReportSent(ctx context.Context, report cadence.ReportKey, c cadence.Cadence, recipients, items int) error {
	if !n.reportSent {
		return nil
	}
	data := payload{
		title:   fmt.Sprintf("newsagent - %s %s sent", report, c),
		message: fmt.Sprintf("Delivered %s %s report with %d items to %d recipients", report, c, items, recipients),
		tags:    []string{"newsagent", string(report), string(c)},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyNoRecipients(ctx context.Context, report cadence.ReportKey, c cadence.Cadence) error {
	data := payload{
		title:    "newsagent - No Recipients",
		message:  fmt.Sprintf("Skipped %s %s report: no recipients configured", report, c),
		tags:     []string{"newsagent", "recipients", "skipped"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	if !n.errors {
		return nil
	}
	var builder strings.Builder
	builder.WriteString("Error")
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		builder.WriteString(" during ")
		builder.WriteString(contextLabel)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}

	data := payload{
		title:    "newsagent - Error",
		message:  builder.String(),
		tags:     []string{"newsagent", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "newsagent - Test",
		message:  "Notification system test",
		tags:     []string{"newsagent", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyReportSent(context.Context, cadence.ReportKey, cadence.Cadence, int, int) error {
	return nil
}
func (noopService) NotifyNoRecipients(context.Context, cadence.ReportKey, cadence.Cadence) error {
	return nil
}
func (noopService) NotifyError(context.Context, error, string) error { return nil }
func (noopService) TestNotification(context.Context) error           { return nil }
