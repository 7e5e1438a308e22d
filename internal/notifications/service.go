package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"dcmrelay/internal/config"
)

const userAgent = "dcmrelay/0.1.0"

// Event identifies a notification category.
type Event string

const (
	EventStartup         Event = "startup"
	EventShutdown        Event = "shutdown"
	EventDeliveryFailure Event = "delivery_failure"
	EventPartialStop     Event = "partial_stop"
	EventTest            Event = "test"
)

// Payload carries the fields an event's message is built from.
type Payload map[string]string

// Service is the notification surface exposed to the daemon.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when a topic
// is configured, otherwise a noop implementation.
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
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		enabled: map[Event]bool{
			EventStartup:         cfg.Notifications.Startup,
			EventShutdown:        cfg.Notifications.Shutdown,
			EventDeliveryFailure: cfg.Notifications.DeliveryFailures,
			EventPartialStop:     true,
			EventTest:            true,
		},
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	enabled  map[Event]bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, fields Payload) error {
	if !n.enabled[event] {
		return nil
	}
	data, ok := format(event, fields)
	if !ok {
		return nil
	}
	return n.send(ctx, data)
}

func format(event Event, fields Payload) (payload, bool) {
	get := func(key string) string { return strings.TrimSpace(fields[key]) }

	switch event {
	case EventStartup:
		message := "Relay started"
		if listeners, routes := get("listeners"), get("routes"); listeners != "" && routes != "" {
			message = fmt.Sprintf("Relay started: %s listeners, %s routes", listeners, routes)
		}
		return payload{
			title:   "dcmrelay - Started",
			message: message,
			tags:    []string{"dcmrelay", "startup"},
		}, true
	case EventShutdown:
		return payload{
			title:   "dcmrelay - Stopped",
			message: "Relay stopped",
			tags:    []string{"dcmrelay", "shutdown"},
		}, true
	case EventDeliveryFailure:
		message := fmt.Sprintf("❌ Delivery failed: %s → %s", get("file"), get("endpoint"))
		if route := get("route"); route != "" {
			message = fmt.Sprintf("%s (route %s)", message, route)
		}
		if detail := get("detail"); detail != "" {
			message = fmt.Sprintf("%s\n%s", message, detail)
		}
		return payload{
			title:    "dcmrelay - Delivery Failed",
			message:  message,
			tags:     []string{"dcmrelay", "delivery", "alert"},
			priority: "high",
		}, true
	case EventPartialStop:
		message := "⚠️ Workers unresponsive during shutdown"
		if count := get("workers"); count != "" {
			message = fmt.Sprintf("⚠️ %s workers unresponsive during shutdown", count)
		}
		return payload{
			title:    "dcmrelay - Stop Incomplete",
			message:  message,
			tags:     []string{"dcmrelay", "shutdown", "alert"},
			priority: "high",
		}, true
	case EventTest:
		return payload{
			title:    "dcmrelay - Test",
			message:  "🧪 Notification system test",
			tags:     []string{"dcmrelay", "test"},
			priority: "low",
		}, true
	}
	return payload{}, false
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

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
