package notifications_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"dcmrelay/internal/config"
	"dcmrelay/internal/notifications"
	"dcmrelay/internal/relay"
)

type capturedRequest struct {
	title    string
	tags     string
	priority string
	body     string
}

type captureServer struct {
	*httptest.Server
	mu       sync.Mutex
	requests []capturedRequest
}

func newCaptureServer(t *testing.T) *captureServer {
	t.Helper()
	cs := &captureServer{}
	cs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method: %s", r.Method)
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("read body: %v", err)
		}
		cs.mu.Lock()
		cs.requests = append(cs.requests, capturedRequest{
			title:    r.Header.Get("Title"),
			tags:     r.Header.Get("Tags"),
			priority: r.Header.Get("Priority"),
			body:     string(body),
		})
		cs.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(cs.Close)
	return cs
}

func (cs *captureServer) all() []capturedRequest {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	out := make([]capturedRequest, len(cs.requests))
	copy(out, cs.requests)
	return out
}

func serviceConfig(topic string) *config.Config {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = topic
	cfg.Notifications.RequestTimeout = 5
	cfg.Notifications.Startup = true
	cfg.Notifications.Shutdown = true
	cfg.Notifications.DeliveryFailures = true
	return &cfg
}

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	err := svc.Publish(context.Background(), notifications.EventTest, nil)
	if err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	tests := []struct {
		name           string
		event          notifications.Event
		payload        notifications.Payload
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
	}{
		{
			name:          "startup",
			event:         notifications.EventStartup,
			payload:       notifications.Payload{"listeners": "2", "routes": "3"},
			expectTitle:   "dcmrelay - Started",
			expectMessage: "Relay started: 2 listeners, 3 routes",
			expectTags:    "dcmrelay,startup",
		},
		{
			name:          "shutdown",
			event:         notifications.EventShutdown,
			payload:       nil,
			expectTitle:   "dcmrelay - Stopped",
			expectMessage: "Relay stopped",
			expectTags:    "dcmrelay,shutdown",
		},
		{
			name:  "delivery failure",
			event: notifications.EventDeliveryFailure,
			payload: notifications.Payload{
				"route":    "ct-scanner",
				"endpoint": "pacs-main",
				"file":     "/inbox/image.dcm",
				"detail":   "association rejected",
			},
			expectTitle:    "dcmrelay - Delivery Failed",
			expectMessage:  "❌ Delivery failed: /inbox/image.dcm → pacs-main (route ct-scanner)\nassociation rejected",
			expectTags:     "dcmrelay,delivery,alert",
			expectPriority: "high",
		},
		{
			name:           "partial stop",
			event:          notifications.EventPartialStop,
			payload:        notifications.Payload{"workers": "2"},
			expectTitle:    "dcmrelay - Stop Incomplete",
			expectMessage:  "⚠️ 2 workers unresponsive during shutdown",
			expectTags:     "dcmrelay,shutdown,alert",
			expectPriority: "high",
		},
		{
			name:           "test",
			event:          notifications.EventTest,
			payload:        nil,
			expectTitle:    "dcmrelay - Test",
			expectMessage:  "🧪 Notification system test",
			expectTags:     "dcmrelay,test",
			expectPriority: "low",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			server := newCaptureServer(t)
			svc := notifications.NewService(serviceConfig(server.URL))
			if err := svc.Publish(context.Background(), tc.event, tc.payload); err != nil {
				t.Fatalf("notification returned error: %v", err)
			}

			requests := server.all()
			if len(requests) != 1 {
				t.Fatalf("expected one request, got %d", len(requests))
			}
			got := requests[0]
			if got.title != tc.expectTitle {
				t.Fatalf("expected title %q, got %q", tc.expectTitle, got.title)
			}
			if got.body != tc.expectMessage {
				t.Fatalf("expected message %q, got %q", tc.expectMessage, got.body)
			}
			if got.tags != tc.expectTags {
				t.Fatalf("expected tags %q, got %q", tc.expectTags, got.tags)
			}
			if got.priority != tc.expectPriority {
				t.Fatalf("expected priority %q, got %q", tc.expectPriority, got.priority)
			}
		})
	}
}

func TestNtfyServiceIgnoresSuppressedEvents(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected call for suppressed event: %s", r.URL.String())
	}))
	defer server.Close()

	cfg := serviceConfig(server.URL)
	cfg.Notifications.Startup = false
	cfg.Notifications.Shutdown = false
	cfg.Notifications.DeliveryFailures = false

	svc := notifications.NewService(cfg)
	suppressed := []notifications.Event{
		notifications.EventStartup,
		notifications.EventShutdown,
		notifications.EventDeliveryFailure,
	}
	for _, event := range suppressed {
		if err := svc.Publish(context.Background(), event, notifications.Payload{"value": "ignored"}); err != nil {
			t.Fatalf("expected no error for suppressed event %s, got %v", event, err)
		}
	}
}

func TestNtfyServiceSurfacesServerErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "topic quota exceeded", http.StatusTooManyRequests)
	}))
	defer server.Close()

	svc := notifications.NewService(serviceConfig(server.URL))
	err := svc.Publish(context.Background(), notifications.EventTest, nil)
	if err == nil {
		t.Fatal("expected error for non-2xx response")
	}
}

func deliveryFailure(route, endpoint string) relay.Delivery {
	return relay.Delivery{
		Route:    route,
		Endpoint: endpoint,
		File:     "/inbox/image.dcm",
		Outcome:  relay.OutcomeFailed,
		Detail:   "association rejected",
	}
}

func TestRecorderPublishesFailuresOnce(t *testing.T) {
	server := newCaptureServer(t)
	svc := notifications.NewService(serviceConfig(server.URL))
	recorder := notifications.NewRecorder(svc, time.Hour, nil)
	ctx := context.Background()

	recorder.RecordDelivery(ctx, deliveryFailure("ct-scanner", "pacs-main"))
	recorder.RecordDelivery(ctx, deliveryFailure("ct-scanner", "pacs-main"))
	recorder.RecordDelivery(ctx, deliveryFailure("ct-scanner", "archive"))
	recorder.RecordDelivery(ctx, relay.Delivery{
		Route:    "ct-scanner",
		Endpoint: "pacs-main",
		Outcome:  relay.OutcomeDelivered,
	})

	requests := server.all()
	if len(requests) != 2 {
		t.Fatalf("expected 2 alerts (one per endpoint), got %d", len(requests))
	}
}

func TestRecorderAlertsAgainAfterWindow(t *testing.T) {
	server := newCaptureServer(t)
	svc := notifications.NewService(serviceConfig(server.URL))
	recorder := notifications.NewRecorder(svc, 30*time.Millisecond, nil)
	ctx := context.Background()

	recorder.RecordDelivery(ctx, deliveryFailure("ct-scanner", "pacs-main"))
	time.Sleep(60 * time.Millisecond)
	recorder.RecordDelivery(ctx, deliveryFailure("ct-scanner", "pacs-main"))

	if got := len(server.all()); got != 2 {
		t.Fatalf("expected alert after window expired, got %d requests", got)
	}
}
