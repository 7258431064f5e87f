package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"grantfeed/internal/config"
)

const userAgent = "grantfeed/0.1"

// Event names a pipeline milestone.
type Event string

const (
	EventReleasesDiscovered Event = "releases_discovered"
	EventReleaseFetched     Event = "release_fetched"
	EventReleaseExtracted   Event = "release_extracted"
	EventImagePublished     Event = "image_published"
	EventQueueExhausted     Event = "queue_exhausted"
	EventError              Event = "error"
	EventTest               Event = "test"
)

// Payload carries event fields keyed by name.
type Payload map[string]any

// Service delivers events.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds an ntfy-backed service, or a no-op when no topic is configured.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
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
		settings: cfg.Notifications,
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	settings config.Notifications
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	if !n.enabled(event) {
		return nil
	}
	msg, ok := format(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func (n *ntfyService) enabled(event Event) bool {
	switch event {
	case EventReleasesDiscovered, EventReleaseFetched:
		return n.settings.Fetch
	case EventReleaseExtracted:
		return n.settings.Extract
	case EventImagePublished, EventQueueExhausted:
		return n.settings.Publish
	case EventError:
		return n.settings.Errors
	case EventTest:
		return true
	default:
		return false
	}
}

func format(event Event, payload Payload) (message, bool) {
	switch event {
	case EventReleasesDiscovered:
		count := payload.number("count")
		if count == 0 {
			return message{}, false
		}
		return message{
			title: "Grantfeed - New Releases",
			body:  fmt.Sprintf("📦 %d new release(s) discovered", count),
			tags:  []string{"grantfeed", "discover"},
		}, true
	case EventReleaseFetched:
		body := "⬇️ Downloaded: " + payload.text("release")
		if size := payload.text("size"); size != "" {
			body += " (" + size + ")"
		}
		return message{title: "Grantfeed - Downloaded", body: body, tags: []string{"grantfeed", "fetch", "completed"}}, true
	case EventReleaseExtracted:
		return message{
			title: "Grantfeed - Extracted",
			body: fmt.Sprintf("🗂️ Extracted %s: %d patents loaded, %d skipped",
				payload.text("release"), payload.number("loaded"), payload.number("skipped")),
			tags: []string{"grantfeed", "extract", "completed"},
		}, true
	case EventImagePublished:
		body := "🖼️ Published: " + payload.text("title")
		if ref := payload.text("reference"); ref != "" {
			body += " (" + ref + ")"
		}
		return message{title: "Grantfeed - Published", body: body, tags: []string{"grantfeed", "publish"}}, true
	case EventQueueExhausted:
		return message{
			title:    "Grantfeed - Queue Empty",
			body:     "Every catalogued image has been published",
			tags:     []string{"grantfeed", "publish", "empty"},
			priority: "high",
		}, true
	case EventError:
		var b strings.Builder
		b.WriteString("❌ Error")
		if stage := payload.text("stage"); stage != "" {
			b.WriteString(" during ")
			b.WriteString(stage)
		}
		b.WriteString(": ")
		if detail := payload.text("error"); detail != "" {
			b.WriteString(detail)
		} else {
			b.WriteString("unknown")
		}
		return message{title: "Grantfeed - Error", body: b.String(), tags: []string{"grantfeed", "error", "alert"}, priority: "high"}, true
	case EventTest:
		return message{title: "Grantfeed - Test", body: "🧪 Notification system test", tags: []string{"grantfeed", "test"}, priority: "low"}, true
	default:
		return message{}, false
	}
}

func (p Payload) text(key string) string {
	if p == nil {
		return ""
	}
	switch v := p[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case error:
		return strings.TrimSpace(v.Error())
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func (p Payload) number(key string) int {
	if p == nil {
		return 0
	}
	switch v := p[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	default:
		return 0
	}
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if msg.title != "" {
		req.Header.Set("Title", msg.title)
	}
	if len(msg.tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.tags, ","))
	}
	if msg.priority != "" && msg.priority != "default" {
		req.Header.Set("Priority", msg.priority)
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
