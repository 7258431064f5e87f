package publish

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"grantfeed/internal/config"
	"grantfeed/internal/logging"
)

// Poster publishes one image with a caption and returns the post identifier.
type Poster interface {
	Post(ctx context.Context, media Media, caption string) (string, error)
}

// MastodonPoster posts through the Mastodon REST API.
type MastodonPoster struct {
	baseURL      string
	token        string
	visibility   string
	userAgent    string
	client       *http.Client
	pollInterval time.Duration
	pollAttempts int
}

// NewMastodonPoster builds a poster from configuration. Callers should run
// cfg.RequirePublisher first.
func NewMastodonPoster(cfg *config.Config) *MastodonPoster {
	timeout := time.Duration(cfg.Publish.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &MastodonPoster{
		baseURL:      strings.TrimRight(cfg.Publish.MastodonURL, "/"),
		token:        cfg.Publish.AccessToken,
		visibility:   cfg.Publish.Visibility,
		userAgent:    cfg.Download.UserAgent,
		client:       &http.Client{Timeout: timeout},
		pollInterval: time.Second,
		pollAttempts: 30,
	}
}

type mastodonEntity struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Post uploads the media, waits for server-side processing and creates a status.
func (m *MastodonPoster) Post(ctx context.Context, media Media, caption string) (string, error) {
	mediaID, ready, err := m.uploadMedia(ctx, media, caption)
	if err != nil {
		return "", err
	}
	if !ready {
		if err := m.awaitMedia(ctx, mediaID); err != nil {
			return "", err
		}
	}

	form := url.Values{}
	form.Set("status", caption)
	form.Add("media_ids[]", mediaID)
	if m.visibility != "" {
		form.Set("visibility", m.visibility)
	}
	req, err := m.newRequest(ctx, http.MethodPost, "/api/v1/statuses", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Idempotency-Key", uuid.NewString())

	var status mastodonEntity
	if _, err := m.do(req, &status); err != nil {
		return "", fmt.Errorf("create status: %w", err)
	}
	if status.ID == "" {
		return "", errors.New("create status: response missing id")
	}
	return status.ID, nil
}

func (m *MastodonPoster) uploadMedia(ctx context.Context, media Media, description string) (string, bool, error) {
	file, err := os.Open(media.Path)
	if err != nil {
		return "", false, fmt.Errorf("open media: %w", err)
	}
	defer file.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filepath.Base(media.Path)))
	header.Set("Content-Type", media.ContentType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return "", false, fmt.Errorf("build upload: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return "", false, fmt.Errorf("read media: %w", err)
	}
	if err := writer.WriteField("description", description); err != nil {
		return "", false, fmt.Errorf("build upload: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", false, fmt.Errorf("build upload: %w", err)
	}

	req, err := m.newRequest(ctx, http.MethodPost, "/api/v2/media", &body)
	if err != nil {
		return "", false, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	var entity mastodonEntity
	code, err := m.do(req, &entity)
	if err != nil {
		return "", false, fmt.Errorf("upload media: %w", err)
	}
	if entity.ID == "" {
		return "", false, errors.New("upload media: response missing id")
	}
	return entity.ID, code != http.StatusAccepted, nil
}

// awaitMedia polls until asynchronous media processing finishes.
func (m *MastodonPoster) awaitMedia(ctx context.Context, mediaID string) error {
	for attempt := 0; attempt < m.pollAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.pollInterval):
		}
		req, err := m.newRequest(ctx, http.MethodGet, "/api/v1/media/"+url.PathEscape(mediaID), nil)
		if err != nil {
			return err
		}
		code, err := m.do(req, nil)
		if err != nil {
			return fmt.Errorf("poll media: %w", err)
		}
		if code == http.StatusOK {
			return nil
		}
	}
	return fmt.Errorf("media %s still processing after %d checks", mediaID, m.pollAttempts)
}

func (m *MastodonPoster) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, m.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+m.token)
	req.Header.Set("Accept", "application/json")
	if m.userAgent != "" {
		req.Header.Set("User-Agent", m.userAgent)
	}
	return req, nil
}

func (m *MastodonPoster) do(req *http.Request, out any) (int, error) {
	resp, err := m.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return resp.StatusCode, fmt.Errorf("mastodon returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("decode response: %w", err)
	}
	return resp.StatusCode, nil
}

// DryRunPoster logs what would be posted and returns a synthetic id.
type DryRunPoster struct {
	logger *slog.Logger
}

// NewDryRunPoster builds a poster that never leaves the machine.
func NewDryRunPoster(logger *slog.Logger) *DryRunPoster {
	return &DryRunPoster{logger: logging.NewComponentLogger(logger, "publish")}
}

// Post implements Poster.
func (d *DryRunPoster) Post(ctx context.Context, media Media, caption string) (string, error) {
	if _, err := os.Stat(media.Path); err != nil {
		return "", fmt.Errorf("dry run: %w", err)
	}
	id := "dry-run-" + uuid.NewString()
	logging.WithContext(ctx, d.logger).Info("dry run post",
		logging.String(logging.FieldEventType, "publish_dry_run"),
		logging.String("media", media.Path),
		logging.String("content_type", media.ContentType),
		logging.String("caption", caption),
		logging.String("post_id", id),
	)
	return id, nil
}
