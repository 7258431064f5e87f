package publish

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"grantfeed/internal/config"
)

func TestMastodonPosterUploadsThenPosts(t *testing.T) {
	var polls atomic.Int32
	var status struct {
		text, visibility, mediaID, idempotency string
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/v2/media":
			file, header, err := r.FormFile("file")
			if err != nil {
				t.Errorf("read upload: %v", err)
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			data, _ := io.ReadAll(file)
			if string(data) != "png-bytes" || header.Header.Get("Content-Type") != "image/png" {
				t.Errorf("unexpected upload %q (%s)", data, header.Header.Get("Content-Type"))
			}
			if r.FormValue("description") != "Widget\nUS1" {
				t.Errorf("unexpected description %q", r.FormValue("description"))
			}
			w.WriteHeader(http.StatusAccepted)
			_, _ = io.WriteString(w, `{"id":"m1"}`)
		case r.Method == http.MethodGet && r.URL.Path == "/api/v1/media/m1":
			if polls.Add(1) < 2 {
				w.WriteHeader(http.StatusPartialContent)
				return
			}
			_, _ = io.WriteString(w, `{"id":"m1"}`)
		case r.Method == http.MethodPost && r.URL.Path == "/api/v1/statuses":
			if err := r.ParseForm(); err != nil {
				t.Errorf("parse form: %v", err)
			}
			status.text = r.PostForm.Get("status")
			status.visibility = r.PostForm.Get("visibility")
			status.mediaID = r.PostForm.Get("media_ids[]")
			status.idempotency = r.Header.Get("Idempotency-Key")
			_, _ = io.WriteString(w, `{"id":"s42","url":"https://example.test/@bot/s42"}`)
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	cfg := config.Default()
	cfg.Publish.MastodonURL = srv.URL
	cfg.Publish.AccessToken = "secret"
	cfg.Publish.Visibility = "unlisted"
	poster := NewMastodonPoster(&cfg)
	poster.pollInterval = time.Millisecond

	path := filepath.Join(t.TempDir(), "drawing.png")
	if err := writeTestFile(path, "png-bytes"); err != nil {
		t.Fatal(err)
	}
	id, err := poster.Post(context.Background(), Media{Path: path, ContentType: "image/png"}, "Widget\nUS1")
	if err != nil {
		t.Fatalf("Post failed: %v", err)
	}
	if id != "s42" {
		t.Fatalf("expected status id s42, got %q", id)
	}
	if status.text != "Widget\nUS1" || status.visibility != "unlisted" || status.mediaID != "m1" || status.idempotency == "" {
		t.Fatalf("unexpected status request %#v", status)
	}
	if polls.Load() != 2 {
		t.Fatalf("expected 2 media polls, got %d", polls.Load())
	}
}

func TestMastodonPosterSurfacesRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = io.WriteString(w, `{"error":"Validation failed"}`)
	}))
	defer srv.Close()

	cfg := config.Default()
	cfg.Publish.MastodonURL = srv.URL
	cfg.Publish.AccessToken = "secret"
	path := filepath.Join(t.TempDir(), "drawing.png")
	if err := writeTestFile(path, "x"); err != nil {
		t.Fatal(err)
	}

	_, err := NewMastodonPoster(&cfg).Post(context.Background(), Media{Path: path, ContentType: "image/png"}, "c")
	if err == nil || !strings.Contains(err.Error(), "422") {
		t.Fatalf("expected 422 error, got %v", err)
	}
}

func writeTestFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}
