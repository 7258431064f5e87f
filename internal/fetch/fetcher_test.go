package fetch_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"testing"

	"grantfeed/internal/catalogue"
	"grantfeed/internal/fetch"
	"grantfeed/internal/logging"
	"grantfeed/internal/services"
	"grantfeed/internal/testsupport"
)

func TestFetchDownloadsAndAdvances(t *testing.T) {
	payload := bytes.Repeat([]byte{0x42}, 100)
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
		_, _ = w.Write(payload)
	}))
	defer server.Close()

	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	release := testsupport.NewRelease(t, store, "R1.tar", server.URL+"/R1.tar")
	fetcher := fetch.New(cfg, store, logging.NewNop())

	updated, err := fetcher.Fetch(context.Background(), release)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if updated.Status != catalogue.ReleaseDownloaded {
		t.Fatalf("expected downloaded status, got %s", updated.Status)
	}

	target := filepath.Join(cfg.CacheDir(), "R1.tar")
	info, err := os.Stat(target)
	if err != nil {
		t.Fatalf("stat cached archive: %v", err)
	}
	if info.Size() != 100 {
		t.Fatalf("expected 100 bytes, got %d", info.Size())
	}
	if _, err := os.Stat(target + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("expected temp file to be gone, got %v", err)
	}

	again, err := fetcher.Fetch(context.Background(), updated)
	if err != nil {
		t.Fatalf("second Fetch failed: %v", err)
	}
	if again.Status != catalogue.ReleaseDownloaded || hits.Load() != 1 {
		t.Fatalf("expected no second transfer, hits=%d", hits.Load())
	}
}

func TestFetchUsesExistingCacheFile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request for %s", r.URL.Path)
	}))
	defer server.Close()

	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	release := testsupport.NewRelease(t, store, "R1.tar", server.URL+"/R1.tar")
	testsupport.WriteBytes(t, filepath.Join(cfg.CacheDir(), "R1.tar"), bytes.Repeat([]byte{0x42}, 64))

	updated, err := fetch.New(cfg, store, logging.NewNop()).Fetch(context.Background(), release)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if !updated.Downloaded() {
		t.Fatalf("expected release to be downloaded, got %s", updated.Status)
	}
}

func TestFetchTruncatedTransferLeavesStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "100")
		_, _ = w.Write(bytes.Repeat([]byte{0x42}, 40))
	}))
	defer server.Close()

	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	release := testsupport.NewRelease(t, store, "R1.tar", server.URL+"/R1.tar")

	_, err := fetch.New(cfg, store, logging.NewNop()).Fetch(context.Background(), release)
	if !errors.Is(err, services.ErrTransientIO) {
		t.Fatalf("expected transient error, got %v", err)
	}

	current, err := store.ReleaseByID(context.Background(), release.ID)
	if err != nil {
		t.Fatalf("ReleaseByID failed: %v", err)
	}
	if current.Status != catalogue.ReleaseDiscovered {
		t.Fatalf("expected status unchanged, got %s", current.Status)
	}
	entries, err := os.ReadDir(cfg.CacheDir())
	if err != nil {
		t.Fatalf("read cache dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty cache dir, found %d entries", len(entries))
	}
}

func TestFetchRejectsErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	release := testsupport.NewRelease(t, store, "R1.tar", server.URL+"/R1.tar")

	if _, err := fetch.New(cfg, store, logging.NewNop()).Fetch(context.Background(), release); !errors.Is(err, services.ErrTransientIO) {
		t.Fatalf("expected transient error, got %v", err)
	}
}

func TestCachePathStripsDirectories(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	fetcher := fetch.New(cfg, nil, logging.NewNop())

	got := fetcher.CachePath("../../etc/R1.tar")
	want := filepath.Join(cfg.CacheDir(), "R1.tar")
	if got != want {
		t.Fatalf("CachePath = %q, want %q", got, want)
	}
}
