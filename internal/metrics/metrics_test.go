package metrics_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"grantfeed/internal/catalogue"
	"grantfeed/internal/metrics"
)

func TestFlushWritesTextfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grantfeed.prom")
	rec := metrics.New(path)

	rec.ObserveStage("fetch", 2*time.Second, "")
	rec.ObserveStage("publish", time.Second, "publish_failure")
	rec.AddFetchedBytes(100)
	rec.AddRecords(3, 1, 2)
	rec.IncPublished()
	rec.SetCatalogue(catalogue.Stats{
		Releases:        map[catalogue.ReleaseStatus]int{catalogue.ReleaseExtracted: 2},
		Patents:         4,
		ImagesPending:   7,
		ImagesPublished: 1,
	})

	if err := rec.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read textfile: %v", err)
	}
	text := string(data)
	for _, want := range []string{
		`grantfeed_stage_runs_total{outcome="success",stage="fetch"} 1`,
		`grantfeed_errors_total{kind="publish_failure",stage="publish"} 1`,
		`grantfeed_fetched_bytes_total 100`,
		`grantfeed_records_total{result="skipped"} 2`,
		`grantfeed_images_published_total 1`,
		`grantfeed_releases{status="extracted"} 2`,
		`grantfeed_images{status="pending"} 7`,
		`grantfeed_last_success_timestamp_seconds{stage="fetch"}`,
	} {
		if !strings.Contains(text, want) {
			t.Errorf("expected textfile to contain %q", want)
		}
	}
}

func TestFlushWithoutPathIsNoop(t *testing.T) {
	rec := metrics.New("")
	if rec.Enabled() {
		t.Fatal("expected recorder without path to be disabled")
	}
	rec.IncPublished()
	if err := rec.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	var nilRecorder *metrics.Recorder
	nilRecorder.ObserveStage("fetch", time.Second, "")
	if err := nilRecorder.Flush(); err != nil {
		t.Fatalf("nil Flush failed: %v", err)
	}
}

func TestFlushCarriesCountersAcrossInvocations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grantfeed.prom")

	first := metrics.New(path)
	first.AddFetchedBytes(100)
	first.ObserveStage("fetch", time.Second, "")
	first.IncPublished()
	first.SetCatalogue(catalogue.Stats{ImagesPending: 5})
	if err := first.Flush(); err != nil {
		t.Fatalf("first Flush failed: %v", err)
	}

	second := metrics.New(path)
	second.AddFetchedBytes(50)
	second.ObserveStage("publish", time.Second, "")
	second.SetCatalogue(catalogue.Stats{ImagesPending: 4})
	if err := second.Flush(); err != nil {
		t.Fatalf("second Flush failed: %v", err)
	}
	if err := second.Flush(); err != nil {
		t.Fatalf("repeat Flush failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read textfile: %v", err)
	}
	text := string(data)
	for _, want := range []string{
		`grantfeed_fetched_bytes_total 150`,
		`grantfeed_images_published_total 1`,
		`grantfeed_stage_runs_total{outcome="success",stage="fetch"} 1`,
		`grantfeed_stage_runs_total{outcome="success",stage="publish"} 1`,
		`grantfeed_images{status="pending"} 4`,
	} {
		if !strings.Contains(text, want) {
			t.Errorf("expected textfile to contain %q\n%s", want, text)
		}
	}
}

func TestFlushReplacesUnreadableTextfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grantfeed.prom")
	if err := os.WriteFile(path, []byte("grantfeed_fetched_bytes_total not-a-number\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	rec := metrics.New(path)
	rec.AddFetchedBytes(7)
	if err := rec.Flush(); err == nil {
		t.Fatal("expected parse error to be reported")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read textfile: %v", err)
	}
	if !strings.Contains(string(data), "grantfeed_fetched_bytes_total 7") {
		t.Fatalf("expected textfile to be rewritten, got %s", data)
	}
}
