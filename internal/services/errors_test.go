package services_test

import (
	"errors"
	"strings"
	"testing"

	"grantfeed/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("connection reset")
	err := services.Wrap(services.ErrTransientIO, "fetch", "download", "stream interrupted", base)
	if !errors.Is(err, services.ErrTransientIO) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"fetch", "download", "stream interrupted", "connection reset"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsMarker(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrTransientIO) {
		t.Fatalf("expected transient marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "pipeline failure") {
		t.Fatalf("expected fallback detail, got %q", err.Error())
	}
}

func TestClassify(t *testing.T) {
	cases := map[string]error{
		"":                nil,
		"transient_io":    services.Wrap(services.ErrTransientIO, "extract", "read", "", errors.New("eof")),
		"data_integrity":  services.Wrap(services.ErrDataIntegrity, "load", "parse", "", nil),
		"not_found":       services.Wrap(services.ErrNotFound, "fetch", "lookup", "R9", nil),
		"exhausted_queue": services.ErrNothingToPublish,
		"publish_failure": services.Wrap(services.ErrPublishFailure, "publish", "post", "", errors.New("422")),
		"unclassified":    errors.New("plain"),
	}
	for want, err := range cases {
		if got := services.Classify(err); got != want {
			t.Fatalf("Classify(%v) = %q, want %q", err, got, want)
		}
	}
}
