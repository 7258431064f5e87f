package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTransientIO marks network or disk failures during fetch or extract.
	// Flags stay unset and re-invocation is the recovery.
	ErrTransientIO = errors.New("transient i/o failure")
	// ErrDataIntegrity marks a missing or malformed record document.
	ErrDataIntegrity = errors.New("data integrity error")
	// ErrNotFound marks a named release that matched nothing.
	ErrNotFound = errors.New("not found")
	// ErrNothingToPublish reports an exhausted image queue. It is an outcome, not a failure.
	ErrNothingToPublish = errors.New("nothing to publish")
	// ErrPublishFailure marks a rejected or failed post.
	ErrPublishFailure = errors.New("publish failure")
	ErrConfiguration  = errors.New("configuration error")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransientIO
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Classify maps an error to its taxonomy label for logs and metrics.
func Classify(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNothingToPublish):
		return "exhausted_queue"
	case errors.Is(err, ErrDataIntegrity):
		return "data_integrity"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrPublishFailure):
		return "publish_failure"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrTransientIO):
		return "transient_io"
	default:
		return "unclassified"
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "pipeline failure"
	}
	return strings.Join(parts, ": ")
}
