package catalogue

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidTransition is returned when a status change would move backwards or skip a step.
var ErrInvalidTransition = errors.New("invalid status transition")

// ReleaseStatus is the lifecycle of a release archive.
type ReleaseStatus string

const (
	ReleaseDiscovered ReleaseStatus = "discovered"
	ReleaseDownloaded ReleaseStatus = "downloaded"
	ReleaseExtracted  ReleaseStatus = "extracted"
)

var releaseOrder = []ReleaseStatus{ReleaseDiscovered, ReleaseDownloaded, ReleaseExtracted}

// ParseReleaseStatus converts a user supplied value to a ReleaseStatus.
func ParseReleaseStatus(value string) (ReleaseStatus, error) {
	normalized := ReleaseStatus(strings.ToLower(strings.TrimSpace(value)))
	for _, status := range releaseOrder {
		if status == normalized {
			return status, nil
		}
	}
	return "", fmt.Errorf("unknown release status %q", value)
}

// AllReleaseStatuses lists release statuses in lifecycle order.
func AllReleaseStatuses() []ReleaseStatus {
	return append([]ReleaseStatus(nil), releaseOrder...)
}

func (s ReleaseStatus) rank() int {
	for idx, status := range releaseOrder {
		if status == s {
			return idx
		}
	}
	return -1
}

// ImageStatus is the lifecycle of a catalogued image.
type ImageStatus string

const (
	ImagePending     ImageStatus = "pending"
	ImagePublished   ImageStatus = "published"
	// ImageUnavailable is set aside because its file is missing or unreadable.
	ImageUnavailable ImageStatus = "unavailable"
)

// checkTransition allows a same-state no-op or exactly one step forward.
func checkTransition(from, to ReleaseStatus) (bool, error) {
	fromRank, toRank := from.rank(), to.rank()
	if fromRank < 0 || toRank < 0 {
		return false, fmt.Errorf("%w: unknown status %q -> %q", ErrInvalidTransition, from, to)
	}
	switch {
	case fromRank == toRank:
		return false, nil
	case toRank == fromRank+1:
		return true, nil
	default:
		return false, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
}

// Release is one upstream bulk-data archive.
type Release struct {
	ID        int64         `json:"id"`
	Name      string        `json:"name"`
	URL       string        `json:"url"`
	Status    ReleaseStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Downloaded reports whether the archive is complete in the cache.
func (r *Release) Downloaded() bool {
	return r != nil && r.Status.rank() >= ReleaseDownloaded.rank()
}

// Extracted reports whether both archive layers have been unpacked.
func (r *Release) Extracted() bool {
	return r != nil && r.Status == ReleaseExtracted
}

// Patent is one grant record derived from a release.
type Patent struct {
	ID        int64     `json:"id"`
	Filename  string    `json:"filename"`
	ReleaseID int64     `json:"release_id"`
	DocType   string    `json:"doc_type"`
	Title     string    `json:"title"`
	Reference string    `json:"reference"`
	Extracted bool      `json:"extracted"`
	CreatedAt time.Time `json:"created_at"`
}

// Image is one drawing sheet referenced by a patent.
type Image struct {
	Filename    string      `json:"filename"`
	PatentID    int64       `json:"patent_id"`
	Status      ImageStatus `json:"status"`
	PostID      string      `json:"post_id,omitempty"`
	PublishedAt *time.Time  `json:"published_at,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}

// ImageRecord is an image joined with its owning patent.
type ImageRecord struct {
	Image  Image
	Patent Patent
}

// PatentRecord is the parsed content the loader hands to InsertPatent.
type PatentRecord struct {
	Filename  string
	ReleaseID int64
	DocType   string
	Title     string
	Reference string
	Images    []string
}

// InsertResult describes the outcome of InsertPatent.
type InsertResult struct {
	Patent        *Patent
	Created       bool
	ImagesAdded   int
	ImagesIgnored int
}

// ReleaseSummary is a release with counts of what has been catalogued from it.
type ReleaseSummary struct {
	Release
	Patents   int `json:"patents"`
	Images    int `json:"images"`
	Published int `json:"published"`
}

// Stats aggregates catalogue counts.
type Stats struct {
	Releases          map[ReleaseStatus]int `json:"releases"`
	Patents           int                   `json:"patents"`
	ImagesPending     int                   `json:"images_pending"`
	ImagesUnavailable int                   `json:"images_unavailable"`
	ImagesPublished   int                   `json:"images_published"`
}
