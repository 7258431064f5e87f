package catalogue

import (
	"database/sql"
	"errors"
	"time"
)

type rowScanner interface{ Scan(dest ...any) error }

const releaseColumns = "id, name, url, status, created_at, updated_at"

const patentColumns = "id, filename, release_id, doc_type, title, reference, extracted, created_at"

const imageColumns = "filename, patent_id, status, post_id, published_at, created_at"

func scanRelease(scanner rowScanner) (*Release, error) {
	var (
		release    Release
		status     string
		createdRaw sql.NullString
		updatedRaw sql.NullString
	)
	if err := scanner.Scan(&release.ID, &release.Name, &release.URL, &status, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}
	release.Status = ReleaseStatus(status)
	release.CreatedAt, _ = parseTimeString(createdRaw.String)
	release.UpdatedAt, _ = parseTimeString(updatedRaw.String)
	return &release, nil
}

func patentDest(p *Patent, extracted *int64, createdRaw *sql.NullString) []any {
	return []any{&p.ID, &p.Filename, &p.ReleaseID, &p.DocType, &p.Title, &p.Reference, extracted, createdRaw}
}

func scanPatent(scanner rowScanner) (*Patent, error) {
	var (
		patent     Patent
		extracted  int64
		createdRaw sql.NullString
	)
	if err := scanner.Scan(patentDest(&patent, &extracted, &createdRaw)...); err != nil {
		return nil, err
	}
	patent.Extracted = extracted != 0
	patent.CreatedAt, _ = parseTimeString(createdRaw.String)
	return &patent, nil
}

type imageScan struct {
	image        Image
	status       string
	postID       sql.NullString
	publishedRaw sql.NullString
	createdRaw   sql.NullString
}

func (s *imageScan) dest() []any {
	return []any{&s.image.Filename, &s.image.PatentID, &s.status, &s.postID, &s.publishedRaw, &s.createdRaw}
}

func (s *imageScan) finish() Image {
	img := s.image
	img.Status = ImageStatus(s.status)
	img.PostID = s.postID.String
	if s.publishedRaw.Valid {
		if published, err := parseTimeString(s.publishedRaw.String); err == nil {
			img.PublishedAt = &published
		}
	}
	img.CreatedAt, _ = parseTimeString(s.createdRaw.String)
	return img
}

func nowString() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
