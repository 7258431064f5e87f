package catalogue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// PendingImageFilenames materializes every unpublished image filename.
func (s *Store) PendingImageFilenames(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT filename FROM image WHERE status = ? ORDER BY filename`, ImagePending)
	if err != nil {
		return nil, fmt.Errorf("list pending images: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan pending image: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// ImageWithPatent loads an image and its owning patent. A missing image returns nil, nil.
func (s *Store) ImageWithPatent(ctx context.Context, filename string) (*ImageRecord, error) {
	columns := prefixColumns("i", imageColumns) + ", " + prefixColumns("p", patentColumns)
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT `+columns+` FROM image i JOIN patent p ON p.id = i.patent_id WHERE i.filename = ?`, filename)

	var (
		img        imageScan
		patent     Patent
		extracted  int64
		createdRaw sql.NullString
	)
	dest := append(img.dest(), patentDest(&patent, &extracted, &createdRaw)...)
	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get image: %w", err)
	}
	patent.Extracted = extracted != 0
	patent.CreatedAt, _ = parseTimeString(createdRaw.String)
	return &ImageRecord{Image: img.finish(), Patent: patent}, nil
}

// MarkImagePublished flips a pending image to published. It reports false when
// the image was already published or does not exist, so a filename is only
// ever claimed once.
func (s *Store) MarkImagePublished(ctx context.Context, filename, postID string) (bool, error) {
	res, err := s.execWithRetry(ctx,
		`UPDATE image SET status = ?, post_id = ?, published_at = ? WHERE filename = ? AND status = ?`,
		ImagePublished, nullableString(postID), nowString(), filename, ImagePending,
	)
	if err != nil {
		return false, fmt.Errorf("mark image published: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark image published rows affected: %w", err)
	}
	return affected == 1, nil
}

// MarkImageUnavailable takes a pending image out of the draw. It reports false
// when the image was not pending.
func (s *Store) MarkImageUnavailable(ctx context.Context, filename string) (bool, error) {
	res, err := s.execWithRetry(ctx,
		`UPDATE image SET status = ? WHERE filename = ? AND status = ?`,
		ImageUnavailable, filename, ImagePending,
	)
	if err != nil {
		return false, fmt.Errorf("mark image unavailable: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark image unavailable rows affected: %w", err)
	}
	return affected == 1, nil
}

// RequeueUnavailableImages returns every unavailable image to pending.
func (s *Store) RequeueUnavailableImages(ctx context.Context) (int, error) {
	res, err := s.execWithRetry(ctx,
		`UPDATE image SET status = ? WHERE status = ?`, ImagePending, ImageUnavailable)
	if err != nil {
		return 0, fmt.Errorf("requeue unavailable images: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("requeue unavailable images rows affected: %w", err)
	}
	return int(affected), nil
}

// Stats aggregates release, patent and image counts.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	ctx = ensureContext(ctx)
	stats := Stats{Releases: make(map[ReleaseStatus]int, len(releaseOrder))}
	for _, status := range releaseOrder {
		stats.Releases[status] = 0
	}

	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM releases GROUP BY status`)
	if err != nil {
		return Stats{}, fmt.Errorf("release stats: %w", err)
	}
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			rows.Close()
			return Stats{}, fmt.Errorf("scan release stats: %w", err)
		}
		stats.Releases[ReleaseStatus(status)] = count
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return Stats{}, err
	}
	rows.Close()

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM patent`).Scan(&stats.Patents); err != nil {
		return Stats{}, fmt.Errorf("patent stats: %w", err)
	}
	err = s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(status = ?), 0), COALESCE(SUM(status = ?), 0), COALESCE(SUM(status = ?), 0) FROM image`,
		ImagePending, ImagePublished, ImageUnavailable,
	).Scan(&stats.ImagesPending, &stats.ImagesPublished, &stats.ImagesUnavailable)
	if err != nil {
		return Stats{}, fmt.Errorf("image stats: %w", err)
	}
	return stats, nil
}

func prefixColumns(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, part := range parts {
		parts[i] = alias + "." + strings.TrimSpace(part)
	}
	return strings.Join(parts, ", ")
}
