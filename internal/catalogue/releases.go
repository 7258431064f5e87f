package catalogue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"grantfeed/internal/services"
)

// InsertReleaseIfAbsent records a discovered release. An existing row with the
// same name is never touched; the return value reports whether a row was added.
func (s *Store) InsertReleaseIfAbsent(ctx context.Context, name, url string) (bool, error) {
	name = strings.TrimSpace(name)
	url = strings.TrimSpace(url)
	if name == "" || url == "" {
		return false, errors.New("insert release: name and url are required")
	}
	now := nowString()
	res, err := s.execWithRetry(
		ctx,
		`INSERT OR IGNORE INTO releases (name, url, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		name, url, ReleaseDiscovered, now, now,
	)
	if err != nil {
		return false, fmt.Errorf("insert release: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert release rows affected: %w", err)
	}
	return affected == 1, nil
}

// ReleaseByID fetches a release by identifier. A missing row returns nil, nil.
func (s *Store) ReleaseByID(ctx context.Context, id int64) (*Release, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+releaseColumns+` FROM releases WHERE id = ?`, id)
	release, err := scanRelease(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get release: %w", err)
	}
	return release, nil
}

// ReleaseByName fetches a release by exact name. A missing row returns nil, nil.
func (s *Store) ReleaseByName(ctx context.Context, name string) (*Release, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+releaseColumns+` FROM releases WHERE name = ?`, name)
	release, err := scanRelease(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get release by name: %w", err)
	}
	return release, nil
}

// FindRelease resolves an operator supplied name or name fragment. An exact
// name wins; otherwise the fragment must match exactly one release
// case-insensitively. Anything else is reported as services.ErrNotFound.
func (s *Store) FindRelease(ctx context.Context, fragment string) (*Release, error) {
	fragment = strings.TrimSpace(fragment)
	if fragment == "" {
		return nil, services.Wrap(services.ErrNotFound, "catalogue", "find release", "empty release name", nil)
	}
	exact, err := s.ReleaseByName(ctx, fragment)
	if err != nil || exact != nil {
		return exact, err
	}

	rows, err := s.db.QueryContext(
		ensureContext(ctx),
		`SELECT `+releaseColumns+` FROM releases WHERE instr(lower(name), lower(?)) > 0 ORDER BY name LIMIT 2`,
		fragment,
	)
	if err != nil {
		return nil, fmt.Errorf("find release: %w", err)
	}
	matches, err := collectReleases(rows)
	if err != nil {
		return nil, err
	}
	switch len(matches) {
	case 0:
		return nil, services.Wrap(services.ErrNotFound, "catalogue", "find release", "no release matching "+fragment, nil)
	case 1:
		return matches[0], nil
	default:
		return nil, services.Wrap(services.ErrNotFound, "catalogue", "find release",
			fmt.Sprintf("%q matches more than one release (%s, %s, ...)", fragment, matches[0].Name, matches[1].Name), nil)
	}
}

// ListReleases returns releases ordered by name, optionally filtered by status.
func (s *Store) ListReleases(ctx context.Context, statuses ...ReleaseStatus) ([]*Release, error) {
	ctx = ensureContext(ctx)
	query := `SELECT ` + releaseColumns + ` FROM releases`
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		query += ` WHERE status IN (` + makePlaceholders(len(statuses)) + `)`
		for _, status := range statuses {
			args = append(args, status)
		}
	}
	query += ` ORDER BY name`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list releases: %w", err)
	}
	return collectReleases(rows)
}

func collectReleases(rows *sql.Rows) ([]*Release, error) {
	defer rows.Close()
	var releases []*Release
	for rows.Next() {
		release, err := scanRelease(rows)
		if err != nil {
			return nil, fmt.Errorf("scan release: %w", err)
		}
		releases = append(releases, release)
	}
	return releases, rows.Err()
}

// AdvanceRelease moves a release one step forward. Re-applying the current
// status is a no-op; backward or skipping moves return ErrInvalidTransition.
func (s *Store) AdvanceRelease(ctx context.Context, id int64, to ReleaseStatus) (*Release, error) {
	current, err := s.ReleaseByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, services.Wrap(services.ErrNotFound, "catalogue", "advance release", fmt.Sprintf("release %d", id), nil)
	}
	changed, err := checkTransition(current.Status, to)
	if err != nil {
		return nil, fmt.Errorf("release %s: %w", current.Name, err)
	}
	if !changed {
		return current, nil
	}

	res, err := s.execWithRetry(
		ctx,
		`UPDATE releases SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		to, nowString(), id, current.Status,
	)
	if err != nil {
		return nil, fmt.Errorf("advance release: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		// Another writer moved the row between read and update; re-validate against its new state.
		return s.AdvanceRelease(ctx, id, to)
	}
	return s.ReleaseByID(ctx, id)
}

// ReleaseSummaries lists every release with its patent and image counts.
func (s *Store) ReleaseSummaries(ctx context.Context) ([]ReleaseSummary, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `
        SELECT r.id, r.name, r.url, r.status, r.created_at, r.updated_at,
               (SELECT COUNT(1) FROM patent p WHERE p.release_id = r.id),
               (SELECT COUNT(1) FROM image i JOIN patent p ON p.id = i.patent_id WHERE p.release_id = r.id),
               (SELECT COUNT(1) FROM image i JOIN patent p ON p.id = i.patent_id
                    WHERE p.release_id = r.id AND i.status = ?)
        FROM releases r ORDER BY r.name`, ImagePublished)
	if err != nil {
		return nil, fmt.Errorf("release summaries: %w", err)
	}
	defer rows.Close()

	var summaries []ReleaseSummary
	for rows.Next() {
		var (
			summary    ReleaseSummary
			status     string
			createdRaw string
			updatedRaw string
		)
		if err := rows.Scan(&summary.ID, &summary.Name, &summary.URL, &status, &createdRaw, &updatedRaw,
			&summary.Patents, &summary.Images, &summary.Published); err != nil {
			return nil, fmt.Errorf("scan release summary: %w", err)
		}
		summary.Status = ReleaseStatus(status)
		summary.CreatedAt, _ = parseTimeString(createdRaw)
		summary.UpdatedAt, _ = parseTimeString(updatedRaw)
		summaries = append(summaries, summary)
	}
	return summaries, rows.Err()
}
