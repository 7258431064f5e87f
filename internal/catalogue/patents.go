package catalogue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// InsertPatent records a parsed patent and its images in one transaction.
// An existing filename is left untouched and reported with Created=false.
// Image filenames already claimed by any patent are skipped and counted.
func (s *Store) InsertPatent(ctx context.Context, record PatentRecord) (InsertResult, error) {
	record.Filename = strings.TrimSpace(record.Filename)
	if record.Filename == "" {
		return InsertResult{}, errors.New("insert patent: filename is required")
	}

	var result InsertResult
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		result = InsertResult{}
		existing, err := scanPatent(tx.QueryRowContext(ctx, `SELECT `+patentColumns+` FROM patent WHERE filename = ?`, record.Filename))
		switch {
		case err == nil:
			result.Patent = existing
			return nil
		case !errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("lookup patent: %w", err)
		}

		now := nowString()
		res, err := tx.ExecContext(ctx,
			`INSERT INTO patent (filename, release_id, doc_type, title, reference, extracted, created_at)
             VALUES (?, ?, ?, ?, ?, 1, ?)`,
			record.Filename, record.ReleaseID, record.DocType, record.Title, record.Reference, now,
		)
		if err != nil {
			return fmt.Errorf("insert patent: %w", err)
		}
		patentID, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("insert patent id: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx,
			`INSERT OR IGNORE INTO image (filename, patent_id, status, created_at) VALUES (?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare image insert: %w", err)
		}
		defer stmt.Close()
		for _, name := range record.Images {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			imgRes, err := stmt.ExecContext(ctx, name, patentID, ImagePending, now)
			if err != nil {
				return fmt.Errorf("insert image %s: %w", name, err)
			}
			if affected, _ := imgRes.RowsAffected(); affected == 1 {
				result.ImagesAdded++
			} else {
				result.ImagesIgnored++
			}
		}

		created, err := scanPatent(tx.QueryRowContext(ctx, `SELECT `+patentColumns+` FROM patent WHERE id = ?`, patentID))
		if err != nil {
			return fmt.Errorf("reload patent: %w", err)
		}
		result.Patent = created
		result.Created = true
		return nil
	})
	if err != nil {
		return InsertResult{}, err
	}
	return result, nil
}

// PatentByFilename fetches a patent by its record filename. A missing row returns nil, nil.
func (s *Store) PatentByFilename(ctx context.Context, filename string) (*Patent, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+patentColumns+` FROM patent WHERE filename = ?`, filename)
	patent, err := scanPatent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get patent: %w", err)
	}
	return patent, nil
}

// PatentExists reports whether a patent row exists for filename.
func (s *Store) PatentExists(ctx context.Context, filename string) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT EXISTS(SELECT 1 FROM patent WHERE filename = ?)`, filename).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("patent exists: %w", err)
	}
	return exists == 1, nil
}

// PatentImages lists the images owned by a patent ordered by filename.
func (s *Store) PatentImages(ctx context.Context, patentID int64) ([]Image, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT `+imageColumns+` FROM image WHERE patent_id = ? ORDER BY filename`, patentID)
	if err != nil {
		return nil, fmt.Errorf("list patent images: %w", err)
	}
	defer rows.Close()
	var images []Image
	for rows.Next() {
		var scan imageScan
		if err := rows.Scan(scan.dest()...); err != nil {
			return nil, fmt.Errorf("scan image: %w", err)
		}
		images = append(images, scan.finish())
	}
	return images, rows.Err()
}
