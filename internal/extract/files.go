package extract

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const tempSuffix = ".part"

// safeBase reduces an archive entry name to a bare file name. Names that
// collapse to nothing usable are rejected.
func safeBase(name string) (string, bool) {
	name = strings.ReplaceAll(name, "\\", "/")
	base := filepath.Base(filepath.Clean("/" + name))
	if base == "/" || base == "." || base == ".." || base == "" {
		return "", false
	}
	return base, true
}

func fileExists(path string) (bool, error) {
	info, err := os.Stat(path)
	switch {
	case err == nil:
		return info.Mode().IsRegular(), nil
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}

// writeAtomic copies r to path through a sibling temp file. It reports false
// without reading r when path already exists.
func writeAtomic(path string, r io.Reader) (bool, error) {
	exists, err := fileExists(path)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, fmt.Errorf("create directory: %w", err)
	}

	tmp := path + tempSuffix
	file, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return false, err
	}
	if _, err := io.Copy(file, r); err != nil {
		file.Close()
		_ = os.Remove(tmp)
		return false, err
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmp)
		return false, err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return false, err
	}
	return true, nil
}

func isZipName(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".zip")
}

func recordName(zipName string) string {
	return strings.TrimSuffix(filepath.Base(zipName), filepath.Ext(zipName))
}
