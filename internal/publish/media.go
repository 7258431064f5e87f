package publish

import (
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/tiff"

	"grantfeed/internal/services"
)

// Media is a file ready for upload.
type Media struct {
	Path        string
	ContentType string
}

// prepareMedia returns an uploadable rendition of the image at path. TIFF
// drawings are converted to PNG in a temp file that cleanup removes.
func prepareMedia(path, tempDir string) (Media, func(), error) {
	noop := func() {}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return Media{Path: path, ContentType: "image/png"}, noop, nil
	case ".jpg", ".jpeg":
		return Media{Path: path, ContentType: "image/jpeg"}, noop, nil
	case ".tif", ".tiff":
		converted, err := convertTIFF(path, tempDir)
		if err != nil {
			return Media{}, noop, err
		}
		return Media{Path: converted, ContentType: "image/png"}, func() { _ = os.Remove(converted) }, nil
	default:
		return Media{}, noop, services.Wrap(services.ErrDataIntegrity, "publish", "prepare media",
			"unsupported image format "+filepath.Ext(path), nil)
	}
}

func convertTIFF(path, tempDir string) (string, error) {
	in, err := os.Open(path)
	if err != nil {
		return "", services.Wrap(services.ErrDataIntegrity, "publish", "open image", path, err)
	}
	defer in.Close()

	img, err := tiff.Decode(in)
	if err != nil {
		return "", services.Wrap(services.ErrDataIntegrity, "publish", "decode tiff", path, err)
	}

	out, err := os.CreateTemp(tempDir, "grantfeed-*.png")
	if err != nil {
		return "", fmt.Errorf("create png: %w", err)
	}
	if err := png.Encode(out, img); err != nil {
		out.Close()
		_ = os.Remove(out.Name())
		return "", fmt.Errorf("encode png: %w", err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(out.Name())
		return "", fmt.Errorf("close png: %w", err)
	}
	return out.Name(), nil
}
