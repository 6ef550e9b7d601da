package publish

import (
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
)

// Limits YouTube puts on custom thumbnails.
const (
	ThumbnailMaxWidth  = 1280
	ThumbnailMaxHeight = 720
	ThumbnailMaxBytes  = 2 << 20
)

// PrepareThumbnail returns thumb unchanged when it already fits the
// destination limits. Otherwise it writes a fitted JPEG next to it and
// returns that instead.
func PrepareThumbnail(thumb Thumbnail) (Thumbnail, error) {
	st, err := os.Stat(thumb.Path)
	if err != nil {
		return Thumbnail{}, err
	}

	f, err := os.Open(thumb.Path)
	if err != nil {
		return Thumbnail{}, err
	}
	cfg, _, err := image.DecodeConfig(f)
	f.Close()
	if err != nil {
		return Thumbnail{}, err
	}

	if st.Size() <= ThumbnailMaxBytes && cfg.Width <= ThumbnailMaxWidth && cfg.Height <= ThumbnailMaxHeight {
		return thumb, nil
	}

	img, err := imaging.Open(thumb.Path, imaging.AutoOrientation(true))
	if err != nil {
		return Thumbnail{}, err
	}
	fitted := imaging.Fit(img, ThumbnailMaxWidth, ThumbnailMaxHeight, imaging.Lanczos)

	dst := strings.TrimSuffix(thumb.Path, filepath.Ext(thumb.Path)) + "-fitted.jpg"
	if err := imaging.Save(fitted, dst, imaging.JPEGQuality(85)); err != nil {
		return Thumbnail{}, err
	}
	return Thumbnail{Path: dst, ContentType: "image/jpeg"}, nil
}
