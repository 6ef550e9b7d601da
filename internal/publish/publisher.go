package publish

import (
	"context"
	"strings"
)

// Warnings attached to a job that completed with a secondary-step failure.
const (
	WarningInvalidCategory = "Invalid categoryId was ignored. Video uploaded without category."
	WarningThumbnailFailed = "Video uploaded, but thumbnail upload failed."
)

// Video is a rendered file ready to publish.
type Video struct {
	Path        string
	Title       string
	Description string
	Options     Options
}

// Thumbnail is a custom thumbnail image on disk.
type Thumbnail struct {
	Path        string
	ContentType string
}

// Result identifies the published artifact. Warning is set when the upload
// succeeded only after dropping part of the metadata.
type Result struct {
	VideoID string
	URL     string
	Warning string
}

// Publisher uploads videos to their destination.
type Publisher interface {
	Upload(ctx context.Context, v Video) (Result, error)
	SetThumbnail(ctx context.Context, videoID string, thumb Thumbnail) error
	// Check verifies credentials and reachability without uploading.
	Check(ctx context.Context) error
}

// JoinWarnings joins the non-empty warnings with a single space.
func JoinWarnings(warnings ...string) string {
	parts := make([]string, 0, len(warnings))
	for _, w := range warnings {
		if w = strings.TrimSpace(w); w != "" {
			parts = append(parts, w)
		}
	}
	return strings.Join(parts, " ")
}
