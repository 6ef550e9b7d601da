package ports

import (
	"io"
	"mime"
	"path/filepath"
	"strings"
)

// Part is an uploaded file that has not been staged yet. Open may be called
// more than once; each call returns an independent reader.
type Part struct {
	Name        string
	Filename    string
	ContentType string
	Size        int64
	Open        func() (io.ReadCloser, error)
}

// Empty reports whether the part carries no content.
func (p *Part) Empty() bool {
	return p == nil || p.Open == nil || p.Size <= 0
}

// MediaType returns the lower-cased content type without parameters.
func (p *Part) MediaType() string {
	if p == nil {
		return ""
	}
	ct := strings.ToLower(strings.TrimSpace(p.ContentType))
	if mt, _, err := mime.ParseMediaType(ct); err == nil {
		return mt
	}
	return ct
}

// Suffix picks a file extension for the part: the original filename's
// extension when it has one, otherwise one derived from the content type,
// otherwise fallback.
func (p *Part) Suffix(fallback string) string {
	if p == nil {
		return fallback
	}
	if ext := strings.ToLower(filepath.Ext(p.Filename)); ext != "" && len(ext) <= 6 && !strings.ContainsAny(ext, `/\ `) {
		return ext
	}
	if ext, ok := knownExtensions[p.MediaType()]; ok {
		return ext
	}
	return fallback
}

var knownExtensions = map[string]string{
	"image/jpeg":       ".jpg",
	"image/jpg":        ".jpg",
	"image/png":        ".png",
	"image/webp":       ".webp",
	"audio/mpeg":       ".mp3",
	"audio/mp3":        ".mp3",
	"audio/wav":        ".wav",
	"audio/x-wav":      ".wav",
	"audio/wave":       ".wav",
	"audio/ogg":        ".ogg",
	"audio/aac":        ".aac",
	"video/mp4":        ".mp4",
	"video/quicktime":  ".mov",
	"video/webm":       ".webm",
	"video/x-matroska": ".mkv",
}
