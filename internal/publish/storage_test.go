package publish

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"mediafactory/internal/adapters/storage/localfs"
	"mediafactory/internal/pkg/errors"
)

func TestStoragePublisher(t *testing.T) {
	root := t.TempDir()
	p := NewStoragePublisher(localfs.New(root), "/videos/", time.Hour, nil)
	p.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 42, time.UTC) }

	dir := t.TempDir()
	video := filepath.Join(dir, "out.mp4")
	thumb := filepath.Join(dir, "thumb.jpg")
	os.WriteFile(video, []byte("mp4"), 0o644)
	os.WriteFile(thumb, []byte("jpg"), 0o644)

	res, err := p.Upload(context.Background(), Video{Path: video, Title: "Hello, World!"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantKey := "videos/2026/03/01/hello-world-" + "1772366400000000042" + ".mp4"
	if res.VideoID != wantKey {
		t.Errorf("expected key %s, got %s", wantKey, res.VideoID)
	}
	if res.URL != "localfs://"+wantKey {
		t.Errorf("expected fallback url, got %s", res.URL)
	}
	if _, err := os.Stat(filepath.Join(root, wantKey)); err != nil {
		t.Errorf("expected archived video: %v", err)
	}

	if err := p.SetThumbnail(context.Background(), res.VideoID, Thumbnail{Path: thumb, ContentType: "image/jpeg"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	thumbKey := strings.TrimSuffix(wantKey, ".mp4") + "-thumbnail.jpg"
	if _, err := os.Stat(filepath.Join(root, thumbKey)); err != nil {
		t.Errorf("expected archived thumbnail: %v", err)
	}

	if err := p.Check(context.Background()); err != nil {
		t.Errorf("unexpected check error: %v", err)
	}
}

func TestStoragePublisherMissingFile(t *testing.T) {
	p := NewStoragePublisher(localfs.New(t.TempDir()), "videos", 0, nil)

	_, err := p.Upload(context.Background(), Video{Path: filepath.Join(t.TempDir(), "missing.mp4")})
	if !errors.IsCode(err, errors.CodePublish) {
		t.Fatalf("expected publish error, got %v", err)
	}
	if step := errors.GetFields(err)[errors.FieldStep]; step != "upload" {
		t.Errorf("expected step upload, got %v", step)
	}
}

func TestSlug(t *testing.T) {
	tests := map[string]string{
		"Hello, World!":         "hello-world",
		"  ":                    "video",
		"Ünïcode only ☃":        "n-code-only",
		"trailing dash -":       "trailing-dash",
		strings.Repeat("a", 80): strings.Repeat("a", 48),
	}
	for in, want := range tests {
		if got := slug(in); got != want {
			t.Errorf("slug(%q): expected %q, got %q", in, want, got)
		}
	}
}
