package publish

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"mediafactory/internal/pkg/errors"
	"mediafactory/internal/pkg/logger"
	"mediafactory/internal/ports"
)

// StoragePublisher archives videos in an object store instead of a video
// platform. The video id is the object key returned by the provider.
type StoragePublisher struct {
	provider  ports.StorageProvider
	prefix    string
	urlExpiry time.Duration
	log       *logger.Logger
	now       func() time.Time
}

func NewStoragePublisher(provider ports.StorageProvider, prefix string, urlExpiry time.Duration, log *logger.Logger) *StoragePublisher {
	if log == nil {
		log = logger.Discard()
	}
	return &StoragePublisher{
		provider:  provider,
		prefix:    strings.Trim(prefix, "/"),
		urlExpiry: urlExpiry,
		log:       log.WithComponent("publisher"),
		now:       time.Now,
	}
}

func (p *StoragePublisher) Upload(ctx context.Context, v Video) (Result, error) {
	f, err := os.Open(v.Path)
	if err != nil {
		return Result{}, errors.Publish("upload", err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return Result{}, errors.Publish("upload", err)
	}

	now := p.now().UTC()
	key := path.Join(p.prefix, now.Format("2006/01/02"), fmt.Sprintf("%s-%d.mp4", slug(v.Title), now.UnixNano()))
	out, err := p.provider.PutObject(ctx, ports.PutObjectInput{
		ObjectKey:   key,
		ContentType: "video/mp4",
		Reader:      f,
		Size:        st.Size(),
	})
	if err != nil {
		return Result{}, errors.Publish("upload", err)
	}

	res := Result{VideoID: out.ObjectKey, URL: p.provider.Provider() + "://" + out.ObjectKey}
	if p.urlExpiry > 0 {
		if signed, err := p.provider.GetSignedURL(ctx, out.ObjectKey, p.urlExpiry); err == nil && signed.URL != "" {
			res.URL = signed.URL
		}
	}

	p.log.FromContext(ctx).Info("video archived", "provider", p.provider.Provider(), "object_key", out.ObjectKey, "size", out.Size)
	return res, nil
}

func (p *StoragePublisher) SetThumbnail(ctx context.Context, videoID string, thumb Thumbnail) error {
	f, err := os.Open(thumb.Path)
	if err != nil {
		return errors.Publish("thumbnail", err)
	}
	defer f.Close()

	ext := ".jpg"
	if thumb.ContentType == "image/png" {
		ext = ".png"
	}
	key := strings.TrimSuffix(videoID, path.Ext(videoID)) + "-thumbnail" + ext
	if _, err := p.provider.PutObject(ctx, ports.PutObjectInput{
		ObjectKey:   key,
		ContentType: thumb.ContentType,
		Reader:      f,
	}); err != nil {
		return errors.Publish("thumbnail", err)
	}
	return nil
}

func (p *StoragePublisher) Check(ctx context.Context) error {
	if p.provider == nil {
		return errors.Unavailable("storage provider")
	}
	return p.provider.Check(ctx)
}

// slug keeps the title readable in object keys.
func slug(title string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
		if b.Len() >= 48 {
			break
		}
	}
	s := strings.Trim(b.String(), "-")
	if s == "" {
		return "video"
	}
	return s
}
