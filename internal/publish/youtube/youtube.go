// Package youtube publishes rendered videos through the YouTube Data API.
package youtube

import (
	"context"
	stderrors "errors"
	"os"
	"time"

	"mediafactory/internal/pkg/errors"
	"mediafactory/internal/pkg/logger"
	"mediafactory/internal/publish"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"
)

// WatchURL prefixes a video id to form its public URL.
const WatchURL = "https://www.youtube.com/watch?v="

const reasonInvalidCategory = "invalidCategoryId"

// Scopes requested for the refresh token.
var Scopes = []string{yt.YoutubeUploadScope}

type Credentials struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
}

// OAuthConfig is the installed-app client for the given redirect URL.
func OAuthConfig(clientID, clientSecret, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     google.Endpoint,
		RedirectURL:  redirectURL,
		Scopes:       Scopes,
	}
}

type Publisher struct {
	svc    *yt.Service
	tokens oauth2.TokenSource
	log    *logger.Logger
}

// New builds a publisher authorized by a long-lived refresh token.
func New(ctx context.Context, creds Credentials, log *logger.Logger) (*Publisher, error) {
	if creds.ClientID == "" || creds.ClientSecret == "" || creds.RefreshToken == "" {
		return nil, errors.New(errors.CodeFailedPrecond, "youtube credentials are not configured")
	}

	conf := OAuthConfig(creds.ClientID, creds.ClientSecret, "")
	tokens := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: creds.RefreshToken})

	svc, err := yt.NewService(ctx, option.WithHTTPClient(oauth2.NewClient(ctx, tokens)))
	if err != nil {
		return nil, errors.Wrap(err, "youtube.New", "failed to create youtube service")
	}
	p := NewWithService(svc, log)
	p.tokens = tokens
	return p, nil
}

// NewWithService wraps an existing API client.
func NewWithService(svc *yt.Service, log *logger.Logger) *Publisher {
	if log == nil {
		log = logger.Discard()
	}
	return &Publisher{svc: svc, log: log.WithComponent("publisher")}
}

// Upload inserts the video. A category the API rejects is dropped and the
// upload retried once, with a warning on the result.
func (p *Publisher) Upload(ctx context.Context, v publish.Video) (publish.Result, error) {
	id, err := p.insert(ctx, v.Path, v.Title, v.Description, v.Options)
	if err == nil {
		p.log.FromContext(ctx).Info("video uploaded", "video_id", id)
		return publish.Result{VideoID: id, URL: WatchURL + id}, nil
	}
	if v.Options.CategoryID == "" || !isInvalidCategory(err) {
		return publish.Result{}, errors.Publish("upload", err)
	}

	p.log.FromContext(ctx).Warn("category rejected, retrying without it", "category_id", v.Options.CategoryID)
	id, err = p.insert(ctx, v.Path, v.Title, v.Description, v.Options.WithoutCategory())
	if err != nil {
		return publish.Result{}, errors.Publish("upload", err)
	}
	p.log.FromContext(ctx).Info("video uploaded without category", "video_id", id)
	return publish.Result{VideoID: id, URL: WatchURL + id, Warning: publish.WarningInvalidCategory}, nil
}

func (p *Publisher) insert(ctx context.Context, path, title, description string, opts publish.Options) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	video := &yt.Video{
		Snippet: &yt.VideoSnippet{
			Title:       title,
			Description: description,
			Tags:        opts.Tags,
			CategoryId:  opts.CategoryID,
		},
		Status: &yt.VideoStatus{PrivacyStatus: opts.Privacy.APIValue()},
	}
	if opts.PublishAt != nil {
		video.Status.PublishAt = opts.PublishAt.UTC().Format(time.RFC3339)
	}

	res, err := p.svc.Videos.Insert([]string{"snippet", "status"}, video).
		Media(f, googleapi.ContentType("video/mp4")).
		Context(ctx).
		Do()
	if err != nil {
		return "", err
	}
	return res.Id, nil
}

func (p *Publisher) SetThumbnail(ctx context.Context, videoID string, thumb publish.Thumbnail) error {
	f, err := os.Open(thumb.Path)
	if err != nil {
		return errors.Publish("thumbnail", err)
	}
	defer f.Close()

	if _, err := p.svc.Thumbnails.Set(videoID).Media(f, googleapi.ContentType(thumb.ContentType)).Context(ctx).Do(); err != nil {
		return errors.Publish("thumbnail", err)
	}
	return nil
}

// Check refreshes the access token, which proves the credentials without
// touching the channel.
func (p *Publisher) Check(ctx context.Context) error {
	if p.tokens == nil {
		return nil
	}
	if _, err := p.tokens.Token(); err != nil {
		return errors.WrapWithCode(err, errors.CodeUnavailable, "youtube.Check", "youtube credentials rejected")
	}
	return nil
}

func isInvalidCategory(err error) bool {
	var apiErr *googleapi.Error
	if !stderrors.As(err, &apiErr) {
		return false
	}
	for _, item := range apiErr.Errors {
		if item.Reason == reasonInvalidCategory {
			return true
		}
	}
	return false
}
