// Package publish validates publishing metadata and hands finished videos to
// a destination: YouTube, or an object store for self-hosted setups.
package publish

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"mediafactory/internal/pkg/errors"
	"mediafactory/internal/ports"
)

const (
	MaxTitleLength       = 100
	MaxDescriptionLength = 5000
	MaxTags              = 20
	MaxTagLength         = 50
	MinPublishDelay      = 5 * time.Minute
)

var categoryIDPattern = regexp.MustCompile(`^\d{1,3}$`)

type Privacy string

const (
	PrivacyPrivate  Privacy = "PRIVATE"
	PrivacyUnlisted Privacy = "UNLISTED"
	PrivacyPublic   Privacy = "PUBLIC"
)

// ParsePrivacy accepts any case; blank means PRIVATE.
func ParsePrivacy(raw string) (Privacy, error) {
	switch p := Privacy(strings.ToUpper(strings.TrimSpace(raw))); p {
	case "":
		return PrivacyPrivate, nil
	case PrivacyPrivate, PrivacyUnlisted, PrivacyPublic:
		return p, nil
	}
	return "", errors.ValidationField("privacyStatus", "privacyStatus must be one of PRIVATE, UNLISTED, PUBLIC.")
}

// APIValue is the lower-case form the YouTube API expects.
func (p Privacy) APIValue() string { return strings.ToLower(string(p)) }

// Options is the validated publishing metadata of a job.
type Options struct {
	Privacy    Privacy    `json:"privacyStatus"`
	Tags       []string   `json:"tags,omitempty"`
	CategoryID string     `json:"categoryId,omitempty"`
	PublishAt  *time.Time `json:"publishAt,omitempty"`
}

// Scheduled reports whether the video has a publish time.
func (o Options) Scheduled() bool { return o.PublishAt != nil }

// WithoutCategory returns a copy with the category cleared.
func (o Options) WithoutCategory() Options {
	o.CategoryID = ""
	return o
}

// OptionsInput is the raw form of Options as submitted.
type OptionsInput struct {
	Privacy    string
	Tags       []string
	CategoryID string
	PublishAt  string
}

// NewOptions validates in. now is the reference time for the publish delay.
func NewOptions(in OptionsInput, now time.Time) (Options, error) {
	privacy, err := ParsePrivacy(in.Privacy)
	if err != nil {
		return Options{}, err
	}
	tags, err := normalizeTags(in.Tags)
	if err != nil {
		return Options{}, err
	}
	category, err := normalizeCategory(in.CategoryID)
	if err != nil {
		return Options{}, err
	}
	publishAt, err := parsePublishAt(in.PublishAt, now)
	if err != nil {
		return Options{}, err
	}

	if publishAt != nil && privacy != PrivacyPrivate {
		return Options{}, errors.ValidationField("publishAt", "publishAt can only be used with privacyStatus=PRIVATE.")
	}

	return Options{Privacy: privacy, Tags: tags, CategoryID: category, PublishAt: publishAt}, nil
}

// normalizeTags splits comma lists, trims, and drops case-insensitive
// duplicates keeping the first spelling.
func normalizeTags(raw []string) ([]string, error) {
	var tags []string
	seen := make(map[string]struct{})
	for _, value := range raw {
		for _, candidate := range strings.Split(value, ",") {
			tag := strings.TrimSpace(candidate)
			if tag == "" {
				continue
			}
			if utf8.RuneCountInString(tag) > MaxTagLength {
				return nil, errors.ValidationField("tags", fmt.Sprintf("Each tag must be at most %d characters.", MaxTagLength))
			}
			key := strings.ToLower(tag)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			tags = append(tags, tag)
		}
	}
	if len(tags) > MaxTags {
		return nil, errors.ValidationField("tags", fmt.Sprintf("A maximum of %d unique tags is allowed.", MaxTags))
	}
	return tags, nil
}

func normalizeCategory(raw string) (string, error) {
	id := strings.TrimSpace(raw)
	if id == "" {
		return "", nil
	}
	if !categoryIDPattern.MatchString(id) {
		return "", errors.ValidationField("categoryId", `categoryId must match ^\d{1,3}$.`)
	}
	return id, nil
}

func parsePublishAt(raw string, now time.Time) (*time.Time, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}
	if !strings.HasSuffix(value, "Z") {
		return nil, errors.ValidationField("publishAt", "publishAt must be an ISO-8601 UTC instant ending with Z.")
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return nil, errors.ValidationField("publishAt", "publishAt must be a valid ISO-8601 UTC instant.")
	}
	if t.Before(now.Add(MinPublishDelay)) {
		return nil, errors.ValidationField("publishAt", "publishAt must be at least 5 minutes in the future.")
	}
	t = t.UTC()
	return &t, nil
}

// ValidateMetadata checks the title and description.
func ValidateMetadata(title, description string) error {
	if strings.TrimSpace(title) == "" {
		return errors.ValidationField("title", "Title is required.")
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return errors.ValidationField("title", fmt.Sprintf("Title must be at most %d characters.", MaxTitleLength))
	}
	if strings.TrimSpace(description) == "" {
		return errors.ValidationField("description", "Description is required.")
	}
	if utf8.RuneCountInString(description) > MaxDescriptionLength {
		return errors.ValidationField("description", fmt.Sprintf("Description must be at most %d characters.", MaxDescriptionLength))
	}
	return nil
}

// ValidateThumbnail accepts a nil part (no thumbnail) or a non-empty JPEG/PNG.
func ValidateThumbnail(p *ports.Part) error {
	if p == nil {
		return nil
	}
	if p.Empty() {
		return errors.ValidationField("thumbnail", "thumbnail must not be empty.")
	}
	switch p.MediaType() {
	case "image/jpeg", "image/png":
		return nil
	}
	return errors.ValidationField("thumbnail", "thumbnail must have content type image/jpeg or image/png.")
}
