// Package media manages the profile picture and banner image of a student.
// Each student keeps at most one object per bucket: uploading a replacement
// removes whatever the student's folder held before.
package media

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/studentfund/studentfund/internal/provider"
	"github.com/studentfund/studentfund/internal/storage"
)

// ErrNoImages is returned when an update carries neither image.
var ErrNoImages = errors.New("no image given")

var extensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

// Image is a file selected for upload.
type Image struct {
	Name        string
	ContentType string
	Data        []byte
}

// URLs holds the public URLs of a student's images. Empty means none.
type URLs struct {
	ProfileImageURL string `json:"profileImageUrl,omitempty"`
	BannerImageURL  string `json:"bannerImageUrl,omitempty"`
}

// Option configures an Updater.
type Option func(*Updater)

// WithClock replaces time.Now for object names.
func WithClock(now func() time.Time) Option {
	return func(u *Updater) {
		u.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(u *Updater) {
		u.logger = l
	}
}

// Updater replaces student images through a provider's storage.
type Updater struct {
	store   provider.Storage
	buckets *storage.Registry
	now     func() time.Time
	logger  *slog.Logger
}

// NewUpdater returns an Updater enforcing the policies in buckets. A nil
// registry means storage.DefaultRegistry.
func NewUpdater(store provider.Storage, buckets *storage.Registry, opts ...Option) *Updater {
	if buckets == nil {
		buckets = storage.DefaultRegistry()
	}
	u := &Updater{
		store:   store,
		buckets: buckets,
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// UpdateStudentImages replaces the given images for userID. The profile image
// is handled first; a failure there leaves the banner untouched.
func (u *Updater) UpdateStudentImages(ctx context.Context, userID uuid.UUID, profileImage, bannerImage *Image) (URLs, error) {
	var out URLs
	if profileImage == nil && bannerImage == nil {
		return out, ErrNoImages
	}

	if profileImage != nil {
		url, err := u.replace(ctx, userID, storage.BucketProfilePictures, "profile", profileImage)
		if err != nil {
			return URLs{}, fmt.Errorf("profile image update failed: %w", err)
		}
		out.ProfileImageURL = url
	}

	if bannerImage != nil {
		url, err := u.replace(ctx, userID, storage.BucketBannerImages, "banner", bannerImage)
		if err != nil {
			return URLs{}, fmt.Errorf("banner image update failed: %w", err)
		}
		out.BannerImageURL = url
	}

	return out, nil
}

func (u *Updater) replace(ctx context.Context, userID uuid.UUID, bucket, prefix string, img *Image) (string, error) {
	policy, ok := u.buckets.Get(bucket)
	if !ok {
		return "", fmt.Errorf("%w: %s", storage.ErrUnknownBucket, bucket)
	}
	if err := policy.Check(img.ContentType, int64(len(img.Data))); err != nil {
		return "", err
	}

	if err := u.cleanup(ctx, userID, bucket); err != nil {
		u.logger.Warn("image cleanup failed, uploading anyway", "bucket", bucket, "user_id", userID, "error", err)
	}

	name := fmt.Sprintf("%s/%s-%d%s", userID, prefix, u.now().UnixMilli(), extension(img))
	if err := u.store.UploadFile(ctx, bucket, name, img.Data, img.ContentType); err != nil {
		return "", fmt.Errorf("upload failed: %w", err)
	}

	return u.store.GetPublicURL(bucket, name), nil
}

// cleanup deletes every object in the user's folder of bucket.
func (u *Updater) cleanup(ctx context.Context, userID uuid.UUID, bucket string) error {
	existing, err := u.store.ListFiles(ctx, bucket, userID.String())
	if err != nil {
		return fmt.Errorf("listing existing files: %w", err)
	}
	if len(existing) == 0 {
		return nil
	}

	paths := make([]string, 0, len(existing))
	for _, obj := range existing {
		paths = append(paths, obj.Path)
	}
	if err := u.store.DeleteFiles(ctx, bucket, paths); err != nil {
		return fmt.Errorf("deleting existing files: %w", err)
	}

	u.logger.Debug("removed previous images", "bucket", bucket, "user_id", userID, "count", len(paths))
	return nil
}

// CurrentImageURLs returns the newest image per bucket for userID.
func (u *Updater) CurrentImageURLs(ctx context.Context, userID uuid.UUID) (URLs, error) {
	var out URLs
	for _, b := range []struct {
		bucket string
		dst    *string
	}{
		{storage.BucketProfilePictures, &out.ProfileImageURL},
		{storage.BucketBannerImages, &out.BannerImageURL},
	} {
		objects, err := u.store.ListFiles(ctx, b.bucket, userID.String())
		if err != nil {
			return out, fmt.Errorf("listing %s: %w", b.bucket, err)
		}
		if len(objects) > 0 {
			*b.dst = u.store.GetPublicURL(b.bucket, objects[0].Path)
		}
	}
	return out, nil
}

func extension(img *Image) string {
	if ext := strings.ToLower(path.Ext(img.Name)); ext != "" {
		return ext
	}
	return extensions[img.ContentType]
}
