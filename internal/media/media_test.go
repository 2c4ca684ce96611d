package media_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studentfund/studentfund/internal/media"
	"github.com/studentfund/studentfund/internal/provider"
	"github.com/studentfund/studentfund/internal/provider/providertest"
	"github.com/studentfund/studentfund/internal/storage"
)

func fixedClock(ms int64) func() time.Time {
	return func() time.Time { return time.UnixMilli(ms) }
}

func png(name string, size int) *media.Image {
	return &media.Image{Name: name, ContentType: "image/png", Data: bytes.Repeat([]byte{1}, size)}
}

func TestUpdateStudentImages_UploadsBoth(t *testing.T) {
	fake := providertest.New()
	userID := uuid.New()
	u := media.NewUpdater(fake, nil, media.WithClock(fixedClock(1700000000000)))

	urls, err := u.UpdateStudentImages(context.Background(), userID, png("me.PNG", 10), &media.Image{
		Name: "banner", ContentType: "image/webp", Data: []byte("webp"),
	})

	require.NoError(t, err)
	assert.Equal(t, "https://files.test/storage/public/profile-pictures/"+userID.String()+"/profile-1700000000000.png", urls.ProfileImageURL)
	assert.Equal(t, "https://files.test/storage/public/banner-images/"+userID.String()+"/banner-1700000000000.webp", urls.BannerImageURL)
}

func TestUpdateStudentImages_ReplacesPrevious(t *testing.T) {
	fake := providertest.New()
	userID := uuid.New()
	other := uuid.New()
	ctx := context.Background()

	require.NoError(t, fake.UploadFile(ctx, storage.BucketProfilePictures, other.String()+"/profile-1.png", []byte{1}, "image/png"))

	first := media.NewUpdater(fake, nil, media.WithClock(fixedClock(1000)))
	_, err := first.UpdateStudentImages(ctx, userID, png("a.png", 1), nil)
	require.NoError(t, err)

	second := media.NewUpdater(fake, nil, media.WithClock(fixedClock(2000)))
	_, err = second.UpdateStudentImages(ctx, userID, png("b.png", 1), nil)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{
		other.String() + "/profile-1.png",
		userID.String() + "/profile-2000.png",
	}, fake.Objects(storage.BucketProfilePictures))
}

func TestUpdateStudentImages_Validation(t *testing.T) {
	tests := []struct {
		name    string
		profile *media.Image
		banner  *media.Image
		wantErr error
	}{
		{"nothing to do", nil, nil, media.ErrNoImages},
		{"wrong type", &media.Image{Name: "a.gif", ContentType: "image/gif", Data: []byte{1}}, nil, storage.ErrContentType},
		{"profile too large", png("a.png", 5*1024*1024+1), nil, storage.ErrTooLarge},
		{"banner too large", nil, png("b.png", 10*1024*1024+1), storage.ErrTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := providertest.New()
			u := media.NewUpdater(fake, nil)

			_, err := u.UpdateStudentImages(context.Background(), uuid.New(), tt.profile, tt.banner)

			assert.ErrorIs(t, err, tt.wantErr)
			assert.Zero(t, fake.Calls("UploadFile"))
			assert.Zero(t, fake.Calls("DeleteFiles"))
		})
	}
}

func TestUpdateStudentImages_BannerAtLimitAccepted(t *testing.T) {
	fake := providertest.New()
	u := media.NewUpdater(fake, nil)

	urls, err := u.UpdateStudentImages(context.Background(), uuid.New(), nil, png("b.png", 10*1024*1024))

	require.NoError(t, err)
	assert.Empty(t, urls.ProfileImageURL)
	assert.NotEmpty(t, urls.BannerImageURL)
}

func TestUpdateStudentImages_CleanupFailureIsNotFatal(t *testing.T) {
	fake := providertest.New()
	fake.ListFilesFn = func(context.Context, string, string) ([]storage.Object, error) {
		return nil, provider.ErrUnavailable
	}
	u := media.NewUpdater(fake, nil)

	urls, err := u.UpdateStudentImages(context.Background(), uuid.New(), png("a.png", 1), nil)

	require.NoError(t, err)
	assert.NotEmpty(t, urls.ProfileImageURL)
	assert.Equal(t, 1, fake.Calls("UploadFile"))
}

func TestUpdateStudentImages_ProfileFailureSkipsBanner(t *testing.T) {
	fake := providertest.New()
	fake.UploadFileFn = func(_ context.Context, bucket, _ string, _ []byte, _ string) error {
		if bucket == storage.BucketProfilePictures {
			return provider.ErrObjectExists
		}
		return nil
	}
	u := media.NewUpdater(fake, nil)

	urls, err := u.UpdateStudentImages(context.Background(), uuid.New(), png("a.png", 1), png("b.png", 1))

	require.Error(t, err)
	assert.ErrorIs(t, err, provider.ErrObjectExists)
	assert.Contains(t, err.Error(), "profile image update failed")
	assert.Equal(t, media.URLs{}, urls)
	assert.Equal(t, 1, fake.Calls("UploadFile"))
}

func TestCurrentImageURLs(t *testing.T) {
	fake := providertest.New()
	userID := uuid.New()
	ctx := context.Background()

	empty, err := media.NewUpdater(fake, nil).CurrentImageURLs(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, media.URLs{}, empty)

	_, err = media.NewUpdater(fake, nil, media.WithClock(fixedClock(42))).
		UpdateStudentImages(ctx, userID, png("a.png", 1), nil)
	require.NoError(t, err)

	urls, err := media.NewUpdater(fake, nil).CurrentImageURLs(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, fake.GetPublicURL(storage.BucketProfilePictures, userID.String()+"/profile-42.png"), urls.ProfileImageURL)
	assert.Empty(t, urls.BannerImageURL)
}

func TestCurrentImageURLs_ListError(t *testing.T) {
	fake := providertest.New()
	fake.ListFilesFn = func(context.Context, string, string) ([]storage.Object, error) {
		return nil, errors.New("boom")
	}

	_, err := media.NewUpdater(fake, nil).CurrentImageURLs(context.Background(), uuid.New())

	assert.Error(t, err)
}
