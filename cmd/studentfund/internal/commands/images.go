package commands

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"github.com/studentfund/studentfund/internal/guard"
	"github.com/studentfund/studentfund/internal/media"
	"github.com/studentfund/studentfund/internal/profile"
	"github.com/studentfund/studentfund/internal/session"
)

// ImagesCmd shows or replaces a student's profile and banner images.
type ImagesCmd struct {
	Profile string `help:"New profile picture" type:"existingfile"`
	Banner  string `help:"New banner image" type:"existingfile"`
}

func readImage(path string) (*media.Image, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	contentType := mime.TypeByExtension(filepath.Ext(path))
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		contentType = mt
	}
	return &media.Image{Name: filepath.Base(path), ContentType: contentType, Data: data}, nil
}

func (c *ImagesCmd) Run(ctx context.Context, globals *Globals) error {
	profileImage, err := readImage(c.Profile)
	if err != nil {
		return err
	}
	bannerImage, err := readImage(c.Banner)
	if err != nil {
		return err
	}

	store, p, err := globals.open(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	d, err := guard.New(store, guard.WithLogger(globals.logger())).Await(ctx, profile.Student)
	if err != nil {
		return err
	}
	if d != guard.Allow {
		return fmt.Errorf("%s: images are only available to signed-in students", session.KindNotAuthenticated)
	}
	userID := store.State().Identity.ID

	updater := media.NewUpdater(p, nil, media.WithLogger(globals.logger()))
	w := globals.out()

	if profileImage == nil && bannerImage == nil {
		urls, err := updater.CurrentImageURLs(ctx, userID)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "profile: %s\nbanner:  %s\n", orNone(urls.ProfileImageURL), orNone(urls.BannerImageURL))
		return nil
	}

	urls, err := updater.UpdateStudentImages(ctx, userID, profileImage, bannerImage)
	if err != nil {
		return err
	}
	if urls.ProfileImageURL != "" {
		avatar := urls.ProfileImageURL
		if _, err := store.UpdateProfile(ctx, profile.Update{AvatarURL: &avatar}); err != nil {
			return describe(err)
		}
		fmt.Fprintf(w, "profile: %s\n", urls.ProfileImageURL)
	}
	if urls.BannerImageURL != "" {
		fmt.Fprintf(w, "banner:  %s\n", urls.BannerImageURL)
	}
	return nil
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
