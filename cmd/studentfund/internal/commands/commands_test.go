package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studentfund/studentfund/internal/profile"
	"github.com/studentfund/studentfund/internal/provider"
	"github.com/studentfund/studentfund/internal/provider/providertest"
	"github.com/studentfund/studentfund/internal/storage"
)

func strPtr(s string) *string { return &s }

// signedIn returns a fake whose persisted session belongs to a user of the
// given type.
func signedIn(userType profile.UserType) (*providertest.Fake, uuid.UUID) {
	id := uuid.New()
	fake := providertest.New()
	sess := providertest.NewSession(id, "ada@example.com")
	fake.GetSessionFn = func(context.Context) (*provider.Session, error) {
		return sess, nil
	}
	p := &profile.Profile{ID: id, FirstName: "Ada", LastName: "Lovelace", UserType: userType, Interests: []string{}}
	if userType == profile.Student {
		p.Username = strPtr("ada")
	}
	fake.PutProfile(p)
	return fake, id
}

func globalsFor(p provider.Provider) (*Globals, *bytes.Buffer) {
	var out bytes.Buffer
	return &Globals{Provider: p, Out: &out}, &out
}

func TestVisit(t *testing.T) {
	tests := []struct {
		name     string
		userType profile.UserType
		signedIn bool
		route    string
		want     string
	}{
		{name: "student on student page", userType: profile.Student, signedIn: true, route: "student", want: "ALLOW"},
		{name: "donor on student page", userType: profile.Donor, signedIn: true, route: "student", want: "REDIRECT /"},
		{name: "admin on admin page", userType: profile.Admin, signedIn: true, route: "admin", want: "ALLOW"},
		{name: "any signed-in user", userType: profile.Donor, signedIn: true, route: "any", want: "ALLOW"},
		{name: "signed out", route: "any", want: "REDIRECT /"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := providertest.New()
			if tt.signedIn {
				fake, _ = signedIn(tt.userType)
			}
			globals, out := globalsFor(fake)

			cmd := &VisitCmd{Route: tt.route}
			require.NoError(t, cmd.Run(context.Background(), globals))
			assert.Equal(t, tt.want, strings.TrimSpace(out.String()))
		})
	}
}

func TestLogin(t *testing.T) {
	id := uuid.New()
	fake := providertest.New()
	fake.PutProfile(&profile.Profile{ID: id, FirstName: "Grace", UserType: profile.Donor, Interests: []string{}})
	fake.SignInFn = func(_ context.Context, email, password string) (*provider.Identity, error) {
		if password != "secret1" {
			return nil, provider.ErrInvalidCredentials
		}
		sess := providertest.NewSession(id, email)
		fake.Emit(provider.EventSignedIn, sess)
		return &sess.Identity, nil
	}

	t.Run("success", func(t *testing.T) {
		globals, out := globalsFor(fake)
		cmd := &LoginCmd{Email: " grace@example.com ", Password: "secret1"}
		require.NoError(t, cmd.Run(context.Background(), globals))
		assert.Contains(t, out.String(), "Signed in as")
		assert.NotContains(t, out.String(), "no profile")
	})

	t.Run("wrong password", func(t *testing.T) {
		globals, _ := globalsFor(fake)
		cmd := &LoginCmd{Email: "grace@example.com", Password: "nope"}
		err := cmd.Run(context.Background(), globals)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "authentication")
	})
}

func TestSignup(t *testing.T) {
	t.Run("awaiting confirmation", func(t *testing.T) {
		fake := providertest.New()
		globals, out := globalsFor(fake)

		cmd := &SignupCmd{Email: "new@example.com", Password: "secret1", FirstName: "New", LastName: "Donor", Type: "donor"}
		require.NoError(t, cmd.Run(context.Background(), globals))
		assert.Contains(t, out.String(), "Account created for new@example.com (donor)")
		assert.Contains(t, out.String(), "confirm your email")
		assert.Equal(t, 0, fake.Calls("UsernameExists"))
	})

	t.Run("student username taken", func(t *testing.T) {
		fake, _ := signedIn(profile.Student)
		globals, _ := globalsFor(fake)

		cmd := &SignupCmd{Email: "twin@example.com", Password: "secret1", FirstName: "A", LastName: "B", Type: "student", Username: "ada"}
		err := cmd.Run(context.Background(), globals)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "username_taken")
		assert.Equal(t, 0, fake.Calls("SignUp"))
	})
}

func TestLogout_ServerFailureStillSignsOut(t *testing.T) {
	fake, _ := signedIn(profile.Donor)
	fake.SignOutFn = func(context.Context) error {
		return provider.ErrUnavailable
	}
	globals, out := globalsFor(fake)

	require.NoError(t, (&LogoutCmd{}).Run(context.Background(), globals))
	assert.Equal(t, "Signed out\n", out.String())
	assert.Equal(t, 1, fake.Calls("SignOut"))
}

// runWithin runs cmd and fails the test if it has not returned after d.
func runWithin(t *testing.T, d time.Duration, run func() error) error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- run() }()
	select {
	case err := <-done:
		return err
	case <-time.After(d):
		t.Fatalf("command still running after %s", d)
		return nil
	}
}

func TestLogout_DoesNotWaitForSessionRestore(t *testing.T) {
	fake, _ := signedIn(profile.Donor)
	fake.GetSessionFn = func(ctx context.Context) (*provider.Session, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	globals, out := globalsFor(fake)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err := runWithin(t, 2*time.Second, func() error {
		return (&LogoutCmd{}).Run(ctx, globals)
	})
	require.NoError(t, err)
	assert.Equal(t, "Signed out\n", out.String())
	assert.Equal(t, 1, fake.Calls("SignOut"))
}

func TestLogout_StalledSignOutIsBounded(t *testing.T) {
	fake, _ := signedIn(profile.Donor)
	fake.SignOutFn = func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}
	globals, out := globalsFor(fake)
	globals.Timeout = 50 * time.Millisecond

	err := runWithin(t, 2*time.Second, func() error {
		return (&LogoutCmd{}).Run(context.Background(), globals)
	})
	require.NoError(t, err)
	assert.Equal(t, "Signed out\n", out.String())
}

func TestGlobals_Timeout(t *testing.T) {
	assert.Equal(t, defaultTimeout, (&Globals{}).timeout())
	assert.Equal(t, time.Second, (&Globals{Timeout: time.Second}).timeout())
}

func TestWhoami(t *testing.T) {
	t.Run("text", func(t *testing.T) {
		fake, _ := signedIn(profile.Student)
		globals, out := globalsFor(fake)

		require.NoError(t, (&WhoamiCmd{}).Run(context.Background(), globals))
		assert.Contains(t, out.String(), "ada@example.com")
		assert.Contains(t, out.String(), "type:      student")
		assert.Contains(t, out.String(), "username:  ada")
	})

	t.Run("json", func(t *testing.T) {
		fake, id := signedIn(profile.Admin)
		globals, out := globalsFor(fake)

		require.NoError(t, (&WhoamiCmd{JSON: true}).Run(context.Background(), globals))

		var got whoamiOutput
		require.NoError(t, json.Unmarshal(out.Bytes(), &got))
		assert.Equal(t, id.String(), got.UserID)
		require.NotNil(t, got.Profile)
		assert.Equal(t, profile.Admin, got.Profile.UserType)
		assert.NotEmpty(t, got.Expires)
	})

	t.Run("signed out", func(t *testing.T) {
		globals, out := globalsFor(providertest.New())
		require.NoError(t, (&WhoamiCmd{}).Run(context.Background(), globals))
		assert.NotContains(t, out.String(), "user:")
	})
}

func TestProfile(t *testing.T) {
	t.Run("nothing to update", func(t *testing.T) {
		globals, _ := globalsFor(providertest.New())
		err := (&ProfileCmd{Bio: "  "}).Run(context.Background(), globals)
		assert.Error(t, err)
	})

	t.Run("updates given fields", func(t *testing.T) {
		fake, id := signedIn(profile.Student)
		globals, out := globalsFor(fake)

		cmd := &ProfileCmd{Bio: "Studying physics", Interests: []string{"space", "music"}}
		require.NoError(t, cmd.Run(context.Background(), globals))
		assert.Contains(t, out.String(), "bio:       Studying physics")

		p, err := fake.GetProfile(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, []string{"space", "music"}, p.Interests)
		assert.Equal(t, "Lovelace", p.LastName)
	})

	t.Run("signed out", func(t *testing.T) {
		globals, _ := globalsFor(providertest.New())
		err := (&ProfileCmd{Bio: "hello"}).Run(context.Background(), globals)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not_authenticated")
	})
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestImages(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\nimage-bytes")

	t.Run("uploads and sets avatar", func(t *testing.T) {
		fake, id := signedIn(profile.Student)
		globals, out := globalsFor(fake)

		cmd := &ImagesCmd{Profile: writeFile(t, "me.png", png), Banner: writeFile(t, "wide.png", png)}
		require.NoError(t, cmd.Run(context.Background(), globals))

		assert.Contains(t, out.String(), "profile: https://files.test/storage/public/"+storage.BucketProfilePictures+"/"+id.String())
		assert.Contains(t, out.String(), "banner:  https://files.test/storage/public/"+storage.BucketBannerImages+"/"+id.String())
		assert.Len(t, fake.Objects(storage.BucketProfilePictures), 1)
		assert.Len(t, fake.Objects(storage.BucketBannerImages), 1)

		p, err := fake.GetProfile(context.Background(), id)
		require.NoError(t, err)
		require.NotNil(t, p.AvatarURL)
		assert.Contains(t, *p.AvatarURL, storage.BucketProfilePictures)
	})

	t.Run("show current", func(t *testing.T) {
		fake, _ := signedIn(profile.Student)
		globals, out := globalsFor(fake)

		require.NoError(t, (&ImagesCmd{}).Run(context.Background(), globals))
		assert.Contains(t, out.String(), "profile: (none)")
		assert.Contains(t, out.String(), "banner:  (none)")
	})

	t.Run("donors are turned away", func(t *testing.T) {
		fake, _ := signedIn(profile.Donor)
		globals, _ := globalsFor(fake)

		err := (&ImagesCmd{Profile: writeFile(t, "me.png", png)}).Run(context.Background(), globals)
		require.Error(t, err)
		assert.Equal(t, 0, fake.Calls("UploadFile"))
	})

	t.Run("unreadable file", func(t *testing.T) {
		fake, _ := signedIn(profile.Student)
		globals, _ := globalsFor(fake)

		err := (&ImagesCmd{Profile: filepath.Join(t.TempDir(), "missing.png")}).Run(context.Background(), globals)
		require.Error(t, err)
		assert.Equal(t, 0, fake.Calls("GetSession"))
	})
}
