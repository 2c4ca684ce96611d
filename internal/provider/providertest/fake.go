// Package providertest provides a scriptable in-memory provider.Provider for tests.
package providertest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/studentfund/studentfund/internal/profile"
	"github.com/studentfund/studentfund/internal/provider"
	"github.com/studentfund/studentfund/internal/storage"
)

// Fake is a provider.Provider whose behavior is set through function fields.
// A nil field falls back to an in-memory default.
type Fake struct {
	GetSessionFn     func(ctx context.Context) (*provider.Session, error)
	GetProfileFn     func(ctx context.Context, id uuid.UUID) (*profile.Profile, error)
	SignInFn         func(ctx context.Context, email, password string) (*provider.Identity, error)
	SignUpFn         func(ctx context.Context, email, password string) (*provider.Identity, error)
	SignOutFn        func(ctx context.Context) error
	UsernameExistsFn func(ctx context.Context, username string) (bool, error)
	InsertProfileFn  func(ctx context.Context, p *profile.Profile) (*profile.Profile, error)
	UpdateProfileFn  func(ctx context.Context, id uuid.UUID, u profile.Update) (*profile.Profile, error)
	UploadFileFn     func(ctx context.Context, bucket, path string, data []byte, contentType string) error
	ListFilesFn      func(ctx context.Context, bucket, prefix string) ([]storage.Object, error)
	DeleteFilesFn    func(ctx context.Context, bucket string, paths []string) error

	mu        sync.Mutex
	listeners map[int]provider.SessionListener
	nextID    int
	profiles  map[uuid.UUID]*profile.Profile
	objects   map[string]storage.Object
	calls     map[string]int
}

// New returns an empty Fake.
func New() *Fake {
	return &Fake{
		listeners: make(map[int]provider.SessionListener),
		profiles:  make(map[uuid.UUID]*profile.Profile),
		objects:   make(map[string]storage.Object),
		calls:     make(map[string]int),
	}
}

// NewSession builds a live session for id.
func NewSession(id uuid.UUID, email string) *provider.Session {
	return &provider.Session{
		Token: &oauth2.Token{
			AccessToken:  "access-" + id.String(),
			RefreshToken: "refresh-" + id.String(),
			TokenType:    "Bearer",
			Expiry:       time.Now().Add(time.Hour),
		},
		Identity: provider.Identity{ID: id, Email: email},
	}
}

// Calls returns how often the named method was invoked.
func (f *Fake) Calls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

// Listeners returns the number of active session subscriptions.
func (f *Fake) Listeners() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.listeners)
}

// Emit delivers a session change to every subscriber.
func (f *Fake) Emit(event provider.Event, sess *provider.Session) {
	f.mu.Lock()
	ids := make([]int, 0, len(f.listeners))
	for id := range f.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]provider.SessionListener, 0, len(ids))
	for _, id := range ids {
		fns = append(fns, f.listeners[id])
	}
	f.mu.Unlock()

	for _, fn := range fns {
		fn(event, sess)
	}
}

// PutProfile stores p for the default GetProfile and UsernameExists.
func (f *Fake) PutProfile(p *profile.Profile) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.profiles[p.ID] = p
}

func (f *Fake) record(method string) {
	f.mu.Lock()
	f.calls[method]++
	f.mu.Unlock()
}

type subscription struct {
	f  *Fake
	id int
}

func (s subscription) Unsubscribe() {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	delete(s.f.listeners, s.id)
}

func (f *Fake) OnSessionChange(fn provider.SessionListener) provider.Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID
	f.nextID++
	f.listeners[id] = fn
	f.calls["OnSessionChange"]++
	return subscription{f: f, id: id}
}

func (f *Fake) GetSession(ctx context.Context) (*provider.Session, error) {
	f.record("GetSession")
	if f.GetSessionFn != nil {
		return f.GetSessionFn(ctx)
	}
	return nil, nil
}

func (f *Fake) SignInWithPassword(ctx context.Context, email, password string) (*provider.Identity, error) {
	f.record("SignInWithPassword")
	if f.SignInFn != nil {
		return f.SignInFn(ctx, email, password)
	}
	return nil, provider.ErrInvalidCredentials
}

func (f *Fake) SignUp(ctx context.Context, email, password string) (*provider.Identity, error) {
	f.record("SignUp")
	if f.SignUpFn != nil {
		return f.SignUpFn(ctx, email, password)
	}
	return &provider.Identity{ID: uuid.New(), Email: email}, nil
}

func (f *Fake) SignOut(ctx context.Context) error {
	f.record("SignOut")
	if f.SignOutFn != nil {
		return f.SignOutFn(ctx)
	}
	return nil
}

func (f *Fake) GetProfile(ctx context.Context, id uuid.UUID) (*profile.Profile, error) {
	f.record("GetProfile")
	if f.GetProfileFn != nil {
		return f.GetProfileFn(ctx, id)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.profiles[id], nil
}

func (f *Fake) UsernameExists(ctx context.Context, username string) (bool, error) {
	f.record("UsernameExists")
	if f.UsernameExistsFn != nil {
		return f.UsernameExistsFn(ctx, username)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.profiles {
		if p.Username != nil && *p.Username == username {
			return true, nil
		}
	}
	return false, nil
}

func (f *Fake) InsertProfile(ctx context.Context, p *profile.Profile) (*profile.Profile, error) {
	f.record("InsertProfile")
	if f.InsertProfileFn != nil {
		return f.InsertProfileFn(ctx, p)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if p.Username != nil {
		for _, existing := range f.profiles {
			if existing.Username != nil && *existing.Username == *p.Username {
				return nil, fmt.Errorf("inserting profile: %w", provider.ErrUsernameTaken)
			}
		}
	}
	created := *p
	created.CreatedAt = time.Now()
	created.UpdatedAt = created.CreatedAt
	f.profiles[p.ID] = &created
	return &created, nil
}

func (f *Fake) UpdateProfile(ctx context.Context, id uuid.UUID, u profile.Update) (*profile.Profile, error) {
	f.record("UpdateProfile")
	if f.UpdateProfileFn != nil {
		return f.UpdateProfileFn(ctx, id, u)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	cur, ok := f.profiles[id]
	if !ok {
		return nil, provider.ErrNotFound
	}
	next := *cur
	if u.Username != nil {
		next.Username = u.Username
	}
	if u.FirstName != nil {
		next.FirstName = *u.FirstName
	}
	if u.LastName != nil {
		next.LastName = *u.LastName
	}
	if u.AvatarURL != nil {
		next.AvatarURL = u.AvatarURL
	}
	if u.Bio != nil {
		next.Bio = u.Bio
	}
	if u.Location != nil {
		next.Location = u.Location
	}
	if u.Interests != nil {
		next.Interests = *u.Interests
	}
	next.UpdatedAt = time.Now()
	f.profiles[id] = &next
	return &next, nil
}

func objectKey(bucket, path string) string {
	return bucket + "/" + path
}

func (f *Fake) UploadFile(ctx context.Context, bucket, path string, data []byte, contentType string) error {
	f.record("UploadFile")
	if f.UploadFileFn != nil {
		return f.UploadFileFn(ctx, bucket, path, data, contentType)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	key := objectKey(bucket, path)
	if _, ok := f.objects[key]; ok {
		return provider.ErrObjectExists
	}
	name := path
	if i := strings.LastIndex(path, "/"); i >= 0 {
		name = path[i+1:]
	}
	f.objects[key] = storage.Object{
		Name:        name,
		Path:        path,
		Size:        int64(len(data)),
		ContentType: contentType,
		CreatedAt:   time.Now(),
	}
	return nil
}

func (f *Fake) GetPublicURL(bucket, path string) string {
	return "https://files.test/storage/public/" + bucket + "/" + path
}

func (f *Fake) ListFiles(ctx context.Context, bucket, prefix string) ([]storage.Object, error) {
	f.record("ListFiles")
	if f.ListFilesFn != nil {
		return f.ListFilesFn(ctx, bucket, prefix)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []storage.Object
	for key, obj := range f.objects {
		if strings.HasPrefix(key, objectKey(bucket, prefix)) {
			out = append(out, obj)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Path > out[j].Path
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// Objects returns the stored object paths in bucket.
func (f *Fake) Objects(bucket string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for key, obj := range f.objects {
		if strings.HasPrefix(key, bucket+"/") {
			out = append(out, obj.Path)
		}
	}
	sort.Strings(out)
	return out
}

func (f *Fake) DeleteFiles(ctx context.Context, bucket string, paths []string) error {
	f.record("DeleteFiles")
	if f.DeleteFilesFn != nil {
		return f.DeleteFilesFn(ctx, bucket, paths)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range paths {
		delete(f.objects, objectKey(bucket, p))
	}
	return nil
}

var _ provider.Provider = (*Fake)(nil)
