package storage

import (
	"errors"
	"fmt"
	"slices"
	"sort"
)

// Bucket names used by the application.
const (
	BucketProfilePictures = "profile-pictures"
	BucketBannerImages    = "banner-images"
)

const mib = 1024 * 1024

// ErrUnknownBucket is returned when a bucket is not registered.
var ErrUnknownBucket = errors.New("unknown bucket")

// ErrContentType is returned when a bucket does not accept the content type.
var ErrContentType = errors.New("content type not allowed")

// ErrTooLarge is returned when an object exceeds the bucket's size limit.
var ErrTooLarge = errors.New("object too large")

// Policy describes what a bucket accepts.
type Policy struct {
	MaxBytes     int64
	AllowedTypes []string
}

// Check validates an upload against the policy.
func (p Policy) Check(contentType string, size int64) error {
	if len(p.AllowedTypes) > 0 && !slices.Contains(p.AllowedTypes, contentType) {
		return fmt.Errorf("%w: %s", ErrContentType, contentType)
	}
	if p.MaxBytes > 0 && size > p.MaxBytes {
		return fmt.Errorf("%w: maximum size is %dMB", ErrTooLarge, p.MaxBytes/mib)
	}
	return nil
}

// Registry maps bucket names to their policies.
type Registry struct {
	buckets map[string]Policy
}

// NewRegistry creates an empty bucket registry.
func NewRegistry() *Registry {
	return &Registry{
		buckets: make(map[string]Policy),
	}
}

// DefaultRegistry returns the buckets the application ships with.
func DefaultRegistry() *Registry {
	images := []string{"image/jpeg", "image/png", "image/webp"}

	r := NewRegistry()
	r.Register(BucketProfilePictures, Policy{MaxBytes: 5 * mib, AllowedTypes: images})
	r.Register(BucketBannerImages, Policy{MaxBytes: 10 * mib, AllowedTypes: images})
	return r
}

// Register adds a bucket under the given name.
func (r *Registry) Register(name string, p Policy) {
	r.buckets[name] = p
}

// Get returns the policy registered under the given name.
// Returns false if the name is not registered.
func (r *Registry) Get(name string) (Policy, bool) {
	p, ok := r.buckets[name]
	return p, ok
}

// Has reports whether a bucket with the given name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.buckets[name]
	return ok
}

// Names returns a sorted list of all registered bucket names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.buckets))
	for name := range r.buckets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
