package service

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/maheshrc27/clipcast/internal/models"
)

var (
	ErrContentNotFound = errors.New("content item not found")
	ErrUnknownPlatform = errors.New("unknown platform")
)

type PublishReceipt struct {
	RemotePostID string
	RemoteURL    string
}

// Publisher pushes one content item to one platform.
type Publisher interface {
	Publish(ctx context.Context, contentItemID string) (*PublishReceipt, error)
}

// PublishError classifies a publisher failure. Errors that are not a
// *PublishError are treated as retryable.
type PublishError struct {
	Retryable bool
	Reason    string
	Err       error
}

func (e *PublishError) Error() string {
	if e.Err == nil {
		return e.Reason
	}
	if e.Reason == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Reason, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }

func Terminal(reason string, err error) error {
	return &PublishError{Retryable: false, Reason: reason, Err: err}
}

func Retryable(reason string, err error) error {
	return &PublishError{Retryable: true, Reason: reason, Err: err}
}

func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var pe *PublishError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return true
}

type PlatformAdapter struct {
	Platform  models.Platform
	Publisher Publisher
	DailyCap  int
}

// Registry maps each supported platform to its adapter.
type Registry struct {
	adapters map[models.Platform]PlatformAdapter
}

func NewRegistry(adapters ...PlatformAdapter) *Registry {
	r := &Registry{adapters: make(map[models.Platform]PlatformAdapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Platform] = a
	}
	return r
}

func (r *Registry) Get(p models.Platform) (PlatformAdapter, error) {
	a, ok := r.adapters[p]
	if !ok {
		return PlatformAdapter{}, fmt.Errorf("%w: %s", ErrUnknownPlatform, p)
	}
	return a, nil
}

func (r *Registry) DefaultCaps() map[models.Platform]int {
	caps := make(map[models.Platform]int, len(r.adapters))
	for p, a := range r.adapters {
		caps[p] = a.DailyCap
	}
	return caps
}

func (r *Registry) Platforms() []models.Platform {
	out := make([]models.Platform, 0, len(r.adapters))
	for p := range r.adapters {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
