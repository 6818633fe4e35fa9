package search

import (
	"errors"
	"runtime"
	"sync/atomic"
)

var (
	// ErrNotReady is returned by queries issued before an index is published
	ErrNotReady = errors.New("index not ready")
	// ErrAlreadyPublished is returned when publishing a second index
	ErrAlreadyPublished = errors.New("index already published")
	// ErrNilIndex is returned when publishing a nil index
	ErrNilIndex = errors.New("cannot publish a nil index")
)

// Registry holds the one index a process serves. The index is published
// once and never replaced.
type Registry struct {
	idx atomic.Pointer[Index]
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{}
}

// Publish makes idx visible to queries. It succeeds at most once.
func (r *Registry) Publish(idx *Index) error {
	if idx == nil {
		return ErrNilIndex
	}
	if !r.idx.CompareAndSwap(nil, idx) {
		return ErrAlreadyPublished
	}
	return nil
}

// Index returns the published index
func (r *Registry) Index() (*Index, error) {
	idx := r.idx.Load()
	if idx == nil {
		return nil, ErrNotReady
	}
	return idx, nil
}

// Ready reports whether an index has been published
func (r *Registry) Ready() bool {
	return r.idx.Load() != nil
}

var (
	defaultRegistry = NewRegistry()
	defaultEngine   = NewEngine(defaultRegistry, runtime.NumCPU(), nil)
)

// Default returns the process-wide registry
func Default() *Registry { return defaultRegistry }

// Publish publishes idx in the process-wide registry
func Publish(idx *Index) error { return defaultRegistry.Publish(idx) }

// Ready reports whether the process-wide registry holds an index
func Ready() bool { return defaultRegistry.Ready() }

// Search queries the process-wide registry
func Search(lon, lat float64) ([]Result, error) { return defaultEngine.Search(lon, lat) }
