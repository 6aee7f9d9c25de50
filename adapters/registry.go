// Package adapters resolves the "source" definitions of seed file nodes into
// slowfs.ContentSource values.
package adapters

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/brettbedarf/slowfs"
	"github.com/puzpuzpuz/xsync/v4"
)

// SourceFactory builds a content source from the raw JSON of one source definition
type SourceFactory func(raw []byte) (slowfs.ContentSource, error)

// Registry maps a source "type" key to its factory. Safe for concurrent use.
type Registry struct {
	factories *xsync.Map[string, SourceFactory]
}

func NewRegistry() *Registry {
	return &Registry{factories: xsync.NewMap[string, SourceFactory]()}
}

// Register ties a factory to a "type" key. The first registration of a key wins;
// it reports whether f was stored.
func (r *Registry) Register(sourceType string, f SourceFactory) bool {
	_, loaded := r.factories.LoadOrStore(sourceType, f)
	return !loaded
}

// Source picks the factory named by the "type" field of raw and builds the source.
// All expected source types should be registered before calling this function.
func (r *Registry) Source(raw []byte) (slowfs.ContentSource, error) {
	var meta struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("source definition: %w", err)
	}
	f, ok := r.factories.Load(meta.Type)
	if !ok {
		return nil, fmt.Errorf("no source factory for %q", meta.Type)
	}
	return f(raw)
}

// Types lists the registered type keys in sorted order
func (r *Registry) Types() []string {
	types := make([]string, 0, r.factories.Size())
	r.factories.Range(func(key string, _ SourceFactory) bool {
		types = append(types, key)
		return true
	})
	slices.Sort(types)
	return types
}
