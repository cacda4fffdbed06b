package store

import (
	"path/filepath"
	"sync"

	"github.com/bytedance/sonic"
)

// Registry hands out one Store per backing file path. The singleton-per-path
// rule is what makes concurrent callers in the same process share a single
// writer; the registry is owned by the composition root and injected into
// the services that need stores, never a package-level global.
type Registry struct {
	mu     sync.Mutex
	stores map[string]*Store
}

func NewRegistry() *Registry {
	return &Registry{stores: map[string]*Store{}}
}

// Decode re-marshals a stored JSON tree into a typed struct. Values read
// back from disk are generic maps; services use Decode to get their record
// types out without hand-walking the tree.
func Decode(v interface{}, out interface{}) error {
	raw, err := sonic.Marshal(v)
	if err != nil {
		return err
	}
	return sonic.Unmarshal(raw, out)
}

// Open returns the store for path, creating it on first use. Repeated calls
// with the same path (after cleaning) return the same instance.
func (r *Registry) Open(path string) (*Store, error) {
	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.stores[abs]; ok {
		return s, nil
	}

	s, err := open(abs)
	if err != nil {
		return nil, err
	}
	r.stores[abs] = s
	return s, nil
}
