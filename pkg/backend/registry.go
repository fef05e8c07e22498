package backend

import (
	"fmt"
	"sync"

	"github.com/cuemby/virtwho/pkg/config"
	"github.com/rs/zerolog"
)

// registry is the closed set of recognised backend type tags. It is
// populated by each backend file's init(), replacing the Python
// subclass-registration side effect with an explicit map.
var (
	registryMu sync.RWMutex
	registry   = map[string]Constructor{}
)

// Register adds a backend constructor under tag. Called from init() by
// each backend implementation file; panics on a duplicate tag since that
// is a programming error, never a runtime condition.
func Register(tag string, ctor Constructor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[tag]; exists {
		panic("backend: duplicate registration for type " + tag)
	}
	registry[tag] = ctor
}

// New constructs the backend registered for source.Type. An unrecognised
// type is a fatal configuration error, not a VirtError: it cannot be
// fixed by retrying.
func New(logger zerolog.Logger, source *config.Source) (Backend, error) {
	registryMu.RLock()
	ctor, ok := registry[source.Type]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("backend: unrecognised source type %q", source.Type)
	}
	return ctor(logger, source)
}

// Types returns the currently registered type tags, for validation and
// CLI help text.
func Types() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]string, 0, len(registry))
	for t := range registry {
		out = append(out, t)
	}
	return out
}
