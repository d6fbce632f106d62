package output

import (
	"sort"
	"sync"

	"github.com/isometry/thanos-sidecar/pkg/checks"
	"github.com/isometry/thanos-sidecar/pkg/probe"
	"github.com/isometry/thanos-sidecar/pkg/sidecar"
)

// Report is everything a command may print. Formatters render the parts
// that are set.
type Report struct {
	Descriptor *sidecar.ServiceDescriptor `json:"descriptor,omitempty" yaml:"descriptor,omitempty"`
	Checks     []checks.Outcome          `json:"checks,omitempty" yaml:"checks,omitempty"`
	Probes     []probe.Result            `json:"probes,omitempty" yaml:"probes,omitempty"`
	Value      any                       `json:"value,omitempty" yaml:"value,omitempty"`
}

// Formatter converts a Report into output bytes.
type Formatter interface {
	Format(r *Report, cfg Config) ([]byte, error)
}

var (
	formatters = make(map[string]Formatter)
	mu         sync.RWMutex
)

// RegisterFormatter registers a formatter by name.
// Called from init() in each formatter file.
func RegisterFormatter(name string, f Formatter) {
	mu.Lock()
	defer mu.Unlock()
	formatters[name] = f
}

// GetFormatter returns the formatter for the given name.
func GetFormatter(name string) (Formatter, bool) {
	mu.RLock()
	defer mu.RUnlock()
	f, ok := formatters[name]
	return f, ok
}

// FormatNames returns a sorted list of registered format names.
func FormatNames() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(formatters))
	for name := range formatters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
