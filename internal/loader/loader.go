// Package loader resolves controller references to callable DISCON
// controllers: built-in Go controllers by name, or shared libraries on disk.
package loader

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/san-kum/turbinectl/internal/controllers"
	"github.com/san-kum/turbinectl/internal/discon"
)

// BuiltinPrefix marks a reference to a controller compiled into this binary.
const BuiltinPrefix = "builtin:"

var ErrUnknownController = errors.New("unknown built-in controller")

// Library is a loaded controller. Close unloads it; the controller must not
// be called afterwards.
type Library interface {
	discon.Controller
	Close() error
}

// Reference names a controller to load.
type Reference struct {
	// Name is "builtin:<name>" or a shared library path.
	Name string
	// Dir resolves relative library paths.
	Dir string
	// Shareable allows several sessions to use one loaded copy. When false
	// each load gets a private copy of the library file so that controllers
	// keeping static state do not interfere.
	Shareable bool
}

func (r Reference) Builtin() (string, bool) {
	if strings.HasPrefix(r.Name, BuiltinPrefix) {
		return strings.TrimPrefix(r.Name, BuiltinPrefix), true
	}
	return "", false
}

// Path is the library path with Dir applied.
func (r Reference) Path() string {
	if r.Dir == "" || filepath.IsAbs(r.Name) {
		return r.Name
	}
	return filepath.Join(r.Dir, r.Name)
}

type Loader interface {
	Load(ref Reference) (Library, error)
}

// Registry loads built-in controllers by name and hands everything else to
// the shared library loader.
type Registry struct {
	builtins map[string]func() discon.Controller
	shared   func(Reference) (Library, error)
}

func NewRegistry() *Registry {
	r := &Registry{
		builtins: make(map[string]func() discon.Controller),
		shared:   openShared,
	}

	r.Register("none", func() discon.Controller { return controllers.NewNone() })
	r.Register("baseline", func() discon.Controller { return controllers.NewBaseline() })

	return r
}

// Default is a registry with the stock built-in controllers.
func Default() *Registry { return NewRegistry() }

// Register adds or replaces a built-in controller. fn must return a fresh
// controller on each call since every session owns its own state.
func (r *Registry) Register(name string, fn func() discon.Controller) {
	r.builtins[name] = fn
}

func (r *Registry) Load(ref Reference) (Library, error) {
	if ref.Name == "" {
		return nil, &discon.ResourceError{Ref: ref.Name, Err: errors.New("no controller given")}
	}
	if name, ok := ref.Builtin(); ok {
		fn, ok := r.builtins[name]
		if !ok {
			return nil, &discon.ResourceError{
				Ref: ref.Name,
				Err: fmt.Errorf("%w (available: %v)", ErrUnknownController, r.List()),
			}
		}
		return builtin{fn()}, nil
	}

	lib, err := r.shared(ref)
	if err != nil {
		return nil, &discon.ResourceError{Ref: ref.Name, Err: err}
	}
	return lib, nil
}

func (r *Registry) List() []string {
	names := make([]string, 0, len(r.builtins))
	for name := range r.builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type builtin struct {
	discon.Controller
}

func (builtin) Close() error { return nil }
