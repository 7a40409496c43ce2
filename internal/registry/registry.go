// Package registry maps algorithm display names to computation strategies.
//
// Each entry is resolved once, at load time, into a Descriptor whose Kind
// selects the strategy: a built-in digest, a built-in checksum, or an
// external executable. The registry is read-only after construction.
package registry

import (
	"errors"
	"fmt"
	"strings"

	"github.com/isseis/go-safe-digest/internal/calcerrors"
	"github.com/isseis/go-safe-digest/internal/digest"
)

// Kind identifies the computation strategy of an algorithm
type Kind int

const (
	// KindBuiltinDigest computes a cryptographic or fast digest in process
	KindBuiltinDigest Kind = iota + 1
	// KindBuiltinChecksum computes a running checksum in process
	KindBuiltinChecksum
	// KindExternalExecutable delegates to a separate executable
	KindExternalExecutable
)

// String returns the entry type name for the kind.
func (k Kind) String() string {
	switch k {
	case KindBuiltinDigest:
		return "builtin"
	case KindBuiltinChecksum:
		return "checksum"
	case KindExternalExecutable:
		return "executable"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Error definitions
var (
	ErrEmptyName          = errors.New("algorithm name cannot be empty")
	ErrUnknownType        = errors.New("unknown algorithm type")
	ErrUnknownBuiltin     = errors.New("no built-in implementation")
	ErrNotChecksum        = errors.New("built-in is not a checksum")
	ErrMissingExecutable  = errors.New("executable algorithm requires an executable")
	ErrDuplicateAlgorithm = errors.New("duplicate algorithm name")
	ErrNoAlgorithms       = errors.New("no valid algorithms defined")
	ErrFallback           = errors.New("using fallback algorithms")
)

// Descriptor is the resolved form of one registry entry
type Descriptor struct {
	// Name is the display key, e.g. "SHA-256"
	Name string

	// Kind selects the strategy
	Kind Kind

	// Builtin is the canonical built-in implementation name. It is also set
	// for executable entries whose Name happens to match a built-in.
	Builtin string

	// Executable is the executable reference, relative to the executable
	// directory unless absolute
	Executable string

	// SizeArg appends the input byte count as the executable's final argument
	SizeArg bool

	// Args are passed to the executable before the size argument
	Args []string
}

// HasBuiltin reports whether the algorithm can be computed in process.
func (d Descriptor) HasBuiltin() bool {
	return d.Builtin != ""
}

// Registry is an ordered, read-only set of descriptors
type Registry struct {
	order  []string
	byName map[string]Descriptor
}

// New builds a registry from descriptors. Descriptors are validated in
// order; invalid ones are skipped and reported in the returned error, which
// is nil when every descriptor was accepted.
func New(descs ...Descriptor) (*Registry, error) {
	r := &Registry{byName: make(map[string]Descriptor, len(descs))}
	var errs []error
	for _, d := range descs {
		if err := r.add(d); err != nil {
			errs = append(errs, err)
		}
	}
	return r, errors.Join(errs...)
}

func (r *Registry) add(d Descriptor) error {
	if d.Name == "" {
		return ErrEmptyName
	}
	if _, exists := r.byName[d.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateAlgorithm, d.Name)
	}
	switch d.Kind {
	case KindBuiltinDigest, KindBuiltinChecksum:
		if d.Builtin == "" {
			return fmt.Errorf("%w: %s", ErrUnknownBuiltin, d.Name)
		}
	case KindExternalExecutable:
		if d.Executable == "" {
			return fmt.Errorf("%w: %s", ErrMissingExecutable, d.Name)
		}
	default:
		return fmt.Errorf("%w: %s: %v", ErrUnknownType, d.Name, d.Kind)
	}
	d.Args = append([]string(nil), d.Args...)
	r.order = append(r.order, d.Name)
	r.byName[d.Name] = d
	return nil
}

// Names returns the display names in definition order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Len returns the number of algorithms.
func (r *Registry) Len() int {
	return len(r.order)
}

// Lookup returns the descriptor for name. An exact match wins; otherwise
// the match is case-insensitive. A miss is an UnknownAlgorithm error.
func (r *Registry) Lookup(name string) (Descriptor, error) {
	if d, ok := r.byName[name]; ok {
		return d, nil
	}
	for _, n := range r.order {
		if strings.EqualFold(n, name) {
			return r.byName[n], nil
		}
	}
	return Descriptor{}, calcerrors.UnknownAlgorithm(name)
}

// Builtin returns a descriptor for a built-in implementation name.
func Builtin(name string) (Descriptor, bool) {
	canonical, kind, ok := digest.Lookup(name)
	if !ok {
		return Descriptor{}, false
	}
	d := Descriptor{Name: name, Kind: KindBuiltinDigest, Builtin: canonical}
	if kind == digest.KindChecksum {
		d.Kind = KindBuiltinChecksum
	}
	return d, true
}

// fallbackNames is the safe default set used when no registry file can be
// loaded
var fallbackNames = []string{"SHA-256", "SHA-384", "SHA-512", "CRC-32"}

// Fallback returns the built-in default registry.
func Fallback() *Registry {
	descs := make([]Descriptor, 0, len(fallbackNames))
	for _, name := range fallbackNames {
		d, ok := Builtin(name)
		if !ok {
			panic("registry: fallback algorithm is not built in: " + name)
		}
		descs = append(descs, d)
	}
	r, err := New(descs...)
	if err != nil {
		panic("registry: invalid fallback set: " + err.Error())
	}
	return r
}
