package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pelletier/go-toml/v2"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Format is a registry file encoding
type Format string

// Supported registry formats
const (
	FormatJSON Format = "json"
	FormatTOML Format = "toml"
	FormatYAML Format = "yaml"
)

// ErrUnsupportedFormat is returned for an unknown registry format
var ErrUnsupportedFormat = errors.New("unsupported registry format")

// document is the on-disk registry shape shared by all formats
type document struct {
	Algorithms []entry `json:"algorithms" toml:"algorithms" yaml:"algorithms"`
}

type entry struct {
	Name       string   `json:"name" toml:"name" yaml:"name"`
	Type       string   `json:"type" toml:"type" yaml:"type"`
	Executable string   `json:"executable,omitempty" toml:"executable,omitempty" yaml:"executable,omitempty"`
	SizeArg    bool     `json:"size_arg,omitempty" toml:"size_arg,omitempty" yaml:"size_arg,omitempty"`
	Args       []string `json:"args,omitempty" toml:"args,omitempty" yaml:"args,omitempty"`

	// HashlibName names the built-in implementation when it differs from Name
	HashlibName string `json:"hashlib_name,omitempty" toml:"hashlib_name,omitempty" yaml:"hashlib_name,omitempty"`
}

// FormatFromPath selects a format by file extension. Unknown extensions are
// treated as JSON.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

func decode(data []byte, format Format) (*document, error) {
	var doc document
	var err error
	switch format {
	case FormatJSON:
		// Comments and trailing commas are accepted.
		err = json.Unmarshal(jsonc.ToJSON(data), &doc)
	case FormatTOML:
		err = toml.Unmarshal(data, &doc)
	case FormatYAML:
		err = yaml.Unmarshal(data, &doc)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s registry: %w", format, err)
	}
	return &doc, nil
}

// resolve turns a raw entry into a descriptor.
func (e entry) resolve() (Descriptor, error) {
	name := strings.TrimSpace(e.Name)
	if name == "" {
		return Descriptor{}, ErrEmptyName
	}

	builtinKey := name
	if e.HashlibName != "" {
		builtinKey = e.HashlibName
	}

	switch strings.ToLower(strings.TrimSpace(e.Type)) {
	case "builtin", "hashlib":
		d, ok := Builtin(builtinKey)
		if !ok {
			return Descriptor{}, fmt.Errorf("%w: %s", ErrUnknownBuiltin, name)
		}
		d.Name = name
		return d, nil
	case "checksum":
		d, ok := Builtin(builtinKey)
		if !ok {
			return Descriptor{}, fmt.Errorf("%w: %s", ErrUnknownBuiltin, name)
		}
		if d.Kind != KindBuiltinChecksum {
			return Descriptor{}, fmt.Errorf("%w: %s", ErrNotChecksum, name)
		}
		d.Name = name
		return d, nil
	case "executable":
		if strings.TrimSpace(e.Executable) == "" {
			return Descriptor{}, fmt.Errorf("%w: %s", ErrMissingExecutable, name)
		}
		d := Descriptor{
			Name:       name,
			Kind:       KindExternalExecutable,
			Executable: e.Executable,
			SizeArg:    e.SizeArg,
			Args:       e.Args,
		}
		if b, ok := Builtin(builtinKey); ok {
			d.Builtin = b.Builtin
		}
		return d, nil
	default:
		return Descriptor{}, fmt.Errorf("%w: %s: %q", ErrUnknownType, name, e.Type)
	}
}

// Parse decodes a registry document. Malformed entries are skipped and
// reported in the returned error; the registry is nil only when the document
// itself cannot be decoded or holds no valid entry.
func Parse(data []byte, format Format) (*Registry, error) {
	doc, err := decode(data, format)
	if err != nil {
		return nil, err
	}

	descs := make([]Descriptor, 0, len(doc.Algorithms))
	var errs []error
	for i, e := range doc.Algorithms {
		d, err := e.resolve()
		if err != nil {
			errs = append(errs, fmt.Errorf("entry %d: %w", i, err))
			continue
		}
		descs = append(descs, d)
	}

	r, err := New(descs...)
	if err != nil {
		errs = append(errs, err)
	}
	if r.Len() == 0 {
		return nil, errors.Join(append(errs, ErrNoAlgorithms)...)
	}
	return r, errors.Join(errs...)
}

// Load reads the registry file at path. It always returns a usable
// registry: when the file is missing, unreadable, malformed or empty, the
// Fallback set is returned together with an error wrapping ErrFallback.
// A non-nil error alongside a loaded registry lists skipped entries.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- registry path is operator configuration
	if err != nil {
		return Fallback(), fmt.Errorf("%w: %w", ErrFallback, err)
	}

	r, err := Parse(data, FormatFromPath(path))
	if r == nil {
		return Fallback(), fmt.Errorf("%w: %s: %w", ErrFallback, path, err)
	}
	if err != nil {
		return r, fmt.Errorf("%s: %w", path, err)
	}
	return r, nil
}

var (
	defaultMu   sync.Mutex
	defaultPath string
	defaultReg  *Registry
)

// SetDefaultPath sets the file Default loads. Changing the path discards a
// registry loaded from the previous one.
func SetDefaultPath(path string) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if path != defaultPath {
		defaultPath = path
		defaultReg = nil
	}
}

// Default returns the process-wide registry, loading it on first use. With no
// default path configured the Fallback set is used. Load problems are logged
// through slog's default logger.
func Default() *Registry {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultReg != nil {
		return defaultReg
	}

	if defaultPath == "" {
		defaultReg = Fallback()
		return defaultReg
	}
	r, err := Load(defaultPath)
	if err != nil {
		slog.Warn("Algorithm registry loaded with problems", "path", defaultPath, "error", err)
	}
	defaultReg = r
	return defaultReg
}
