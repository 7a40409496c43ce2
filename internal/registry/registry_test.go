package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/isseis/go-safe-digest/internal/calcerrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const jsonRegistry = `{
	// comments are accepted
	"algorithms": [
		{"name": "SHA-256", "type": "hashlib", "hashlib_name": "sha256"},
		{"name": "CRC-32", "type": "checksum"},
		{"name": "BLAKE3", "type": "builtin"},
		{"name": "SHA-1", "type": "executable", "executable": "sha1_hasher", "size_arg": true},
		{"name": "Whirlpool", "type": "executable", "executable": "/opt/hashers/whirlpool", "args": ["--hex"]},
	]
}`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestParseJSON(t *testing.T) {
	r, err := Parse([]byte(jsonRegistry), FormatJSON)
	require.NoError(t, err)

	assert.Equal(t, []string{"SHA-256", "CRC-32", "BLAKE3", "SHA-1", "Whirlpool"}, r.Names())

	sha256, err := r.Lookup("SHA-256")
	require.NoError(t, err)
	assert.Equal(t, KindBuiltinDigest, sha256.Kind)
	assert.Equal(t, "SHA-256", sha256.Builtin)

	crc, err := r.Lookup("CRC-32")
	require.NoError(t, err)
	assert.Equal(t, KindBuiltinChecksum, crc.Kind)

	sha1, err := r.Lookup("SHA-1")
	require.NoError(t, err)
	assert.Equal(t, KindExternalExecutable, sha1.Kind)
	assert.Equal(t, "sha1_hasher", sha1.Executable)
	assert.True(t, sha1.SizeArg)
	assert.True(t, sha1.HasBuiltin(), "executable entry named after a built-in keeps the built-in")

	whirlpool, err := r.Lookup("Whirlpool")
	require.NoError(t, err)
	assert.False(t, whirlpool.HasBuiltin())
	assert.Equal(t, []string{"--hex"}, whirlpool.Args)
}

func TestParseTOMLAndYAML(t *testing.T) {
	tomlDoc := `
[[algorithms]]
name = "SHA-512"
type = "builtin"

[[algorithms]]
name = "CRC"
type = "executable"
executable = "crc_hasher"
size_arg = true
`
	yamlDoc := `
algorithms:
  - name: SHA-512
    type: builtin
  - name: CRC
    type: executable
    executable: crc_hasher
    size_arg: true
`
	for format, doc := range map[Format]string{FormatTOML: tomlDoc, FormatYAML: yamlDoc} {
		t.Run(string(format), func(t *testing.T) {
			r, err := Parse([]byte(doc), format)
			require.NoError(t, err)
			assert.Equal(t, []string{"SHA-512", "CRC"}, r.Names())

			crc, err := r.Lookup("CRC")
			require.NoError(t, err)
			assert.Equal(t, KindExternalExecutable, crc.Kind)
			assert.True(t, crc.SizeArg)
		})
	}
}

func TestParseSkipsMalformedEntries(t *testing.T) {
	doc := `{"algorithms": [
		{"name": "", "type": "builtin"},
		{"name": "Mystery", "type": "quantum"},
		{"name": "NoExe", "type": "executable"},
		{"name": "Fake", "type": "builtin"},
		{"name": "MD5", "type": "checksum"},
		{"name": "SHA-256", "type": "builtin"},
		{"name": "SHA-256", "type": "builtin"}
	]}`

	r, err := Parse([]byte(doc), FormatJSON)
	require.NotNil(t, r)
	require.Error(t, err)
	assert.Equal(t, []string{"SHA-256"}, r.Names())

	assert.ErrorIs(t, err, ErrEmptyName)
	assert.ErrorIs(t, err, ErrUnknownType)
	assert.ErrorIs(t, err, ErrMissingExecutable)
	assert.ErrorIs(t, err, ErrUnknownBuiltin)
	assert.ErrorIs(t, err, ErrNotChecksum)
	assert.ErrorIs(t, err, ErrDuplicateAlgorithm)
}

func TestParseNoValidEntries(t *testing.T) {
	r, err := Parse([]byte(`{"algorithms": []}`), FormatJSON)
	assert.Nil(t, r)
	assert.ErrorIs(t, err, ErrNoAlgorithms)
}

func TestLookupUnknown(t *testing.T) {
	r := Fallback()
	_, err := r.Lookup("SHA-999")
	assert.ErrorIs(t, err, calcerrors.ErrUnknownAlgorithm)
	assert.Equal(t, calcerrors.KindUnknownAlgorithm, calcerrors.KindOf(err))
}

func TestLookupCaseInsensitive(t *testing.T) {
	d, err := Fallback().Lookup("sha-256")
	require.NoError(t, err)
	assert.Equal(t, "SHA-256", d.Name)
}

func TestFallback(t *testing.T) {
	r := Fallback()
	assert.Equal(t, []string{"SHA-256", "SHA-384", "SHA-512", "CRC-32"}, r.Names())
	for _, name := range r.Names() {
		d, err := r.Lookup(name)
		require.NoError(t, err)
		assert.True(t, d.HasBuiltin(), name)
	}
}

func TestLoad(t *testing.T) {
	t.Run("by extension", func(t *testing.T) {
		path := writeFile(t, "algorithms.jsonc", jsonRegistry)
		r, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, 5, r.Len())
	})

	t.Run("missing file falls back", func(t *testing.T) {
		r, err := Load(filepath.Join(t.TempDir(), "absent.json"))
		require.NotNil(t, r)
		assert.ErrorIs(t, err, ErrFallback)
		assert.ErrorIs(t, err, os.ErrNotExist)
		assert.Equal(t, Fallback().Names(), r.Names())
	})

	t.Run("malformed document falls back", func(t *testing.T) {
		r, err := Load(writeFile(t, "algorithms.json", `{"algorithms": [`))
		require.NotNil(t, r)
		assert.ErrorIs(t, err, ErrFallback)
		assert.Equal(t, Fallback().Names(), r.Names())
	})

	t.Run("empty registry falls back", func(t *testing.T) {
		r, err := Load(writeFile(t, "algorithms.yaml", "algorithms: []\n"))
		require.NotNil(t, r)
		assert.ErrorIs(t, err, ErrFallback)
		assert.ErrorIs(t, err, ErrNoAlgorithms)
	})

	t.Run("partial registry keeps valid entries", func(t *testing.T) {
		path := writeFile(t, "algorithms.json",
			`{"algorithms": [{"name": "MD5", "type": "builtin"}, {"name": "X", "type": "nope"}]}`)
		r, err := Load(path)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrFallback)
		assert.Equal(t, []string{"MD5"}, r.Names())
	})
}

func TestFormatFromPath(t *testing.T) {
	assert.Equal(t, FormatJSON, FormatFromPath("a.json"))
	assert.Equal(t, FormatJSON, FormatFromPath("a.jsonc"))
	assert.Equal(t, FormatTOML, FormatFromPath("a.TOML"))
	assert.Equal(t, FormatYAML, FormatFromPath("a.yml"))
	assert.Equal(t, FormatYAML, FormatFromPath("a.yaml"))
	assert.Equal(t, FormatJSON, FormatFromPath("algorithms"))
}

func resetDefault(t *testing.T) {
	t.Helper()
	reset := func() {
		defaultMu.Lock()
		defaultPath = ""
		defaultMu.Unlock()
		defaultReg = nil
	}
	reset()
	t.Cleanup(reset)
}

func TestDefault(t *testing.T) {
	t.Run("fallback without a path", func(t *testing.T) {
		resetDefault(t)
		assert.Equal(t, Fallback().Names(), Default().Names())
	})

	t.Run("loads once", func(t *testing.T) {
		resetDefault(t)
		path := writeFile(t, "algorithms.json", `{"algorithms": [{"name": "MD5", "type": "builtin"}]}`)
		SetDefaultPath(path)

		first := Default()
		assert.Equal(t, []string{"MD5"}, first.Names())

		require.NoError(t, os.Remove(path))
		assert.Same(t, first, Default())
	})

	t.Run("path change reloads", func(t *testing.T) {
		resetDefault(t)
		first := writeFile(t, "first.json", `{"algorithms": [{"name": "MD5", "type": "builtin"}]}`)
		second := writeFile(t, "second.yaml", "algorithms:\n  - name: SHA-1\n    type: builtin\n")

		SetDefaultPath(first)
		assert.Equal(t, []string{"MD5"}, Default().Names())

		SetDefaultPath(second)
		assert.Equal(t, []string{"SHA-1"}, Default().Names())

		SetDefaultPath("")
		assert.Equal(t, Fallback().Names(), Default().Names())
	})
}
