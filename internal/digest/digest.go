// Package digest provides the in-process digest and checksum strategies.
//
// Every strategy is an Accumulator fed chunk by chunk. Splitting the same
// byte stream at different chunk boundaries always yields the same final
// digest, so callers may choose any chunk size.
package digest

import (
	"crypto/md5"  //nolint:gosec // offered for compatibility, not for security decisions
	"crypto/sha1" //nolint:gosec // offered for compatibility, not for security decisions
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"hash"
	"sort"
	"strings"

	"github.com/cespare/xxhash"
	"github.com/zeebo/blake3"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/md4" //nolint:staticcheck // legacy algorithm kept for interoperability
	"golang.org/x/crypto/sha3"
)

// ErrUnsupported is returned when no built-in strategy exists for a name.
var ErrUnsupported = errors.New("no built-in strategy for algorithm")

// Kind distinguishes cryptographic digests from running checksums.
type Kind int

const (
	// KindDigest is a hash-like accumulator finalized to its full output.
	KindDigest Kind = iota + 1
	// KindChecksum is a 32-bit running checksum rendered as 8 hex digits.
	KindChecksum
)

// Accumulator is the streaming state of one built-in strategy.
type Accumulator interface {
	// Name returns the canonical display name (e.g. "SHA-256").
	Name() string

	// Update feeds the next chunk. It never fails.
	Update(chunk []byte)

	// Sum returns the lowercase hex digest of everything fed so far.
	Sum() string
}

type entry struct {
	name string
	kind Kind
	new  func() Accumulator
}

var builtins = map[string]entry{}

func register(name string, kind Kind, newFn func() Accumulator) {
	builtins[normalize(name)] = entry{name: name, kind: kind, new: newFn}
}

func registerHash(name string, newHash func() hash.Hash) {
	register(name, KindDigest, func() Accumulator {
		return &hashAccumulator{name: name, h: newHash()}
	})
}

func init() {
	registerHash("MD4", md4.New)
	registerHash("MD5", md5.New)
	registerHash("SHA-1", sha1.New)
	registerHash("SHA-224", sha256.New224)
	registerHash("SHA-256", sha256.New)
	registerHash("SHA-384", sha512.New384)
	registerHash("SHA-512", sha512.New)
	registerHash("SHA-512/256", sha512.New512_256)
	registerHash("SHA3-256", sha3.New256)
	registerHash("SHA3-384", sha3.New384)
	registerHash("SHA3-512", sha3.New512)
	registerHash("BLAKE2b-256", mustBlake2b(blake2b.New256))
	registerHash("BLAKE2b-512", mustBlake2b(blake2b.New512))
	registerHash("BLAKE3", func() hash.Hash { return blake3.New() })
	registerHash("XXH64", func() hash.Hash { return xxhash.New() })

	register("CRC-32", KindChecksum, func() Accumulator { return newCRC32("CRC-32", ieeeTable) })
	register("CRC-32C", KindChecksum, func() Accumulator { return newCRC32("CRC-32C", castagnoliTable) })
	register("Adler-32", KindChecksum, func() Accumulator { return newAdler32() })
}

// mustBlake2b adapts the keyed blake2b constructors; a nil key never fails.
func mustBlake2b(fn func(key []byte) (hash.Hash, error)) func() hash.Hash {
	return func() hash.Hash {
		h, err := fn(nil)
		if err != nil {
			panic(err)
		}
		return h
	}
}

// normalize folds case and drops '-' and '_' so that display names and
// command-line spellings ("SHA-256", "sha256", "sha_256") match.
func normalize(name string) string {
	return strings.Map(func(r rune) rune {
		if r == '-' || r == '_' || r == ' ' {
			return -1
		}
		return r
	}, strings.ToLower(strings.TrimSpace(name)))
}

// New returns a fresh accumulator for name, or false if name is not a built-in.
func New(name string) (Accumulator, bool) {
	e, ok := builtins[normalize(name)]
	if !ok {
		return nil, false
	}
	return e.new(), true
}

// Lookup reports whether name is a built-in and, if so, its kind and
// canonical display name.
func Lookup(name string) (canonical string, kind Kind, ok bool) {
	e, ok := builtins[normalize(name)]
	if !ok {
		return "", 0, false
	}
	return e.name, e.kind, true
}

// IsBuiltin reports whether name resolves to a built-in strategy.
func IsBuiltin(name string) bool {
	_, ok := builtins[normalize(name)]
	return ok
}

// IsChecksum reports whether name resolves to a built-in checksum.
func IsChecksum(name string) bool {
	e, ok := builtins[normalize(name)]
	return ok && e.kind == KindChecksum
}

// Names returns the canonical names of all built-in strategies, sorted.
func Names() []string {
	names := make([]string, 0, len(builtins))
	for _, e := range builtins {
		names = append(names, e.name)
	}
	sort.Strings(names)
	return names
}

// SumBytes calculates the digest of b using the named strategy.
func SumBytes(name string, b []byte) (string, error) {
	acc, ok := New(name)
	if !ok {
		return "", ErrUnsupported
	}
	acc.Update(b)
	return acc.Sum(), nil
}

// hashAccumulator wraps a standard hash.Hash.
type hashAccumulator struct {
	name string
	h    hash.Hash
}

func (a *hashAccumulator) Name() string { return a.name }

func (a *hashAccumulator) Update(chunk []byte) {
	// hash.Hash.Write never returns an error.
	_, _ = a.h.Write(chunk)
}

func (a *hashAccumulator) Sum() string {
	return hex.EncodeToString(a.h.Sum(nil))
}
