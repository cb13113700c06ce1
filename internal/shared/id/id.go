// Package id provides identifier generation for the backend.
//
// Two kinds of identifiers live here:
//   - WidgetID: the identity of one playground widget on a host page. Either supplied by the
//     page (the container's id attribute) or generated as a fixed prefix followed by a fixed
//     number of characters sampled uniformly from an alphabet.
//   - PageID: a prefixed ULID naming one host page session. Lexicographically sortable by
//     creation time.
//
// Entropy sources are injectable so tests can generate deterministic identities.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
)

// WidgetID identifies a widget container on a host page.
type WidgetID string

// PageID identifies a host page session.
type PageID string

// String methods for ID types
func (id WidgetID) String() string { return string(id) }
func (id PageID) String() string   { return string(id) }

const (
	// DefaultWidgetPrefix is prepended to every generated widget identity.
	DefaultWidgetPrefix = "tiny-sandbox-"
	// DefaultWidgetLength is the number of random characters after the prefix.
	DefaultWidgetLength = 5
	// DefaultAlphabet is the set random characters are drawn from.
	DefaultAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

	// PagePrefix tags page session IDs.
	PagePrefix = "page"
)

// ============================================================================
// Widget identities
// ============================================================================

// WidgetIDGenerator produces widget identities of the form prefix + random suffix.
type WidgetIDGenerator struct {
	prefix   string
	length   int
	alphabet string

	entropy   io.Reader
	entropyMu sync.Mutex
}

// WidgetIDConfig configures a WidgetIDGenerator. Zero values select the defaults, and so does
// an alphabet that is not 2 to 256 ASCII characters.
type WidgetIDConfig struct {
	Prefix   string
	Length   int
	Alphabet string
}

// NewWidgetIDGenerator creates a generator backed by crypto/rand.
func NewWidgetIDGenerator(cfg WidgetIDConfig) *WidgetIDGenerator {
	return NewWidgetIDGeneratorWithEntropy(cfg, rand.Reader)
}

// NewWidgetIDGeneratorWithEntropy creates a generator with a custom entropy source.
// Useful for testing with deterministic entropy.
func NewWidgetIDGeneratorWithEntropy(cfg WidgetIDConfig, entropy io.Reader) *WidgetIDGenerator {
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultWidgetPrefix
	}
	if cfg.Length <= 0 {
		cfg.Length = DefaultWidgetLength
	}
	if !validAlphabet(cfg.Alphabet) {
		cfg.Alphabet = DefaultAlphabet
	}
	return &WidgetIDGenerator{
		prefix:   cfg.Prefix,
		length:   cfg.Length,
		alphabet: cfg.Alphabet,
		entropy:  entropy,
	}
}

// Generate returns a new widget identity. Characters are sampled independently and
// uniformly, with replacement, from the alphabet.
func (g *WidgetIDGenerator) Generate() WidgetID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	var b strings.Builder
	b.Grow(len(g.prefix) + g.length)
	b.WriteString(g.prefix)
	for i := 0; i < g.length; i++ {
		b.WriteByte(g.alphabet[g.index()])
	}
	return WidgetID(b.String())
}

// Prefix returns the configured prefix.
func (g *WidgetIDGenerator) Prefix() string { return g.prefix }

// Length returns the number of random characters per identity.
func (g *WidgetIDGenerator) Length() int { return g.length }

// Alphabet returns the configured alphabet.
func (g *WidgetIDGenerator) Alphabet() string { return g.alphabet }

func validAlphabet(alphabet string) bool {
	if len(alphabet) < 2 || len(alphabet) > 256 {
		return false
	}
	for i := 0; i < len(alphabet); i++ {
		if alphabet[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

// index draws one uniform index into the alphabet. Bytes at or above the largest multiple of
// the alphabet size are rejected so the modulo does not bias small indexes.
func (g *WidgetIDGenerator) index() int {
	n := len(g.alphabet)
	limit := 256 - 256%n
	var buf [1]byte
	for {
		if _, err := io.ReadFull(g.entropy, buf[:]); err != nil {
			// Entropy source exhausted: fall back to the time source rather than fail.
			return int(time.Now().UnixNano() % int64(n))
		}
		if int(buf[0]) < limit {
			return int(buf[0]) % n
		}
	}
}

// ============================================================================
// Page identities (ULID)
// ============================================================================

// Generator generates ULIDs with optional prefixes
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the singleton generator instance
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a new ULID generator
func NewGenerator() *Generator {
	return &Generator{
		entropy: rand.Reader,
	}
}

// NewGeneratorWithEntropy creates a generator with custom entropy source
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{
		entropy: entropy,
	}
}

// Generate creates a new ULID
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateWithPrefix creates a prefixed ULID string
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.Generate().String())
}

// NewPageID generates a new page session ID
func NewPageID() PageID {
	return PageID(Default().GenerateWithPrefix(PagePrefix))
}

// IsValidPageID reports whether s looks like an ID produced by NewPageID.
func IsValidPageID(s string) bool {
	rest, ok := strings.CutPrefix(s, PagePrefix+"_")
	if !ok {
		return false
	}
	_, err := ulid.Parse(rest)
	return err == nil
}
