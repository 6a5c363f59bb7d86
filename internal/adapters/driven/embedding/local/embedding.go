// Package local provides a deterministic, offline embedding.
//
// The vectors carry no semantics beyond token identity and position.
// They exist so ingestion and retrieval keep working without a remote
// embedding service, and so tests get reproducible vectors.
package local

import (
	"context"
	"crypto/md5" //nolint:gosec // G501: used for reproducible hashing, not security.
	"encoding/binary"
	"math"
	"strconv"
	"strings"

	"github.com/nomadai/kbase/internal/core/ports/driven"
)

// Ensure EmbeddingService implements the interface.
var _ driven.EmbeddingService = (*EmbeddingService)(nil)

// Dimensions is the size of every local vector.
const Dimensions = 384

// ModelName identifies vectors produced by this package.
const ModelName = "local-deterministic"

const (
	lehmerMultiplier = 48271
	lehmerModulus    = 0x7fffffff
	mixOffset        = 7
)

// EmbeddingService adapts Generate to the driven.EmbeddingService port.
type EmbeddingService struct{}

// NewEmbeddingService creates a local embedding service.
func NewEmbeddingService() *EmbeddingService {
	return &EmbeddingService{}
}

// Embed returns Generate(text). It only fails if ctx is done.
func (s *EmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return Generate(text), nil
}

// Dimensions returns 384.
func (s *EmbeddingService) Dimensions() int { return Dimensions }

// ModelName returns "local-deterministic".
func (s *EmbeddingService) ModelName() string { return ModelName }

// Ping always succeeds.
func (s *EmbeddingService) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *EmbeddingService) Close() error { return nil }

// Uniform returns the unit vector with every component equal to 1/sqrt(384).
func Uniform() []float32 {
	v := make([]float32, Dimensions)
	c := float32(1 / math.Sqrt(Dimensions))
	for i := range v {
		v[i] = c
	}
	return v
}

// Tokenize lowercases text, separates the punctuation marks . , ! ? ; : ( )
// into their own tokens and splits on whitespace.
func Tokenize(text string) []string {
	var b strings.Builder
	b.Grow(len(text) + len(text)/4)
	for _, r := range strings.ToLower(text) {
		if strings.ContainsRune(".,!?;:()", r) {
			b.WriteByte(' ')
			b.WriteRune(r)
			b.WriteByte(' ')
			continue
		}
		b.WriteRune(r)
	}
	return strings.Fields(b.String())
}

// Generate returns the L2-normalised local embedding of text.
//
// Each token adds a hash-derived value at its position (mod 384), and a
// Lehmer sequence seeded from the text hash adds a second value seven
// slots further on, so token order changes the vector. Components wrap
// modulo 1. The result is identical on every platform.
func Generate(text string) []float32 {
	if strings.TrimSpace(text) == "" {
		return Uniform()
	}

	vec := make([]float64, Dimensions)
	seed := md5Prefix(text)
	for i, token := range Tokenize(text) {
		pos := i % Dimensions
		vec[pos] = math.Mod(vec[pos]+float64(md5Prefix(token))/0xffffffff, 1)

		seed = seed * lehmerMultiplier % lehmerModulus
		mix := (pos + mixOffset) % Dimensions
		vec[mix] = math.Mod(vec[mix]+0.5*float64(seed)/lehmerModulus, 1)
	}

	if out, ok := normalise(vec); ok {
		return out
	}

	for i := range vec {
		vec[i] = float64(md5Prefix(text+"_"+strconv.Itoa(i))) / 0xffffffff
	}
	if out, ok := normalise(vec); ok {
		return out
	}
	return Uniform()
}

// md5Prefix returns the first 32 bits of md5(s), i.e. its first 8 hex digits.
func md5Prefix(s string) uint64 {
	sum := md5.Sum([]byte(s)) //nolint:gosec // G401: see import.
	return uint64(binary.BigEndian.Uint32(sum[:4]))
}

func normalise(vec []float64) ([]float32, bool) {
	var sq float64
	for _, v := range vec {
		sq += v * v
	}
	if sq == 0 {
		return nil, false
	}
	mag := math.Sqrt(sq)
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(v / mag)
	}
	return out, true
}
