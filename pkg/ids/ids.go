package ids

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

// Generator produces identifiers for newly created records. Injectable so
// tests can assert on deterministic ids.
type Generator interface {
	NewID() string
}

type uuidGenerator struct{}

func (uuidGenerator) NewID() string {
	return uuid.NewString()
}

// NewUUIDGenerator returns the production generator backed by random UUIDs.
func NewUUIDGenerator() Generator {
	return uuidGenerator{}
}

// Sequential yields "<prefix>-1", "<prefix>-2", ... and is safe for
// concurrent use.
type Sequential struct {
	prefix  string
	counter uint64
}

// NewSequential returns a deterministic generator for tests.
func NewSequential(prefix string) *Sequential {
	return &Sequential{prefix: prefix}
}

func (s *Sequential) NewID() string {
	n := atomic.AddUint64(&s.counter, 1)
	return fmt.Sprintf("%s-%d", s.prefix, n)
}
