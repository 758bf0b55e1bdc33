package sim

import (
	"sync/atomic"
)

// ObjectID identifies an object within its tree. IDs are never reused.
type ObjectID uint32

// IDGenerator can generate object IDs.
type IDGenerator interface {
	// Generate an ID
	Generate() ObjectID
}

type sequentialIDGenerator struct {
	nextID uint32
}

// NewSequentialIDGenerator returns a generator that counts up from 0, so the
// root of a tree always gets ID 0.
func NewSequentialIDGenerator() IDGenerator {
	return &sequentialIDGenerator{}
}

func (g *sequentialIDGenerator) Generate() ObjectID {
	return ObjectID(atomic.AddUint32(&g.nextID, 1) - 1)
}
