// Package sequence provides the frame sequence number generator.
package sequence

import "sync"

// Modulus bounds generated values to [0, Modulus-1].
//
// Values wrap from 65534 back to 0, so 0 is reused once per cycle. The
// peer attaches no meaning to it today.
const Modulus = 65535

// Generator issues sequence numbers for outgoing frames.
// It is safe for concurrent use; the zero value is ready and starts at 0.
type Generator struct {
	mu  sync.Mutex
	cur uint16
}

// New creates a generator whose counter starts at 0.
func New() *Generator {
	return &Generator{}
}

// Next increments the counter and returns the new value modulo Modulus.
// The first call returns 1.
func (g *Generator) Next() uint16 {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cur = uint16((uint32(g.cur) + 1) % Modulus)
	return g.cur
}

// Current returns the last issued value without advancing.
func (g *Generator) Current() uint16 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cur
}

// Reset returns the counter to 0.
func (g *Generator) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cur = 0
}
