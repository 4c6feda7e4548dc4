// Package stream assembles incrementally delivered reply text.
package stream

import "strings"

// Accumulator concatenates fragments of one streamed reply in arrival order.
// It is owned by a single in-flight turn and is not safe for concurrent use.
type Accumulator struct {
	buf    strings.Builder
	active bool
}

// Start clears any previous text and begins a new reply.
func (a *Accumulator) Start() {
	a.buf.Reset()
	a.active = true
}

// Consume appends chunk and returns the text received so far. Chunks arriving
// before Start or after Finish are dropped.
func (a *Accumulator) Consume(chunk string) string {
	if a.active && chunk != "" {
		a.buf.WriteString(chunk)
	}
	return a.buf.String()
}

// Partial returns the text received so far.
func (a *Accumulator) Partial() string {
	return a.buf.String()
}

// Finish closes the reply and returns its text. Start must be called before reuse.
func (a *Accumulator) Finish() string {
	a.active = false
	return a.buf.String()
}
