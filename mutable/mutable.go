// Package mutable routes mutations to goroutines owning mutable state. A
// mutation is a function bound to the context of its owner, only the owner
// applies it.
package mutable

import "github.com/rs/xid"

// Context identifies an owner of mutable state. Zero Context is immutable.
type Context struct {
	id xid.ID
}

// Mutable returns new mutable context.
func Mutable() Context {
	return Context{id: xid.New()}
}

// Immutable returns context which can not be mutated.
func Immutable() Context {
	return Context{}
}

// IsMutable returns true if context is mutable.
func (c Context) IsMutable() bool {
	return !c.id.IsNil()
}

func (c Context) String() string {
	if !c.IsMutable() {
		return "immutable"
	}
	return c.id.String()
}

// MutatorFunc changes state owned by a context.
type MutatorFunc func()

// Mutation is a mutator bound to a context.
type Mutation struct {
	Context
	mutator MutatorFunc
}

// Mutate binds mutator to the context. Panics if context is immutable.
func (c Context) Mutate(fn MutatorFunc) Mutation {
	if !c.IsMutable() {
		panic("mutate immutable")
	}
	return Mutation{
		Context: c,
		mutator: fn,
	}
}

// Apply calls mutator. It must be called by the context owner.
func (m Mutation) Apply() {
	m.mutator()
}

// batch groups mutators by context. Mutators of one context keep their
// order, mutations of immutable context are skipped.
type batch map[Context][]MutatorFunc

func (b batch) put(m Mutation) batch {
	if !m.IsMutable() {
		return b
	}
	if b == nil {
		b = make(batch)
	}
	b[m.Context] = append(b[m.Context], m.mutator)
	return b
}
