// Package fsnode is the narrow filesystem interface spec.md §6 names
// as an external collaborator: enough to resolve a path to a node and
// tell a directory from a file, and nothing else. The real node layer
// (storage, permissions, mount points) is out of scope per spec.md
// §1's non-goals.
package fsnode

import (
	"sync"

	"github.com/skift-os/kernel/vfspath"
)

// Type distinguishes directory nodes from everything else a task's
// cwd logic cares about.
type Type int

const (
	File Type = iota
	Directory
)

// Node is a reference-counted filesystem node handle.
type Node struct {
	Path vfspath.Path
	Kind Type
}

// Filesystem is the lookup surface the cwd logic depends on.
type Filesystem interface {
	// FindAndRef resolves path to a node and takes a reference on it,
	// or reports ok=false if no such node exists.
	FindAndRef(p vfspath.Path) (n *Node, ok bool)
	// Deref releases a reference taken by FindAndRef.
	Deref(n *Node)
}

// Fake is an in-memory Filesystem used by tests and the demo command
// in place of the real node layer, which this subsystem only ever
// consumes through the Filesystem interface above.
type Fake struct {
	mu    sync.Mutex
	nodes map[string]*Node
	refs  map[*Node]int
}

// NewFake builds a Fake filesystem seeded with the root directory.
func NewFake() *Fake {
	f := &Fake{
		nodes: map[string]*Node{},
		refs:  map[*Node]int{},
	}
	f.put(vfspath.Root(), Directory)
	return f
}

// put registers a node at p of the given kind, for test/demo setup.
func (f *Fake) put(p vfspath.Path, kind Type) *Node {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := &Node{Path: p, Kind: kind}
	f.nodes[p.Normalize().String()] = n
	return n
}

// MakeDirectory registers a directory node at p, for test/demo setup.
func (f *Fake) MakeDirectory(p vfspath.Path) *Node {
	return f.put(p, Directory)
}

// MakeFile registers a file node at p, for test/demo setup.
func (f *Fake) MakeFile(p vfspath.Path) *Node {
	return f.put(p, File)
}

func (f *Fake) FindAndRef(p vfspath.Path) (*Node, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.nodes[p.Normalize().String()]
	if !ok {
		return nil, false
	}
	f.refs[n]++
	return n, true
}

func (f *Fake) Deref(n *Node) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.refs[n] > 0 {
		f.refs[n]--
	}
}
