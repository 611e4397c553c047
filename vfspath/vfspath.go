// Package vfspath implements the path algebra spec.md §6 lists as a
// narrow external collaborator. The corpus has no domain library for
// filesystem path manipulation (every repo that touches paths reaches
// for the standard library's path package, as nomad's own task runner
// does), so this is one of the few genuinely stdlib-backed pieces of
// the module; see DESIGN.md for the justification.
package vfspath

import "path"

// Path is an absolute or relative slash-separated filesystem path.
type Path struct {
	text string
}

// New constructs a Path from raw text without normalizing it.
func New(text string) Path {
	return Path{text: text}
}

// Root is the filesystem root path, the default cwd for a task created
// with no parent.
func Root() Path {
	return Path{text: "/"}
}

// Clone returns an independent copy of p. Paths are immutable value
// types in this translation, so Clone is simply a value copy; it
// exists to mirror spec.md's explicit `clone` operation and the
// ownership transfer it implies in the original allocator-based
// implementation.
func (p Path) Clone() Path {
	return Path{text: p.text}
}

// IsRelative reports whether p does not begin at the filesystem root.
func (p Path) IsRelative() bool {
	return len(p.text) == 0 || p.text[0] != '/'
}

// Combine joins base and rel, treating rel as relative to base. If rel
// is already absolute, Combine returns it unchanged: base is ignored
// and rel is not cleaned.
func Combine(base, rel Path) Path {
	if !rel.IsRelative() {
		return Path{text: rel.text}
	}
	return Path{text: base.text + "/" + rel.text}
}

// Normalize resolves "." and ".." components and collapses repeated
// separators, the way path.Clean does for slash-separated paths.
func (p Path) Normalize() Path {
	if p.text == "" {
		return Root()
	}
	clean := path.Clean(p.text)
	if clean == "." {
		clean = "/"
	}
	return Path{text: clean}
}

// String returns the path's textual representation.
func (p Path) String() string {
	return p.text
}
