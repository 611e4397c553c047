package task

import (
	"github.com/skift-os/kernel/fsnode"
	"github.com/skift-os/kernel/kernelerr"
	"github.com/skift-os/kernel/vfspath"
)

// ResolveCwd parses text and, if it is relative, combines it with t's
// current cwd under the cwd lock before normalizing, per spec.md
// §4.7.
func (t *Task) ResolveCwd(text string) vfspath.Path {
	p := vfspath.New(text)
	if p.IsRelative() {
		t.cwdMu.Lock()
		base := t.cwd
		t.cwdMu.Unlock()
		p = vfspath.Combine(base, p)
	}
	return p.Normalize()
}

// SetCwd resolves text against fs and, if it names a directory, swaps
// it in as t's new cwd, per spec.md §4.7. The filesystem reference
// taken during lookup is always released, regardless of outcome.
func (t *Task) SetCwd(fs fsnode.Filesystem, text string) error {
	resolved := t.ResolveCwd(text)
	node, ok := fs.FindAndRef(resolved)
	if !ok {
		return kernelerr.ErrNoSuchFileOrDirectory
	}
	defer fs.Deref(node)
	if node.Kind != fsnode.Directory {
		return kernelerr.ErrNotADirectory
	}
	t.cwdMu.Lock()
	t.cwd = resolved
	t.cwdMu.Unlock()
	return nil
}

// GetCwd serializes t's current cwd into buf and returns the number of
// bytes written, per spec.md §4.7. A buffer too small to hold the
// full path is truncated rather than rejected: spec.md §9's Open
// Question (a) leaves the policy unspecified, and truncating silently
// is what original_source/kernel/tasking.c actually does.
func (t *Task) GetCwd(buf []byte) int {
	t.cwdMu.Lock()
	s := t.cwd.String()
	t.cwdMu.Unlock()
	return copy(buf, s)
}
