// Package archctx holds the architecture-specific pieces spec.md §6
// treats as an opaque external collaborator: the saved register
// snapshot used to resume a task, and the initial interrupt-return
// stack frame built for a task's first dispatch. Neither type's
// internal layout matters to the rest of this module; they are only
// ever constructed, stored, and handed back to the architecture layer
// verbatim.
package archctx

// InitialEFLAGS is the flags value spec.md §6 requires for a task's
// first dispatch: interrupts enabled, reserved bit 1 set.
const InitialEFLAGS uint64 = 0x202

// Selector identifies a segment selector for a privilege ring.
type Selector uint16

// Kernel-mode code and data segment selectors. User-mode tasks still
// run with these during their very first frame construction; the
// architecture layer is responsible for swapping in user selectors
// once user-mode support is wired up by a concrete platform.
const (
	KernelCodeSelector Selector = 0x08
	KernelDataSelector Selector = 0x10
)

// SavedContext is an opaque architecture register snapshot. Saved by
// ContextSwitcher.Save when a task stops running and restored by
// ContextSwitcher.Restore when the scheduler dispatches it again.
type SavedContext struct {
	// Opaque holds the architecture-defined register blob. This
	// module never interprets its contents.
	Opaque []byte
}

// InterruptStackFrame is the layout pushed onto a task's stack so that
// an `iret`-equivalent instruction resumes execution at IP with the
// given flags and stack. spec.md §4.1 builds exactly one of these, for
// a task's first dispatch.
type InterruptStackFrame struct {
	IP          uintptr
	CodeSegment Selector
	Flags       uint64
	StackTop    uintptr
	DataSegment Selector
}

// NewInitialFrame builds the interrupt-return frame for a task whose
// entry point is ip and whose stack spans up to (but not including)
// stackTop.
func NewInitialFrame(ip, stackTop uintptr) InterruptStackFrame {
	return InterruptStackFrame{
		IP:          ip,
		CodeSegment: KernelCodeSelector,
		Flags:       InitialEFLAGS,
		StackTop:    stackTop,
		DataSegment: KernelDataSelector,
	}
}

// ContextSwitcher is the narrow interface the platform layer
// implements to save and restore a task's register state. It is
// supplied by the embedder; this module never performs the actual
// save/restore itself since doing so requires architecture-specific
// assembly outside Go's reach.
type ContextSwitcher interface {
	// Save captures the current register state into a SavedContext.
	Save() SavedContext
	// Restore resumes execution from a previously saved context. It
	// does not return on the architectures this module targets.
	Restore(SavedContext)
}
