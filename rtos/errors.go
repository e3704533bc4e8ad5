package rtos

import "fmt"

// SymbolNotFoundError reports a mandatory kernel symbol or type member
// missing from the target image. Nothing else can work without the task
// lists, so callers treat it as fatal for the session.
type SymbolNotFoundError struct {
	Symbol string
}

func (e SymbolNotFoundError) Error() string {
	return fmt.Sprintf("kernel symbol %q not found; is this image a FreeRTOS build with symbols?", e.Symbol)
}

// MemoryReadError reports unreadable target memory at a given address. It
// is recoverable per task (the row is skipped) but fatal when it occurs on
// a root list head.
type MemoryReadError struct {
	Addr uint64
	Err  error
}

func (e MemoryReadError) Error() string {
	return fmt.Sprintf("cannot read target memory at %#x: %v", e.Addr, e.Err)
}

func (e MemoryReadError) Unwrap() error { return e.Err }

// CorruptListError reports a kernel list traversal that exceeded its
// defensive iteration cap without returning to the sentinel.
type CorruptListError struct {
	List string
	Cap  int
}

func (e CorruptListError) Error() string {
	return fmt.Sprintf("kernel list %s did not terminate after %d items; memory snapshot may be inconsistent", e.List, e.Cap)
}

// AmbiguousCoreError reports a breakpoint hit whose trapping core could not
// be determined on a multi-core target. The stop predicate falls back to
// checking every core; on true multiprocessor targets that fallback is
// documented undefined behaviour.
type AmbiguousCoreError struct {
	Cores int
}

func (e AmbiguousCoreError) Error() string {
	return fmt.Sprintf("stub did not report the trapping core; matching against all %d cores", e.Cores)
}
