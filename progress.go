package rvth

// ProgressPhase identifies which long-running operation a Progress callback
// is reporting on.
type ProgressPhase int

const (
	ProgressExtract ProgressPhase = iota
	ProgressImport
	ProgressRecrypt
)

// ProgressState is passed to a Progress callback at least once per 1-MiB
// chunk and once at completion.
type ProgressState struct {
	Phase        ProgressPhase
	SrcEngine    *Engine
	DstEngine    *Engine
	SrcBank      uint32
	DstBank      uint32
	LBAProcessed uint32
	LBATotal     uint32
}

// Progress callbacks run synchronously on the calling goroutine; returning
// false aborts the enclosing operation with ErrCanceled.
// A nil Progress is always treated as "continue".
type Progress func(state *ProgressState) bool

func (p Progress) call(state *ProgressState) bool {
	if p == nil {
		return true
	}
	return p(state)
}
