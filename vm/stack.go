package vm

// ---------------------------------------------------------------------------
// Stack frames
// ---------------------------------------------------------------------------

// Frame is one activation on the managed call stack.
type Frame struct {
	code      *Code
	pc        int
	lazyDeopt bool
}

// Code returns the code this frame is executing.
func (f *Frame) Code() *Code { return f.code }

// Function returns the function this frame is executing.
func (f *Frame) Function() *Function { return f.code.Function() }

// PC returns the frame's current pc.
func (f *Frame) PC() int { return f.pc }

// SetPC moves the frame's pc.
func (f *Frame) SetPC(pc int) { f.pc = pc }

// IsMarkedForLazyDeopt returns true if the frame will switch to unoptimized
// code when it next resumes.
func (f *Frame) IsMarkedForLazyDeopt() bool { return f.lazyDeopt }

// MarkForLazyDeopt requests deoptimization on resume. Frames running
// unoptimized code are unaffected.
func (f *Frame) MarkForLazyDeopt() bool {
	if !f.code.IsOptimized() {
		return false
	}
	f.lazyDeopt = true
	return true
}

// Resume returns the code the frame continues in, performing a pending
// lazy deoptimization first.
func (f *Frame) Resume() *Code {
	if !f.lazyDeopt {
		return f.code
	}
	f.lazyDeopt = false
	if targets := f.code.DeoptTargets(); len(targets) > 0 {
		f.code = targets[0]
	} else if unopt := f.code.Function().UnoptimizedCode(); unopt != nil {
		f.code = unopt
	}
	return f.code
}

// Stack is the managed call stack of an isolate's mutator.
type Stack struct {
	frames []*Frame
}

// Push activates code and returns the new top frame.
func (s *Stack) Push(code *Code) *Frame {
	f := &Frame{code: code}
	s.frames = append(s.frames, f)
	return f
}

// Pop removes the top frame.
func (s *Stack) Pop() *Frame {
	if len(s.frames) == 0 {
		return nil
	}
	f := s.frames[len(s.frames)-1]
	s.frames = s.frames[:len(s.frames)-1]
	return f
}

// Depth returns the number of frames.
func (s *Stack) Depth() int {
	return len(s.frames)
}

// Walk visits frames from the top of the stack down. Returning false stops
// the walk.
func (s *Stack) Walk(fn func(*Frame) bool) {
	for i := len(s.frames) - 1; i >= 0; i-- {
		if !fn(s.frames[i]) {
			return
		}
	}
}
