package vm

// ---------------------------------------------------------------------------
// Code: compiled instructions for a function
// ---------------------------------------------------------------------------

// DescriptorKind classifies PC descriptors. Kinds are bit flags so that
// iteration can select several at once.
type DescriptorKind uint8

const (
	DescIcCall          DescriptorKind = 1 << iota // instance call through an IC
	DescUnoptStaticCall                            // static call in unoptimized code
	DescReturn                                     // return point
)

// PcDescriptor ties a PC to the call site (deopt id) it implements.
type PcDescriptor struct {
	PC      int
	Kind    DescriptorKind
	DeoptID int
}

// Code is the compiled form of a function. Optimized code references the
// unoptimized code it deoptimizes to (and the code of inlined callees)
// through its object pool.
type Code struct {
	name        string
	function    *Function
	optimized   bool
	stub        bool
	objectPool  []any
	descriptors []PcDescriptor
	icData      []*ICData
}

// LazyCompileStub is installed in every function that must be compiled
// before it can run.
var LazyCompileStub = &Code{name: "LazyCompile", stub: true}

// Name returns a printable name.
func (c *Code) Name() string { return c.name }

// Function returns the function this code was compiled for (nil for stubs).
func (c *Code) Function() *Function { return c.function }

// IsStubCode returns true for shared stubs.
func (c *Code) IsStubCode() bool { return c.stub }

// IsOptimized returns true for optimized code.
func (c *Code) IsOptimized() bool { return c.optimized }

// ObjectPool returns the constant pool.
func (c *Code) ObjectPool() []any { return c.objectPool }

// PcDescriptors returns all descriptors.
func (c *Code) PcDescriptors() []PcDescriptor { return c.descriptors }

// Descriptors returns the descriptors whose kind is in mask.
func (c *Code) Descriptors(mask DescriptorKind) []PcDescriptor {
	var result []PcDescriptor
	for _, d := range c.descriptors {
		if d.Kind&mask != 0 {
			result = append(result, d)
		}
	}
	return result
}

// ICDataAt returns the IC this code consults for deoptID.
func (c *Code) ICDataAt(deoptID int) *ICData {
	if deoptID < 0 || deoptID >= len(c.icData) {
		return nil
	}
	return c.icData[deoptID]
}

// DeoptTargets returns the unoptimized code objects in c's object pool that
// belong to c's own function: the code an activation of c resumes in after
// deoptimization.
func (c *Code) DeoptTargets() []*Code {
	var result []*Code
	for _, entry := range c.objectPool {
		code, ok := entry.(*Code)
		if !ok || code.optimized {
			continue
		}
		// Inlined callees also live in the pool.
		if code.function == c.function {
			result = append(result, code)
		}
	}
	return result
}

// String implements the Stringer interface.
func (c *Code) String() string {
	return c.name
}
