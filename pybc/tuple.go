package pybc

// TuplePack recognizes "a, b = x, y" style assignment windows. CPython
// emits BUILD_TUPLE n immediately followed (after the store target's
// own unpack) by UNPACK_SEQUENCE n; some runtimes fold the pack/unpack
// pair away entirely and instead reorder the STORE_FAST sequence
// directly (observed by the original implementation across pypy and
// CPython 3.8+, see test_tuple_unpacking2). Both shapes carry the same
// semantic: N values are computed then bound to N names, the physical
// tuple is never an addressable shader value, and the window must be
// recognized so the Front-end Lowerer never tries to materialize one.
type TuplePack struct {
	// Start is the index into an instruction slice where BUILD_TUPLE
	// occurs (or, for the no-materialization shape, where the computed
	// values begin).
	Start int
	// Size is the tuple arity (2 through 5 are the cases the original
	// implementation's test suite exercises).
	Size int
	// HasExplicitBuild is true when a BUILD_TUPLE/UNPACK_SEQUENCE pair
	// is present in the stream; false when the runtime already reduced
	// the assignment to a direct permuted store sequence.
	HasExplicitBuild bool
}

// DetectTuplePack looks for a BUILD_TUPLE n instruction at instrs[i]
// immediately followed by an UNPACK_SEQUENCE n, the shape CPython
// itself emits for "a, b = x, y". Returns ok=false if instrs[i] is not
// such a window.
func DetectTuplePack(instrs []Instruction, i int) (TuplePack, bool) {
	if i < 0 || i >= len(instrs) || instrs[i].Op != OpBuildTuple {
		return TuplePack{}, false
	}
	size := instrs[i].Arg
	if i+1 >= len(instrs) {
		return TuplePack{}, false
	}
	next := instrs[i+1]
	if next.Op != OpUnpackSequence || next.Arg != size {
		return TuplePack{}, false
	}
	return TuplePack{Start: i, Size: size, HasExplicitBuild: true}, true
}

// RotatePermutation decodes the ROT_TWO/ROT_THREE/ROT_FOUR sequence
// following a run of value-producing instructions into the store
// order it implies, for runtimes that skip BUILD_TUPLE/UNPACK_SEQUENCE
// and instead rotate the stack directly before a run of STORE_FAST.
//
// A bare ROT_TWO before two stores means "store top-of-stack to the
// first target, then the now-top (the originally-second value) to the
// second target" — i.e. the physical stack order is the reverse of
// the source's left-to-right target order. RotatePermutation returns
// the store order as indices into the original left-to-right value
// order so callers can emit co_store_name in the correct sequence
// without ever building a tuple.
func RotatePermutation(depth int) ([]int, bool) {
	switch depth {
	case 2:
		return []int{1, 0}, true
	case 3:
		return []int{2, 1, 0}, true
	case 4:
		return []int{3, 2, 1, 0}, true
	default:
		return nil, false
	}
}
