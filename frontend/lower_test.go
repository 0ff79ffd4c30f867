package frontend

import (
	"strings"
	"testing"

	"github.com/gogpu/shaderbc/errorchannel"
	"github.com/gogpu/shaderbc/ir"
	"github.com/gogpu/shaderbc/pybc"
	"github.com/gogpu/shaderbc/sbc"
)

// constReturnFunction builds the trivial "return <literal>" bytecode
// trace: LOAD_CONST 0, RETURN_VALUE.
func constReturnFunction(name string, stage ir.ShaderStage, params []Parameter, constVal interface{}) SourceFunction {
	return SourceFunction{
		Name:     name,
		Filename: "triangle.shd",
		Stage:    stage,
		Parameters: params,
		Code: pybc.Function{
			Name:     name,
			Filename: "triangle.shd",
			Consts:   []interface{}{constVal},
			Raw: []pybc.RawInstruction{
				{Op: pybc.OpLoadConst, Arg: 0, Offset: 0},
				{Op: pybc.OpReturnValue, Arg: 0, Offset: 2},
			},
			LineTable: map[int]int{0: 1},
		},
	}
}

func TestLowerConstReturn(t *testing.T) {
	loc := 0
	fn := constReturnFunction("main", ir.StageFragment, []Parameter{
		{Name: "color", IOKind: IOOutput, Slot: Slot{Location: &loc}, TypeSpec: "f32"},
	}, 1.0)

	prog, err := Lower(fn)
	if err != nil {
		t.Fatalf("Lower: %v", err)
	}

	text := sbc.Print(prog)
	for _, want := range []string{"co_src_filename", "co_entrypoint", "co_resource", "co_load_constant", "co_return"} {
		if !strings.Contains(text, want) {
			t.Errorf("Print(prog) = %q, want it to contain %q", text, want)
		}
	}
}

func TestLowerUnresolvedGlobal(t *testing.T) {
	fn := SourceFunction{
		Name:     "main",
		Filename: "triangle.shd",
		Stage:    ir.StageFragment,
		Code: pybc.Function{
			Names: []string{"undefined_thing"},
			Raw: []pybc.RawInstruction{
				{Op: pybc.OpLoadGlobal, Arg: 0, Offset: 0},
				{Op: pybc.OpReturnValue, Arg: 0, Offset: 2},
			},
			LineTable: map[int]int{0: 1},
		},
	}

	_, err := Lower(fn)
	if err == nil {
		t.Fatal("expected an UnresolvedName error")
	}
	var ecErr *errorchannel.Error
	if !asErrorchannelError(err, &ecErr) {
		t.Fatalf("error %v is not an *errorchannel.Error", err)
	}
	if ecErr.Kind != errorchannel.UnresolvedName {
		t.Fatalf("Kind = %v, want UnresolvedName", ecErr.Kind)
	}
}

// TestLowerErrorQuotesSourceLine verifies that once a SourceFunction
// carries source text, a lowering error quotes the literal offending
// line rather than a generated description.
func TestLowerErrorQuotesSourceLine(t *testing.T) {
	fn := SourceFunction{
		Name:     "main",
		Filename: "triangle.shd",
		Stage:    ir.StageFragment,
		Source:   "    bar = undefined_thing\n",
		Code: pybc.Function{
			Names: []string{"undefined_thing"},
			Raw: []pybc.RawInstruction{
				{Op: pybc.OpLoadGlobal, Arg: 0, Offset: 0},
				{Op: pybc.OpReturnValue, Arg: 0, Offset: 2},
			},
			LineTable: map[int]int{0: 1},
		},
	}

	_, err := Lower(fn)
	if err == nil {
		t.Fatal("expected an error")
	}
	var ecErr *errorchannel.Error
	if !asErrorchannelError(err, &ecErr) {
		t.Fatalf("error %v is not an *errorchannel.Error", err)
	}
	if ecErr.SourceLine != "bar = undefined_thing" {
		t.Fatalf("SourceLine = %q, want the literal trimmed source line", ecErr.SourceLine)
	}
}

func asErrorchannelError(err error, out **errorchannel.Error) bool {
	e, ok := err.(*errorchannel.Error)
	if !ok {
		return false
	}
	*out = e
	return true
}

func TestSourceLineHelper(t *testing.T) {
	src := "a\n  b  \nc"
	if got := sourceLine(src, 2); got != "b" {
		t.Fatalf("sourceLine(src, 2) = %q, want %q", got, "b")
	}
	if got := sourceLine(src, 0); got != "" {
		t.Fatalf("sourceLine(src, 0) = %q, want empty", got)
	}
	if got := sourceLine(src, 99); got != "" {
		t.Fatalf("sourceLine(src, 99) = %q, want empty", got)
	}
	if got := sourceLine("", 1); got != "" {
		t.Fatalf("sourceLine(\"\", 1) = %q, want empty", got)
	}
}

// inParam builds a plain input Parameter, the shape every control-flow
// fixture below uses for its scalar condition/loop inputs.
func inParam(name, typeSpec string) Parameter {
	return Parameter{Name: name, IOKind: IOInput, TypeSpec: typeSpec}
}

// TestLowerIfElifElse exercises a three-way if/elif/else chain:
// lowerConditional recursing into itself for the elif arm, and the
// else-detection heuristic (the unconditional join jump immediately
// preceding the false-branch target).
func TestLowerIfElifElse(t *testing.T) {
	fn := SourceFunction{
		Name:       "main",
		Filename:   "triangle.shd",
		Stage:      ir.StageFragment,
		Parameters: []Parameter{inParam("a", "i32")},
		Code: pybc.Function{
			Consts:   []interface{}{1, 10, 2, 20, 30},
			Names:    []string{},
			Varnames: []string{"a", "x"},
			Raw: []pybc.RawInstruction{
				{Op: pybc.OpLoadFast, Arg: 0, Offset: 0},
				{Op: pybc.OpLoadConst, Arg: 0, Offset: 2},
				{Op: pybc.OpCompareOp, Arg: 0, Offset: 4},
				{Op: pybc.OpPopJumpIfFalse, Arg: 14, Offset: 6},
				{Op: pybc.OpLoadConst, Arg: 1, Offset: 8},
				{Op: pybc.OpStoreFast, Arg: 1, Offset: 10},
				{Op: pybc.OpJumpForward, Arg: 32, Offset: 12},
				{Op: pybc.OpLoadFast, Arg: 0, Offset: 14},
				{Op: pybc.OpLoadConst, Arg: 2, Offset: 16},
				{Op: pybc.OpCompareOp, Arg: 0, Offset: 18},
				{Op: pybc.OpPopJumpIfFalse, Arg: 28, Offset: 20},
				{Op: pybc.OpLoadConst, Arg: 3, Offset: 22},
				{Op: pybc.OpStoreFast, Arg: 1, Offset: 24},
				{Op: pybc.OpJumpForward, Arg: 32, Offset: 26},
				{Op: pybc.OpLoadConst, Arg: 4, Offset: 28},
				{Op: pybc.OpStoreFast, Arg: 1, Offset: 30},
				{Op: pybc.OpLoadFast, Arg: 1, Offset: 32},
				{Op: pybc.OpReturnValue, Arg: 0, Offset: 34},
			},
			LineTable: map[int]int{0: 1},
		},
	}

	prog, err := Lower(fn)
	if err != nil {
		t.Fatalf("Lower: %v", err)
	}
	text := sbc.Print(prog)
	for _, want := range []string{
		"co_select_merge", "co_branch_conditional", "co_branch L",
		"co_load_constant int 10", "co_load_constant int 20", "co_load_constant int 30",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("Print(prog) = %q, want it to contain %q", text, want)
		}
	}
	if n := strings.Count(text, "co_label"); n != 4 {
		t.Errorf("co_label count = %d, want 4 (one false+merge pair per if)", n)
	}
}

// TestLowerTernary exercises a conditional expression: both arms must
// push a value, bound to the same synthetic temporary and reloaded
// after the merge.
func TestLowerTernary(t *testing.T) {
	fn := SourceFunction{
		Name:       "main",
		Filename:   "triangle.shd",
		Stage:      ir.StageFragment,
		Parameters: []Parameter{inParam("a", "i32")},
		Code: pybc.Function{
			Consts:   []interface{}{1, 10, 20},
			Varnames: []string{"a", "y"},
			Raw: []pybc.RawInstruction{
				{Op: pybc.OpLoadFast, Arg: 0, Offset: 0},
				{Op: pybc.OpLoadConst, Arg: 0, Offset: 2},
				{Op: pybc.OpCompareOp, Arg: 0, Offset: 4},
				{Op: pybc.OpPopJumpIfFalse, Arg: 12, Offset: 6, Ternary: true},
				{Op: pybc.OpLoadConst, Arg: 1, Offset: 8},
				{Op: pybc.OpJumpForward, Arg: 14, Offset: 10},
				{Op: pybc.OpLoadConst, Arg: 2, Offset: 12},
				{Op: pybc.OpStoreFast, Arg: 1, Offset: 14},
				{Op: pybc.OpLoadFast, Arg: 1, Offset: 16},
				{Op: pybc.OpReturnValue, Arg: 0, Offset: 18},
			},
			LineTable: map[int]int{0: 1},
		},
	}

	prog, err := Lower(fn)
	if err != nil {
		t.Fatalf("Lower: %v", err)
	}
	text := sbc.Print(prog)
	for _, want := range []string{
		"co_select_merge", "co_load_constant int 10", "co_load_constant int 20",
		"co_store_name $sc1", "co_load_name $sc1",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("Print(prog) = %q, want it to contain %q", text, want)
		}
	}
}

// TestLowerShortCircuit exercises both JUMP_IF_FALSE_OR_POP ("and") and
// JUMP_IF_TRUE_OR_POP ("or"): the left operand is duped into a
// temporary before either form tests it.
func TestLowerShortCircuit(t *testing.T) {
	tests := []struct {
		name string
		op   pybc.Opcode
	}{
		{"and", pybc.OpJumpIfFalseOrPop},
		{"or", pybc.OpJumpIfTrueOrPop},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fn := SourceFunction{
				Name:       "main",
				Filename:   "triangle.shd",
				Stage:      ir.StageFragment,
				Parameters: []Parameter{inParam("a", "i32"), inParam("b", "i32")},
				Code: pybc.Function{
					Varnames: []string{"a", "b", "z"},
					Raw: []pybc.RawInstruction{
						{Op: pybc.OpLoadFast, Arg: 0, Offset: 0},
						{Op: tt.op, Arg: 6, Offset: 2},
						{Op: pybc.OpLoadFast, Arg: 1, Offset: 4},
						{Op: pybc.OpStoreFast, Arg: 2, Offset: 6},
						{Op: pybc.OpLoadFast, Arg: 2, Offset: 8},
						{Op: pybc.OpReturnValue, Arg: 0, Offset: 10},
					},
					LineTable: map[int]int{0: 1},
				},
			}

			prog, err := Lower(fn)
			if err != nil {
				t.Fatalf("Lower: %v", err)
			}
			text := sbc.Print(prog)
			for _, want := range []string{"co_dup_top", "co_store_name $sc1", "co_select_merge"} {
				if !strings.Contains(text, want) {
					t.Errorf("Print(prog) = %q, want it to contain %q", text, want)
				}
			}
		})
	}
}

// TestLowerWhileLoop exercises lowerLoop's canonical shape: a
// POP_JUMP_IF_FALSE header test, a body, the always-present
// continuing-block jump, and the backward edge to the header.
func TestLowerWhileLoop(t *testing.T) {
	fn := SourceFunction{
		Name:       "main",
		Filename:   "triangle.shd",
		Stage:      ir.StageFragment,
		Parameters: []Parameter{inParam("a", "i32")},
		Code: pybc.Function{
			Consts:   []interface{}{10, 1},
			Varnames: []string{"a"},
			Raw: []pybc.RawInstruction{
				{Op: pybc.OpLoadFast, Arg: 0, Offset: 0},
				{Op: pybc.OpLoadConst, Arg: 0, Offset: 2},
				{Op: pybc.OpCompareOp, Arg: 0, Offset: 4},
				{Op: pybc.OpPopJumpIfFalse, Arg: 20, Offset: 6},
				{Op: pybc.OpLoadFast, Arg: 0, Offset: 8},
				{Op: pybc.OpLoadConst, Arg: 1, Offset: 10},
				{Op: pybc.OpBinaryAdd, Arg: 0, Offset: 12},
				{Op: pybc.OpStoreFast, Arg: 0, Offset: 14},
				{Op: pybc.OpJumpForward, Arg: 16, Offset: 16},
				{Op: pybc.OpJumpAbsolute, Arg: 0, Offset: 18},
				{Op: pybc.OpLoadFast, Arg: 0, Offset: 20},
				{Op: pybc.OpReturnValue, Arg: 0, Offset: 22},
			},
			LineTable: map[int]int{0: 1},
		},
	}

	prog, err := Lower(fn)
	if err != nil {
		t.Fatalf("Lower: %v", err)
	}
	text := sbc.Print(prog)
	for _, want := range []string{
		"co_loop_merge", "co_select_merge", "co_branch_conditional",
		"co_break", "co_continue", "co_binop add",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("Print(prog) = %q, want it to contain %q", text, want)
		}
	}
}

// forIterOffset is the fixed offset forRangeFixture lays the FOR_ITER
// test at, shared with the tests below so an explicit "continue" jump
// can target it.
const forIterOffset = 8

// forRangeFixture builds the bytecode shape "for i in range(10): val =
// val + 1.0" that lowerForRange recognizes, optionally inserting one
// extra unconditional jump at the end of the body before the mandatory
// back-edge: extra is "" (nothing extra), "continue" (a jump back to
// forIterOffset), or "break" (a jump to the loop's merge offset, which
// shifts two bytes later to make room for it).
func forRangeFixture(extra string) pybc.Function {
	mergeOffset := 22
	if extra != "" {
		mergeOffset = 24
	}
	raw := []pybc.RawInstruction{
		{Op: pybc.OpLoadConst, Arg: 0, Offset: 0},
		{Op: pybc.OpLoadGlobal, Arg: 0, Offset: 2},
		{Op: pybc.OpCallFunction, Arg: 1, Offset: 4},
		{Op: pybc.OpGetIter, Arg: 0, Offset: 6},
		{Op: pybc.OpForIter, Arg: uint8(mergeOffset), Offset: forIterOffset},
		{Op: pybc.OpStoreFast, Arg: 0, Offset: 10},
		{Op: pybc.OpLoadFast, Arg: 1, Offset: 12},
		{Op: pybc.OpLoadConst, Arg: 1, Offset: 14},
		{Op: pybc.OpBinaryAdd, Arg: 0, Offset: 16},
		{Op: pybc.OpStoreFast, Arg: 1, Offset: 18},
	}
	nextOffset := 20
	switch extra {
	case "continue":
		raw = append(raw, pybc.RawInstruction{Op: pybc.OpJumpAbsolute, Arg: forIterOffset, Offset: nextOffset})
		nextOffset += 2
	case "break":
		raw = append(raw, pybc.RawInstruction{Op: pybc.OpJumpAbsolute, Arg: uint8(mergeOffset), Offset: nextOffset})
		nextOffset += 2
	}
	raw = append(raw,
		pybc.RawInstruction{Op: pybc.OpJumpAbsolute, Arg: forIterOffset, Offset: nextOffset},
		pybc.RawInstruction{Op: pybc.OpLoadFast, Arg: 1, Offset: nextOffset + 2},
		pybc.RawInstruction{Op: pybc.OpReturnValue, Arg: 0, Offset: nextOffset + 4},
	)
	return pybc.Function{
		Consts:    []interface{}{10, 1.0},
		Names:     []string{"range"},
		Varnames:  []string{"i", "val"},
		Raw:       raw,
		LineTable: map[int]int{0: 1},
	}
}

// TestLowerForRange exercises lowerForRange's baseline shape with no
// break or continue: a counter init, a synthesized "i < stop" header
// reusing the while-loop's co_select_merge/co_branch_conditional
// pattern, and a synthesized "i += step" continuing block.
func TestLowerForRange(t *testing.T) {
	fn := SourceFunction{
		Name:       "main",
		Filename:   "triangle.shd",
		Stage:      ir.StageFragment,
		Parameters: []Parameter{inParam("val", "i32")},
		Code:       forRangeFixture(""),
	}

	prog, err := Lower(fn)
	if err != nil {
		t.Fatalf("Lower: %v", err)
	}
	text := sbc.Print(prog)
	for _, want := range []string{
		"co_loop_merge", "co_select_merge", "co_branch_conditional",
		"co_compare lt", "co_break", "co_load_constant int 10",
		"co_load_constant int 0", "co_load_constant int 1",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("Print(prog) = %q, want it to contain %q", text, want)
		}
	}
}

// TestLowerForRangeContinue exercises a "continue" statement inside a
// for-range body: an explicit jump back to the FOR_ITER offset must
// lower to co_continue, the same target the implicit increment path
// reaches.
func TestLowerForRangeContinue(t *testing.T) {
	fn := SourceFunction{
		Name:       "main",
		Filename:   "triangle.shd",
		Stage:      ir.StageFragment,
		Parameters: []Parameter{inParam("val", "i32")},
		Code:       forRangeFixture("continue"),
	}

	prog, err := Lower(fn)
	if err != nil {
		t.Fatalf("Lower: %v", err)
	}
	text := sbc.Print(prog)
	if !strings.Contains(text, "co_continue") {
		t.Errorf("Print(prog) = %q, want it to contain co_continue", text)
	}
}

// TestLowerForRangeBreak exercises a "break" statement inside a
// for-range body: an explicit jump to the loop's merge offset must
// lower to a second co_break, distinct from the synthesized one the
// loop-exhaustion test always emits.
func TestLowerForRangeBreak(t *testing.T) {
	fn := SourceFunction{
		Name:       "main",
		Filename:   "triangle.shd",
		Stage:      ir.StageFragment,
		Parameters: []Parameter{inParam("val", "i32")},
		Code:       forRangeFixture("break"),
	}

	prog, err := Lower(fn)
	if err != nil {
		t.Fatalf("Lower: %v", err)
	}
	text := sbc.Print(prog)
	if n := strings.Count(text, "co_break"); n < 2 {
		t.Errorf("co_break count = %d in %q, want at least 2 (synthesized exit + user break)", n, text)
	}
}

// TestLowerTupleUnpack exercises the three pack/unpack shapes the
// lowerer recognizes: an explicit BUILD_TUPLE/UNPACK_SEQUENCE window, a
// dead-store target elided with POP_TOP, and the ROT_TWO-based swap
// shape runtimes use when they skip tuple materialization entirely.
func TestLowerTupleUnpack(t *testing.T) {
	t.Run("explicit_build", func(t *testing.T) {
		fn := SourceFunction{
			Name:       "main",
			Filename:   "triangle.shd",
			Stage:      ir.StageFragment,
			Parameters: []Parameter{inParam("x", "i32"), inParam("y", "i32")},
			Code: pybc.Function{
				Varnames: []string{"x", "y", "a", "b"},
				Raw: []pybc.RawInstruction{
					{Op: pybc.OpLoadFast, Arg: 0, Offset: 0},
					{Op: pybc.OpLoadFast, Arg: 1, Offset: 2},
					{Op: pybc.OpBuildTuple, Arg: 2, Offset: 4},
					{Op: pybc.OpUnpackSequence, Arg: 2, Offset: 6},
					{Op: pybc.OpStoreFast, Arg: 2, Offset: 8},
					{Op: pybc.OpStoreFast, Arg: 3, Offset: 10},
					{Op: pybc.OpLoadFast, Arg: 2, Offset: 12},
					{Op: pybc.OpReturnValue, Arg: 0, Offset: 14},
				},
				LineTable: map[int]int{0: 1},
			},
		}
		prog, err := Lower(fn)
		if err != nil {
			t.Fatalf("Lower: %v", err)
		}
		text := sbc.Print(prog)
		if !strings.Contains(text, "co_store_name a") || !strings.Contains(text, "co_store_name b") {
			t.Errorf("Print(prog) = %q, want stores to both unpack targets", text)
		}
	})

	t.Run("dead_store_elided", func(t *testing.T) {
		fn := SourceFunction{
			Name:       "main",
			Filename:   "triangle.shd",
			Stage:      ir.StageFragment,
			Parameters: []Parameter{inParam("x", "i32"), inParam("y", "i32")},
			Code: pybc.Function{
				Varnames: []string{"x", "y", "a"},
				Raw: []pybc.RawInstruction{
					{Op: pybc.OpLoadFast, Arg: 0, Offset: 0},
					{Op: pybc.OpLoadFast, Arg: 1, Offset: 2},
					{Op: pybc.OpBuildTuple, Arg: 2, Offset: 4},
					{Op: pybc.OpUnpackSequence, Arg: 2, Offset: 6},
					{Op: pybc.OpStoreFast, Arg: 2, Offset: 8},
					{Op: pybc.OpPopTop, Arg: 0, Offset: 10},
					{Op: pybc.OpLoadFast, Arg: 2, Offset: 12},
					{Op: pybc.OpReturnValue, Arg: 0, Offset: 14},
				},
				LineTable: map[int]int{0: 1},
			},
		}
		prog, err := Lower(fn)
		if err != nil {
			t.Fatalf("Lower: %v", err)
		}
		text := sbc.Print(prog)
		if !strings.Contains(text, "co_store_name a") || !strings.Contains(text, "co_pop_top") {
			t.Errorf("Print(prog) = %q, want a store plus an elided pop_top", text)
		}
	})

	t.Run("rotate_swap", func(t *testing.T) {
		fn := SourceFunction{
			Name:       "main",
			Filename:   "triangle.shd",
			Stage:      ir.StageFragment,
			Parameters: []Parameter{inParam("p", "i32"), inParam("q", "i32")},
			Code: pybc.Function{
				Varnames: []string{"p", "q"},
				Raw: []pybc.RawInstruction{
					{Op: pybc.OpLoadFast, Arg: 0, Offset: 0},
					{Op: pybc.OpLoadFast, Arg: 1, Offset: 2},
					{Op: pybc.OpRotTwo, Arg: 0, Offset: 4},
					{Op: pybc.OpStoreFast, Arg: 0, Offset: 6},
					{Op: pybc.OpStoreFast, Arg: 1, Offset: 8},
					{Op: pybc.OpLoadFast, Arg: 0, Offset: 10},
					{Op: pybc.OpReturnValue, Arg: 0, Offset: 12},
				},
				LineTable: map[int]int{0: 1},
			},
		}
		prog, err := Lower(fn)
		if err != nil {
			t.Fatalf("Lower: %v", err)
		}
		text := sbc.Print(prog)
		if !strings.Contains(text, "co_store_name p") || !strings.Contains(text, "co_store_name q") {
			t.Errorf("Print(prog) = %q, want stores to both swap targets", text)
		}
	})
}
